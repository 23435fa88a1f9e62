package billing

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/profile"
)

func TestAmount(t *testing.T) {
	fee := 80.0
	zero := 0.0

	assert.Equal(t, 80.0, Amount(&profile.Clinician{ConsultationFee: &fee}, 50))
	assert.Equal(t, 50.0, Amount(&profile.Clinician{}, 50))
	assert.Equal(t, 50.0, Amount(&profile.Clinician{ConsultationFee: &zero}, 50))
	assert.Equal(t, 50.0, Amount(nil, 50))
}

func TestInsertIsIdempotent(t *testing.T) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := New(uuid.New(), 50, time.Now().UTC())
	m.ExpectExec(`INSERT INTO "bills" .* ON CONFLICT DO NOTHING`).WillReturnResult(sqlmock.NewResult(0, 1))
	m.ExpectExec(`INSERT INTO "bills" .* ON CONFLICT DO NOTHING`).WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := Insert(context.Background(), db, b)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = Insert(context.Background(), db, New(b.ConsultationID, 50, time.Now().UTC()))
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestGetByConsultationNotFound(t *testing.T) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m.ExpectQuery(`SELECT .* FROM "bills"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "consultation_id", "amount", "status", "created_at"}))

	_, err = NewRepository(db).GetByConsultation(context.Background(), uuid.New())

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
