// Package billing records the charge raised when a clinician signs off a consultation.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/platform/postgres"
	"clinical-scribe/internal/profile"
)

const StatusPending = "PENDING"

type Bill struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConsultationID uuid.UUID `json:"consultation_id" db:"consultation_id"`
	Amount         float64   `json:"amount" db:"amount"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Amount is the clinician's configured fee, or defaultFee when none is set.
func Amount(c *profile.Clinician, defaultFee float64) float64 {
	if c != nil && c.ConsultationFee != nil && *c.ConsultationFee > 0 {
		return math.Round(*c.ConsultationFee*100) / 100
	}
	return defaultFee
}

func New(consultationID uuid.UUID, amount float64, now time.Time) *Bill {
	return &Bill{
		ID:             uuid.New(),
		ConsultationID: consultationID,
		Amount:         amount,
		Status:         StatusPending,
		CreatedAt:      now,
	}
}

// Insert stores b unless the consultation already has a bill. The unique key on
// consultation_id makes repeated calls safe; it reports whether a row was written.
func Insert(ctx context.Context, q postgres.DBTX, b *Bill) (bool, error) {
	res, err := postgres.Exec(ctx, q, postgres.Dialect.Insert("bills").
		Rows(goqu.Record{
			"id":              b.ID,
			"consultation_id": b.ConsultationID,
			"amount":          b.Amount,
			"status":          b.Status,
			"created_at":      b.CreatedAt,
		}).
		OnConflict(goqu.DoNothing()))
	if err != nil {
		return false, apperr.Internal("create bill", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("create bill", err)
	}
	return n == 1, nil
}

type Repository interface {
	GetByConsultation(ctx context.Context, consultationID uuid.UUID) (*Bill, error)
}

type postgresRepo struct {
	db postgres.DBTX
}

func NewRepository(db postgres.DBTX) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByConsultation(ctx context.Context, consultationID uuid.UUID) (*Bill, error) {
	query, args, err := postgres.Dialect.From("bills").
		Select("id", "consultation_id", "amount", "status", "created_at").
		Where(goqu.Ex{"consultation_id": consultationID}).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal("build bill query", err)
	}

	var b Bill
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&b.ID, &b.ConsultationID, &b.Amount, &b.Status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("bill for consultation", consultationID)
	}
	if err != nil {
		return nil, apperr.Internal("get bill", err)
	}
	return &b, nil
}
