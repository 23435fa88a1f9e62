package appointment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/platform/postgres"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	SaveStatus(ctx context.Context, a *Appointment) error
}

type postgresRepo struct {
	db postgres.DBTX
}

func NewRepository(db postgres.DBTX) Repository {
	return &postgresRepo{db: db}
}

var columns = []any{"id", "patient_id", "clinician_id", "scheduled_at", "reason", "status", "created_at", "updated_at"}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return Get(ctx, r.db, id)
}

func (r *postgresRepo) SaveStatus(ctx context.Context, a *Appointment) error {
	return SaveStatus(ctx, r.db, a)
}

// Get loads one appointment through q, which may be a transaction.
func Get(ctx context.Context, q postgres.DBTX, id uuid.UUID) (*Appointment, error) {
	query, args, err := postgres.Dialect.From("appointments").
		Select(columns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal("build appointment query", err)
	}

	var a Appointment
	var reason sql.NullString
	err = q.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.PatientID, &a.ClinicianID, &a.ScheduledAt, &reason, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("appointment", id)
	}
	if err != nil {
		return nil, apperr.Internal("get appointment", err)
	}
	a.Reason = reason.String
	return &a, nil
}

func Insert(ctx context.Context, q postgres.DBTX, a *Appointment) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := postgres.Exec(ctx, q, postgres.Dialect.Insert("appointments").Rows(goqu.Record{
		"id":           a.ID,
		"patient_id":   a.PatientID,
		"clinician_id": a.ClinicianID,
		"scheduled_at": a.ScheduledAt.UTC(),
		"reason":       a.Reason,
		"status":       a.Status,
		"created_at":   a.CreatedAt,
		"updated_at":   a.UpdatedAt,
	}))
	if err != nil {
		return apperr.Internal("create appointment", err)
	}
	return nil
}

func SaveStatus(ctx context.Context, q postgres.DBTX, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := postgres.Exec(ctx, q, postgres.Dialect.Update("appointments").
		Set(goqu.Record{"status": a.Status, "updated_at": a.UpdatedAt}).
		Where(goqu.Ex{"id": a.ID}))
	if err != nil {
		return apperr.Internal("update appointment status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("appointment", a.ID)
	}
	return nil
}
