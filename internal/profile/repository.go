package profile

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
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetClinician(ctx context.Context, id uuid.UUID) (*Clinician, error)
	SaveDemographics(ctx context.Context, p *Patient) error
}

type postgresRepo struct {
	db postgres.DBTX
}

func NewRepository(db postgres.DBTX) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	query, args, err := postgres.Dialect.From("patient_profiles").
		Select("user_id", "first_name", "last_name", "date_of_birth", "gender",
			"medical_history", "current_medications", "updated_at").
		Where(goqu.Ex{"user_id": id}).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal("build patient query", err)
	}

	var p Patient
	var dob sql.NullTime
	var gender, history, meds sql.NullString
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&p.UserID, &p.FirstName, &p.LastName, &dob, &gender, &history, &meds, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("patient", id)
	}
	if err != nil {
		return nil, apperr.Internal("get patient", err)
	}
	if dob.Valid {
		p.DateOfBirth = &dob.Time
	}
	p.Gender = gender.String
	p.MedicalHistory = history.String
	p.CurrentMedications = meds.String
	return &p, nil
}

func (r *postgresRepo) GetClinician(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	query, args, err := postgres.Dialect.From("clinician_profiles").
		Select("user_id", "first_name", "last_name", "specialization", "consultation_fee").
		Where(goqu.Ex{"user_id": id}).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal("build clinician query", err)
	}

	var c Clinician
	var spec sql.NullString
	var fee sql.NullFloat64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&c.UserID, &c.FirstName, &c.LastName, &spec, &fee)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("clinician", id)
	}
	if err != nil {
		return nil, apperr.Internal("get clinician", err)
	}
	c.Specialization = spec.String
	if fee.Valid {
		c.ConsultationFee = &fee.Float64
	}
	return &c, nil
}

func (r *postgresRepo) SaveDemographics(ctx context.Context, p *Patient) error {
	return SaveDemographics(ctx, r.db, p)
}

// SaveDemographics writes birth date and gender. It takes a DBTX so it can join a caller's transaction.
func SaveDemographics(ctx context.Context, q postgres.DBTX, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	var gender any
	if p.Gender != "" {
		gender = p.Gender
	}
	var dob any
	if p.DateOfBirth != nil {
		dob = p.DateOfBirth.UTC()
	}
	res, err := postgres.Exec(ctx, q, postgres.Dialect.Update("patient_profiles").
		Set(goqu.Record{
			"date_of_birth": dob,
			"gender":        gender,
			"updated_at":    p.UpdatedAt,
		}).
		Where(goqu.Ex{"user_id": p.UserID}))
	if err != nil {
		return apperr.Internal("update patient demographics", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("patient", p.UserID)
	}
	return nil
}
