package queue

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/appointment"
	"clinical-scribe/internal/platform/postgres"
	"clinical-scribe/internal/profile"
)

type Repository interface {
	// Active returns every appointment still waiting for or in a visit.
	Active(ctx context.Context) ([]Row, error)
}

type postgresRepo struct {
	db postgres.DBTX
}

func NewRepository(db postgres.DBTX) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) Active(ctx context.Context) ([]Row, error) {
	statuses := lo.Map(appointment.ActiveStatuses, func(s appointment.Status, _ int) string { return string(s) })

	query, args, err := postgres.Dialect.From(goqu.T("appointments").As("a")).
		Select(
			goqu.I("a.id"), goqu.I("a.status"), goqu.I("a.scheduled_at"),
			goqu.I("p.first_name"), goqu.I("p.last_name"),
			goqu.I("d.first_name"), goqu.I("d.last_name"),
			goqu.I("c.id"), goqu.I("c.urgency_score"), goqu.I("c.triage_category"), goqu.I("c.triage_reason"),
		).
		Join(goqu.T("patient_profiles").As("p"), goqu.On(goqu.I("p.user_id").Eq(goqu.I("a.patient_id")))).
		Join(goqu.T("clinician_profiles").As("d"), goqu.On(goqu.I("d.user_id").Eq(goqu.I("a.clinician_id")))).
		LeftJoin(goqu.T("consultations").As("c"), goqu.On(goqu.I("c.appointment_id").Eq(goqu.I("a.id")))).
		Where(goqu.I("a.status").In(statuses)).
		Order(goqu.I("a.scheduled_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal("build queue query", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("list active appointments", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row       Row
			patient   profile.Patient
			clinician profile.Clinician
			consID    uuid.NullUUID
			score     sql.NullInt64
			category  sql.NullString
			reason    sql.NullString
		)
		if err := rows.Scan(
			&row.AppointmentID, &row.Status, &row.ScheduledAt,
			&patient.FirstName, &patient.LastName,
			&clinician.FirstName, &clinician.LastName,
			&consID, &score, &category, &reason,
		); err != nil {
			return nil, apperr.Internal("scan queue row", err)
		}
		row.PatientName = patient.DisplayName()
		row.ClinicianName = clinician.DisplayName()
		if consID.Valid {
			row.ConsultationID = &consID.UUID
		}
		if score.Valid {
			row.UrgencyScore = lo.ToPtr(int(score.Int64))
		}
		if category.Valid {
			row.TriageCategory = &category.String
		}
		if reason.Valid {
			row.TriageReason = &reason.String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate queue rows", err)
	}
	return out, nil
}
