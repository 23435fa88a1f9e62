package jobs

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
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	// MarkRunning claims a PENDING job. It returns false when another worker already claimed it.
	MarkRunning(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFinished(ctx context.Context, id uuid.UUID, state State, errMsg string) error
	ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*Job, error)
	// ListUnfinished returns PENDING jobs and RUNNING jobs started before staleBefore.
	ListUnfinished(ctx context.Context, staleBefore time.Time) ([]*Job, error)
	ResetToPending(ctx context.Context, id uuid.UUID) error
}

type postgresRepo struct {
	db postgres.DBTX
}

func NewRepository(db postgres.DBTX) Repository {
	return &postgresRepo{db: db}
}

var columns = []any{"id", "consultation_id", "kind", "audio_file_id", "generation", "state",
	"attempts", "error", "created_at", "started_at", "finished_at"}

func (r *postgresRepo) Create(ctx context.Context, j *Job) error {
	var audioID any
	if j.AudioFileID != nil {
		audioID = *j.AudioFileID
	}
	_, err := postgres.Exec(ctx, r.db, postgres.Dialect.Insert("jobs").Rows(goqu.Record{
		"id":              j.ID,
		"consultation_id": j.ConsultationID,
		"kind":            j.Kind,
		"audio_file_id":   audioID,
		"generation":      j.Generation,
		"state":           j.State,
		"attempts":        j.Attempts,
		"error":           j.Error,
		"created_at":      j.CreatedAt,
	}))
	if err != nil {
		return apperr.Internal("create job", err)
	}
	return nil
}

func (r *postgresRepo) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	query, args, err := postgres.Dialect.From("jobs").Select(columns...).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, apperr.Internal("build job query", err)
	}
	j, err := scanJob(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job", id)
	}
	if err != nil {
		return nil, apperr.Internal("get job", err)
	}
	return j, nil
}

func (r *postgresRepo) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := postgres.Exec(ctx, r.db, postgres.Dialect.Update("jobs").
		Set(goqu.Record{
			"state":      StateRunning,
			"attempts":   goqu.L("attempts + 1"),
			"started_at": time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id, "state": StatePending}))
	if err != nil {
		return false, apperr.Internal("claim job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("claim job", err)
	}
	return n == 1, nil
}

func (r *postgresRepo) MarkFinished(ctx context.Context, id uuid.UUID, state State, errMsg string) error {
	_, err := postgres.Exec(ctx, r.db, postgres.Dialect.Update("jobs").
		Set(goqu.Record{
			"state":       state,
			"error":       errMsg,
			"finished_at": time.Now().UTC(),
		}).
		Where(goqu.Ex{"id": id}))
	if err != nil {
		return apperr.Internal("finish job", err)
	}
	return nil
}

func (r *postgresRepo) ResetToPending(ctx context.Context, id uuid.UUID) error {
	_, err := postgres.Exec(ctx, r.db, postgres.Dialect.Update("jobs").
		Set(goqu.Record{"state": StatePending, "started_at": nil}).
		Where(goqu.Ex{"id": id, "state": []State{StatePending, StateRunning}}))
	if err != nil {
		return apperr.Internal("reset job", err)
	}
	return nil
}

func (r *postgresRepo) ListByConsultation(ctx context.Context, consultationID uuid.UUID) ([]*Job, error) {
	return r.list(ctx, postgres.Dialect.From("jobs").Select(columns...).
		Where(goqu.Ex{"consultation_id": consultationID}).
		Order(goqu.I("created_at").Desc()))
}

func (r *postgresRepo) ListUnfinished(ctx context.Context, staleBefore time.Time) ([]*Job, error) {
	return r.list(ctx, postgres.Dialect.From("jobs").Select(columns...).
		Where(goqu.Or(
			goqu.Ex{"state": StatePending},
			goqu.And(goqu.Ex{"state": StateRunning}, goqu.C("started_at").Lt(staleBefore.UTC())),
		)).
		Order(goqu.I("created_at").Asc()))
}

func (r *postgresRepo) list(ctx context.Context, ds *goqu.SelectDataset) ([]*Job, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperr.Internal("build job list", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("list jobs", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperr.Internal("scan job", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var j Job
	var audioID uuid.NullUUID
	var started, finished sql.NullTime
	if err := s.Scan(&j.ID, &j.ConsultationID, &j.Kind, &audioID, &j.Generation, &j.State,
		&j.Attempts, &j.Error, &j.CreatedAt, &started, &finished); err != nil {
		return nil, err
	}
	if audioID.Valid {
		id := audioID.UUID
		j.AudioFileID = &id
	}
	if started.Valid {
		j.StartedAt = &started.Time
	}
	if finished.Valid {
		j.FinishedAt = &finished.Time
	}
	return &j, nil
}
