package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/platform/metrics"
)

// ErrSuperseded is returned by a handler whose job belongs to an older generation of the
// consultation. The job finishes as SUCCEEDED without having written anything.
var ErrSuperseded = errors.New("job superseded by newer upload")

// Handler executes one job. A returned error marks the job FAILED.
type Handler func(ctx context.Context, j *Job) error

type Runner struct {
	repo     Repository
	queue    Queue
	workers  int
	handlers map[Kind]Handler
	now      func() time.Time
}

func NewRunner(repo Repository, queue Queue, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		repo:     repo,
		queue:    queue,
		workers:  workers,
		handlers: make(map[Kind]Handler),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle registers the handler for a job kind. It must be called before Start.
func (r *Runner) Handle(kind Kind, h Handler) {
	r.handlers[kind] = h
}

// Submit records a PENDING job and hands it to the queue. A failed push is not an error for
// the caller: the row stays PENDING and Recover dispatches it later.
func (r *Runner) Submit(ctx context.Context, s Spec) (*Job, error) {
	if _, ok := r.handlers[s.Kind]; !ok {
		return nil, apperr.Internal(fmt.Sprintf("no handler for job kind %s", s.Kind), nil)
	}
	j := newJob(s, r.now())
	if err := r.repo.Create(ctx, j); err != nil {
		return nil, err
	}
	metrics.RecordJobSubmitted(string(s.Kind))

	if err := r.queue.Push(ctx, j.ID); err != nil {
		log.Warn().Err(err).
			Str("job_id", j.ID.String()).
			Str("kind", string(j.Kind)).
			Msg("job queued in database only")
	}
	return j, nil
}

// Start blocks running workers until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	log.Info().Int("workers", r.workers).Msg("job runner started")
	r.queue.Run(ctx, r.workers, r.execute)
	log.Info().Msg("job runner stopped")
}

func (r *Runner) execute(ctx context.Context, id uuid.UUID) {
	logger := log.With().Str("job_id", id.String()).Logger()

	j, err := r.repo.Get(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("load job")
		return
	}
	claimed, err := r.repo.MarkRunning(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("claim job")
		return
	}
	if !claimed {
		logger.Debug().Msg("job already claimed")
		return
	}

	logger = logger.With().
		Str("kind", string(j.Kind)).
		Str("consultation_id", j.ConsultationID.String()).
		Int64("generation", j.Generation).
		Logger()

	h, ok := r.handlers[j.Kind]
	if !ok {
		r.finish(ctx, &logger, j, StateFailed, "no handler registered")
		return
	}

	start := time.Now()
	err = r.run(logger.WithContext(ctx), h, j)
	switch {
	case err == nil:
		logger.Info().Dur("took", time.Since(start)).Msg("job succeeded")
		r.finish(ctx, &logger, j, StateSucceeded, "")
	case errors.Is(err, ErrSuperseded):
		logger.Info().Msg("job superseded")
		r.finish(ctx, &logger, j, StateSucceeded, "superseded")
	default:
		logger.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
		r.finish(ctx, &logger, j, StateFailed, err.Error())
	}
}

// run converts a handler panic into a job failure so one bad job cannot stop a worker.
func (r *Runner) run(ctx context.Context, h Handler, j *Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return h(ctx, j)
}

func (r *Runner) finish(ctx context.Context, logger *zerolog.Logger, j *Job, state State, msg string) {
	if err := r.repo.MarkFinished(ctx, j.ID, state, msg); err != nil {
		logger.Error().Err(err).Str("state", string(state)).Msg("record job result")
	}
}

// Recover re-dispatches PENDING jobs and RUNNING jobs whose worker stopped more than
// staleAfter ago. It returns the number of jobs pushed back onto the queue.
func (r *Runner) Recover(ctx context.Context, staleAfter time.Duration) (int, error) {
	pending, err := r.repo.ListUnfinished(ctx, r.now().Add(-staleAfter))
	if err != nil {
		return 0, err
	}

	n := 0
	for _, j := range pending {
		if j.State == StateRunning {
			if err := r.repo.ResetToPending(ctx, j.ID); err != nil {
				return n, err
			}
		}
		if err := r.queue.Push(ctx, j.ID); err != nil {
			log.Warn().Err(err).Str("job_id", j.ID.String()).Msg("recover push failed")
			continue
		}
		n++
	}
	if n > 0 {
		log.Info().Int("jobs", n).Msg("recovered unfinished jobs")
	}
	return n, nil
}
