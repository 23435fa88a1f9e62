package agent

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clinical-scribe/internal/platform/metrics"
	"clinical-scribe/internal/platform/postgres"
)

// Call is one provider request as recorded in ai_logs.
type Call struct {
	ConsultationID uuid.UUID
	Provider       string
	Model          string
	Latency        time.Duration
	Err            error
}

// CallLog records provider calls. Implementations never fail the call being recorded.
type CallLog interface {
	Record(ctx context.Context, c Call)
}

type NopCallLog struct{}

func (NopCallLog) Record(context.Context, Call) {}

// DBCallLog writes every call to ai_logs and the provider latency histogram.
type DBCallLog struct {
	db postgres.DBTX
}

func NewDBCallLog(db postgres.DBTX) *DBCallLog {
	return &DBCallLog{db: db}
}

func (l *DBCallLog) Record(ctx context.Context, c Call) {
	metrics.RecordProviderCall(c.Provider, c.Err, c.Latency)

	status, errMsg := "success", ""
	if c.Err != nil {
		status, errMsg = "error", c.Err.Error()
	}
	var consultationID any
	if c.ConsultationID != uuid.Nil {
		consultationID = c.ConsultationID
	}

	_, err := postgres.Exec(ctx, l.db, postgres.Dialect.Insert("ai_logs").Rows(goqu.Record{
		"id":              uuid.New(),
		"consultation_id": consultationID,
		"provider":        c.Provider,
		"model":           c.Model,
		"status":          status,
		"latency_ms":      float64(c.Latency.Microseconds()) / 1000,
		"error_message":   errMsg,
		"created_at":      time.Now().UTC(),
	}))
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("provider", c.Provider).Msg("provider call not logged")
	}
}
