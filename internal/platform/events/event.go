// Package events fans consultation changes out to Kafka for downstream consumers and to
// Redis for the live staff queue.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Type string

const (
	AppointmentBooked   Type = "appointment.booked"
	AppointmentStatus   Type = "appointment.status_changed"
	AudioIngested       Type = "consultation.audio_ingested"
	TranscriptReady     Type = "consultation.transcript_ready"
	NoteGenerated       Type = "consultation.note_generated"
	ConsultationFailed  Type = "consultation.failed"
	TriageUpdated       Type = "consultation.triage_updated"
	ConsultationClosed  Type = "consultation.finalized"
	ConsultationUpdated Type = "consultation.updated"
)

type Event struct {
	ID             uuid.UUID `json:"id"`
	Type           Type      `json:"type"`
	ConsultationID uuid.UUID `json:"consultation_id"`
	AppointmentID  uuid.UUID `json:"appointment_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	TriageCategory string    `json:"triage_category,omitempty"`
	UrgencyScore   *int      `json:"urgency_score,omitempty"`
	Generation     int64     `json:"generation,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func New(t Type, consultationID uuid.UUID) Event {
	return Event{ID: uuid.New(), Type: t, ConsultationID: consultationID, OccurredAt: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Emit publishes e and logs a failure instead of returning it. Events never abort the operation
// that raised them.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("event", string(e.Type)).
			Str("consultation_id", e.ConsultationID.String()).
			Msg("publish event failed")
	}
}
