// Package jobs persists and executes the background units of work of the consultation pipeline.
//
// Every scheduled stage is a row in the jobs table. A job moves PENDING → RUNNING and then to
// SUCCEEDED or FAILED; a crash leaves it PENDING or RUNNING so Recover can re-dispatch it.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTranscribe   Kind = "TRANSCRIBE"
	KindGenerateNote Kind = "GENERATE_NOTE"
)

type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

type Job struct {
	ID             uuid.UUID  `json:"id"`
	ConsultationID uuid.UUID  `json:"consultation_id"`
	Kind           Kind       `json:"kind"`
	AudioFileID    *uuid.UUID `json:"audio_file_id,omitempty"`
	Generation     int64      `json:"generation"`
	State          State      `json:"state"`
	Attempts       int        `json:"attempts"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Spec describes a job to schedule.
type Spec struct {
	ConsultationID uuid.UUID
	Kind           Kind
	AudioFileID    *uuid.UUID
	Generation     int64
}

func newJob(s Spec, now time.Time) *Job {
	return &Job{
		ID:             uuid.New(),
		ConsultationID: s.ConsultationID,
		Kind:           s.Kind,
		AudioFileID:    s.AudioFileID,
		Generation:     s.Generation,
		State:          StatePending,
		CreatedAt:      now,
	}
}
