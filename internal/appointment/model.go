package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"clinical-scribe/internal/apperr"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// ActiveStatuses are the statuses shown on the staff queue.
var ActiveStatuses = []Status{StatusScheduled, StatusCheckedIn, StatusInProgress}

type Appointment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	PatientID   uuid.UUID `json:"patient_id" db:"patient_id"`
	ClinicianID uuid.UUID `json:"clinician_id" db:"clinician_id"`
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	Reason      string    `json:"reason" db:"reason"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// BookRequest is the validated payload for booking a visit.
type BookRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	ClinicianID uuid.UUID `json:"clinician_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Symptoms    string    `json:"symptoms"`
}

func (r BookRequest) Validate(now time.Time) error {
	if r.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if r.ClinicianID == uuid.Nil {
		return apperr.Validation("clinician_id is required")
	}
	if r.ScheduledAt.IsZero() || !r.ScheduledAt.After(now) {
		return apperr.Validation("scheduled_at must be in the future")
	}
	if strings.TrimSpace(r.Symptoms) == "" {
		return apperr.Validation("symptoms are required")
	}
	return nil
}

type StatusRequest struct {
	Status Status `json:"status"`
}

func (r StatusRequest) Validate() error {
	switch r.Status {
	case StatusScheduled, StatusCheckedIn, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return nil
	}
	return apperr.Validationf("unknown appointment status %q", r.Status)
}
