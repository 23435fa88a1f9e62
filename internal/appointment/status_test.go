package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"clinical-scribe/internal/apperr"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusCheckedIn, true},
		{StatusCheckedIn, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusScheduled, StatusInProgress, false},
		{StatusScheduled, StatusCompleted, false},
		{StatusCheckedIn, StatusScheduled, false},
		{StatusScheduled, StatusCancelled, true},
		{StatusCheckedIn, StatusNoShow, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusNoShow, StatusCheckedIn, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionConflictNamesStates(t *testing.T) {
	a := &Appointment{Status: StatusCompleted}

	err := a.Transition(StatusCheckedIn)

	assert.True(t, apperr.Is(err, apperr.KindStateConflict))
	assert.Contains(t, err.Error(), "COMPLETED")
	assert.Contains(t, err.Error(), "CHECKED_IN")
	assert.Equal(t, StatusCompleted, a.Status)
}

func TestAdvanceTo(t *testing.T) {
	a := &Appointment{Status: StatusScheduled}
	assert.NoError(t, a.AdvanceTo(StatusCompleted))
	assert.Equal(t, StatusCompleted, a.Status)

	c := &Appointment{Status: StatusCancelled}
	err := c.AdvanceTo(StatusCompleted)
	assert.True(t, apperr.Is(err, apperr.KindStateConflict))
	assert.Equal(t, StatusCancelled, c.Status)
}

func TestBookRequestValidate(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	valid := BookRequest{
		PatientID:   uuid.New(),
		ClinicianID: uuid.New(),
		ScheduledAt: now.Add(time.Hour),
		Symptoms:    "cough",
	}
	assert.NoError(t, valid.Validate(now))

	past := valid
	past.ScheduledAt = now.Add(-time.Minute)
	assert.True(t, apperr.Is(past.Validate(now), apperr.KindValidation))

	noSymptoms := valid
	noSymptoms.Symptoms = " "
	assert.True(t, apperr.Is(noSymptoms.Validate(now), apperr.KindValidation))

	noPatient := valid
	noPatient.PatientID = uuid.Nil
	assert.Error(t, noPatient.Validate(now))
}
