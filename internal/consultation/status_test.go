package consultation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/profile"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, false},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusFailed, StatusInProgress, true},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusCancelled, true},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusInProgress, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionConflictNamesBothStates(t *testing.T) {
	c := &Consultation{Status: StatusCompleted}

	err := c.Transition(StatusInProgress)

	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, apperr.As(err, &ae))
	assert.Equal(t, apperr.KindStateConflict, ae.Kind)
	assert.Equal(t, "COMPLETED", ae.Details["current"])
	assert.Equal(t, "IN_PROGRESS", ae.Details["target"])
	assert.Equal(t, StatusCompleted, c.Status)
}

func TestStoredFileName(t *testing.T) {
	at := time.Date(2026, 2, 7, 14, 5, 0, 0, time.UTC)

	name := StoredFileName(
		&profile.Patient{FirstName: "maria", LastName: "Lopez"},
		&profile.Clinician{FirstName: "Jo", LastName: "Kimball"},
		at, ".wav")

	assert.True(t, strings.HasPrefix(name, "MARLOP_JOKIM_07-02-2026_14-05_"), name)
	assert.True(t, strings.HasSuffix(name, ".wav"))
	assert.Len(t, name, len("MARLOP_JOKIM_07-02-2026_14-05_")+8+len(".wav"))

	assert.True(t, strings.HasPrefix(StoredFileName(nil, nil, at, ".mp3"), "UNKUNK_UNKUNK_07-02-2026_14-05_"))
}

func TestUploadRequestValidate(t *testing.T) {
	valid := UploadRequest{FileName: "visit.WEBM", Source: FileConsultation, UploadedBy: UploaderClinician, Data: []byte("x")}
	require.NoError(t, valid.Validate())
	assert.Equal(t, ".webm", valid.Ext())

	tests := []struct {
		name   string
		mutate func(r *UploadRequest)
	}{
		{"empty", func(r *UploadRequest) { r.Data = nil }},
		{"oversize", func(r *UploadRequest) { r.Data = make([]byte, MaxUploadBytes+1) }},
		{"extension", func(r *UploadRequest) { r.FileName = "visit.ogg" }},
		{"no extension", func(r *UploadRequest) { r.FileName = "visit" }},
		{"source", func(r *UploadRequest) { r.Source = "INTAKE" }},
		{"uploader", func(r *UploadRequest) { r.UploadedBy = "FRONT_DESK" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.True(t, apperr.Is(r.Validate(), apperr.KindValidation))
		})
	}
}

func TestMaxUploadBoundary(t *testing.T) {
	r := UploadRequest{FileName: "a.mp3", Source: FilePreVisit, UploadedBy: UploaderPatient, Data: make([]byte, MaxUploadBytes)}
	assert.NoError(t, r.Validate())
}
