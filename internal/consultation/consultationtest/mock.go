// Package consultationtest provides a testify mock of consultation.Repository.
package consultationtest

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"clinical-scribe/internal/appointment"
	"clinical-scribe/internal/consultation"
)

type MockRepository struct {
	mock.Mock
}

var _ consultation.Repository = (*MockRepository)(nil)

func (m *MockRepository) consultation(args mock.Arguments) (*consultation.Consultation, error) {
	c, _ := args.Get(0).(*consultation.Consultation)
	return c, args.Error(1)
}

func (m *MockRepository) Get(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error) {
	return m.consultation(m.Called(ctx, id))
}

func (m *MockRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*consultation.Consultation, error) {
	return m.consultation(m.Called(ctx, appointmentID))
}

func (m *MockRepository) Create(ctx context.Context, a *appointment.Appointment, c *consultation.Consultation) error {
	return m.Called(ctx, a, c).Error(0)
}

func (m *MockRepository) ListAudio(ctx context.Context, consultationID uuid.UUID) ([]*consultation.AudioFile, error) {
	args := m.Called(ctx, consultationID)
	files, _ := args.Get(0).([]*consultation.AudioFile)
	return files, args.Error(1)
}

func (m *MockRepository) GetAudio(ctx context.Context, id uuid.UUID) (*consultation.AudioFile, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*consultation.AudioFile)
	return a, args.Error(1)
}

func (m *MockRepository) GetNote(ctx context.Context, consultationID uuid.UUID) (*consultation.StructuredNote, error) {
	args := m.Called(ctx, consultationID)
	n, _ := args.Get(0).(*consultation.StructuredNote)
	return n, args.Error(1)
}

func (m *MockRepository) ReplaceAudio(ctx context.Context, consultationID uuid.UUID, audio *consultation.AudioFile) (*consultation.Consultation, []string, error) {
	args := m.Called(ctx, consultationID, audio)
	c, _ := args.Get(0).(*consultation.Consultation)
	refs, _ := args.Get(1).([]string)
	return c, refs, args.Error(2)
}

func (m *MockRepository) Restart(ctx context.Context, consultationID, audioID uuid.UUID) (*consultation.Consultation, error) {
	return m.consultation(m.Called(ctx, consultationID, audioID))
}

func (m *MockRepository) Resume(ctx context.Context, consultationID uuid.UUID) (*consultation.Consultation, error) {
	return m.consultation(m.Called(ctx, consultationID))
}

func (m *MockRepository) SaveTranscript(ctx context.Context, audio *consultation.AudioFile, generation int64) (bool, error) {
	args := m.Called(ctx, audio, generation)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkFailed(ctx context.Context, consultationID uuid.UUID, generation int64) (bool, error) {
	args := m.Called(ctx, consultationID, generation)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CommitNote(ctx context.Context, nc consultation.NoteCommit) (bool, error) {
	args := m.Called(ctx, nc)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) SaveDrafts(ctx context.Context, c *consultation.Consultation) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockRepository) SaveTranscriptEdit(ctx context.Context, audioID uuid.UUID, text string) error {
	return m.Called(ctx, audioID, text).Error(0)
}

func (m *MockRepository) SaveTriage(ctx context.Context, c *consultation.Consultation) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockRepository) SaveAppointmentStatus(ctx context.Context, a *appointment.Appointment, c *consultation.Consultation) error {
	return m.Called(ctx, a, c).Error(0)
}

func (m *MockRepository) Finalize(ctx context.Context, fc consultation.FinalizeCommit) (bool, error) {
	args := m.Called(ctx, fc)
	return args.Bool(0), args.Error(1)
}
