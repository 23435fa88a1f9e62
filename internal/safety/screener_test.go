package safety

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) CheckInteractions(ctx context.Context, currentMeds, plan string) ([]Warning, error) {
	args := m.Called(ctx, currentMeds, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Warning), args.Error(1)
}

func TestScreenEmptyPlanSkipsProvider(t *testing.T) {
	checker := new(MockChecker)
	s := NewScreener(checker)

	res := s.Screen(context.Background(), "  ", Patient{CurrentMedications: "warfarin"})

	assert.Empty(t, res.Warnings)
	assert.NotNil(t, res.Warnings)
	assert.Equal(t, StatusSkipped, res.Status)
	checker.AssertNotCalled(t, "CheckInteractions", mock.Anything, mock.Anything, mock.Anything)
}

func TestScreenReturnsWarnings(t *testing.T) {
	checker := new(MockChecker)
	s := NewScreener(checker)

	warnings := []Warning{
		{Type: "interaction", Message: "Bleeding risk", Drug: "Aspirin", Severity: "high"},
		{Type: "interaction", Message: " ", Drug: "Noise"},
	}
	checker.On("CheckInteractions", mock.Anything, "warfarin 5mg", "- aspirin 81mg daily").Return(warnings, nil)

	res := s.Screen(context.Background(), "- Aspirin 81mg daily", Patient{CurrentMedications: "warfarin 5mg"})

	assert.Equal(t, StatusChecked, res.Status)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, "Aspirin", res.Warnings[0].Drug)
	checker.AssertExpectations(t)
}

func TestScreenFailsOpen(t *testing.T) {
	checker := new(MockChecker)
	s := NewScreener(checker)
	checker.On("CheckInteractions", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	res := s.Screen(context.Background(), "start metformin", Patient{})

	assert.Empty(t, res.Warnings)
	assert.Equal(t, StatusUnavailable, res.Status)
}

func TestCurrentMedsFallback(t *testing.T) {
	tests := []struct {
		name string
		p    Patient
		want string
	}{
		{"medications", Patient{CurrentMedications: "lisinopril", MedicalHistory: "htn"}, "lisinopril"},
		{"history", Patient{MedicalHistory: "type 2 diabetes"}, "type 2 diabetes"},
		{"none", Patient{}, "None listed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, currentMeds(tt.p))
		})
	}
}
