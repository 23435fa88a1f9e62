package safety

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Warning is one interaction finding surfaced to the clinician.
type Warning struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Drug     string `json:"drug"`
	Severity string `json:"severity"`
}

// Status records whether the screen actually ran.
type Status string

const (
	StatusChecked     Status = "CHECKED"
	StatusSkipped     Status = "SKIPPED"
	StatusUnavailable Status = "UNAVAILABLE"
)

// InteractionChecker compares a proposed plan against current medications.
type InteractionChecker interface {
	CheckInteractions(ctx context.Context, currentMeds, plan string) ([]Warning, error)
}

// Patient is the medication context of the screened patient.
type Patient struct {
	CurrentMedications string
	MedicalHistory     string
}

type Result struct {
	Warnings []Warning
	Status   Status
}

type Screener struct {
	checker InteractionChecker
}

func NewScreener(checker InteractionChecker) *Screener {
	return &Screener{checker: checker}
}

// Screen never returns an error: provider failures yield no warnings with StatusUnavailable.
func (s *Screener) Screen(ctx context.Context, plan string, p Patient) Result {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return Result{Warnings: []Warning{}, Status: StatusSkipped}
	}

	warnings, err := s.checker.CheckInteractions(ctx, currentMeds(p), plan)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("interaction check unavailable, continuing without warnings")
		return Result{Warnings: []Warning{}, Status: StatusUnavailable}
	}

	warnings = lo.Filter(warnings, func(w Warning, _ int) bool {
		return strings.TrimSpace(w.Message) != ""
	})
	return Result{Warnings: warnings, Status: StatusChecked}
}

func currentMeds(p Patient) string {
	if m := strings.TrimSpace(p.CurrentMedications); m != "" {
		return m
	}
	if h := strings.TrimSpace(p.MedicalHistory); h != "" {
		return h
	}
	return "None listed"
}
