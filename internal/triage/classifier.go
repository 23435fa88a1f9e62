// Package triage classifies consultation urgency from free text with a fixed keyword taxonomy.
//
// Tiers are scanned CRITICAL, HIGH, MODERATE in that order and the first phrase found wins,
// regardless of how many lower-tier phrases are also present.
package triage

import (
	"fmt"
	"strings"
)

type Category string

const (
	Critical Category = "CRITICAL"
	High     Category = "HIGH"
	Moderate Category = "MODERATE"
	Low      Category = "LOW"
)

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case Critical, High, Moderate, Low:
		return true
	}
	return false
}

// Priority orders categories for the staff queue; unknown values sort last.
func (c Category) Priority() int {
	switch c {
	case Critical:
		return 0
	case High:
		return 1
	case Moderate:
		return 2
	case Low:
		return 3
	default:
		return 4
	}
}

type Source string

const (
	SourceAI     Source = "AI"
	SourceManual Source = "MANUAL"
)

// Result is one classification outcome.
type Result struct {
	Score    int      `json:"score"`
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
	Source   Source   `json:"source"`
}

const (
	scoreCritical     = 95
	scoreCriticalText = 90
	scoreHigh         = 75
	scoreModerate     = 50
	scoreLow          = 20
	scoreEmpty        = 10

	// DefaultScore is assumed for consultations that were never classified.
	DefaultScore = scoreLow
)

// EvaluateTranscript classifies a raw symptom transcript captured before the visit.
func EvaluateTranscript(transcript string) Result {
	if strings.TrimSpace(transcript) == "" {
		return Result{Score: scoreEmpty, Category: Low, Reason: "No transcript provided", Source: SourceAI}
	}
	text := strings.ToLower(transcript)

	if kw, ok := firstMatch(text, criticalPhrases); ok {
		return Result{Score: scoreCritical, Category: Critical, Reason: fmt.Sprintf("Detected critical phrase: '%s'", kw), Source: SourceAI}
	}
	return scanLowerTiers(text)
}

// NoteInput is the part of a generated note the post-visit classification reads.
type NoteInput struct {
	Subjective string
	Assessment string
	RiskFlags  []string
}

// EvaluateNote classifies a generated note. Explicit risk flags are checked for
// critical phrases before the subjective and assessment text.
func EvaluateNote(in NoteInput) Result {
	for _, flag := range in.RiskFlags {
		if kw, ok := firstMatch(strings.ToLower(flag), criticalPhrases); ok {
			return Result{Score: scoreCritical, Category: Critical, Reason: fmt.Sprintf("Risk flag matched critical phrase: '%s'", kw), Source: SourceAI}
		}
	}

	text := strings.ToLower(in.Subjective + " " + in.Assessment)
	if kw, ok := firstMatch(text, criticalPhrases); ok {
		return Result{Score: scoreCriticalText, Category: Critical, Reason: fmt.Sprintf("Detected critical phrase: '%s'", kw), Source: SourceAI}
	}
	return scanLowerTiers(text)
}

func scanLowerTiers(text string) Result {
	if kw, ok := firstMatch(text, highPhrases); ok {
		return Result{Score: scoreHigh, Category: High, Reason: fmt.Sprintf("Detected high urgency phrase: '%s'", kw), Source: SourceAI}
	}
	if kw, ok := firstMatch(text, moderatePhrases); ok {
		return Result{Score: scoreModerate, Category: Moderate, Reason: fmt.Sprintf("Detected moderate symptom: '%s'", kw), Source: SourceAI}
	}
	return Result{Score: scoreLow, Category: Low, Reason: "No critical symptoms detected", Source: SourceAI}
}

func firstMatch(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

// Manual builds a clinician override. The score must be within 0..100.
func Manual(category Category, score int, reason string) (Result, error) {
	if !category.Valid() {
		return Result{}, fmt.Errorf("unknown triage category %q", category)
	}
	if score < 0 || score > 100 {
		return Result{}, fmt.Errorf("triage score %d out of range 0..100", score)
	}
	return Result{Score: score, Category: category, Reason: reason, Source: SourceManual}, nil
}
