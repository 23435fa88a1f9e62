// Package pipeline runs the background stages that turn an uploaded recording into a
// transcript and a structured clinical note.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"clinical-scribe/internal/consultation"
)

type Transcript struct {
	Text       string
	Confidence *float64
	Utterances []consultation.Utterance
}

type TranscriptionProvider interface {
	Transcribe(ctx context.Context, audio []byte, fileName string) (*Transcript, error)
}

// PatientContext is the patient summary handed to the note generator.
type PatientContext struct {
	Name    string
	Age     *int
	Gender  string
	History string
}

func (p PatientContext) String() string {
	age := "Unknown"
	if p.Age != nil {
		age = fmt.Sprintf("%d", *p.Age)
	}
	return strings.Join([]string{
		"Name: " + orUnknown(p.Name),
		"Age: " + age,
		"Gender: " + orUnknown(p.Gender),
		"Medical history: " + orUnknown(p.History),
	}, "\n")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

type NoteRequest struct {
	ConsultationID uuid.UUID
	Transcript     string
	Utterances     []consultation.Utterance
	Patient        PatientContext
}

// UISummary holds the short clinician-facing fields the generator proposes. The model's
// notes suggestion is not carried; notes are written by the clinician.
type UISummary struct {
	Diagnosis    string
	Prescription string
}

type Demographics struct {
	Age    *int
	Gender string
}

type NoteDraft struct {
	SOAP          consultation.SOAPSections
	Summary       UISummary
	Demographics  Demographics
	LowConfidence []string
	RiskFlags     []string
	Confidence    *float64
}

type NoteGenerator interface {
	GenerateNote(ctx context.Context, req NoteRequest) (*NoteDraft, error)
}
