package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"clinical-scribe/internal/consultation"
	"clinical-scribe/internal/pipeline"
)

const noteSystemPrompt = `You are an expert medical scribe. Turn a doctor-patient consultation transcript into a detailed,
professional SOAP note encoded as JSON. Do not invent information that is not in the transcript.`

const noteInstructions = `Instructions:
1. subjective: narrative history, with bullet points for symptom lists.
2. objective: observations and findings as bullet points.
3. assessment: clinical reasoning, differential diagnoses as bullet points.
4. plan: one bullet point per medication or instruction.
5. ui_summary.diagnosis: the primary working impression only, separated by " | ".
6. ui_summary.prescription: medication name, dose and frequency keywords.
7. ui_summary.notes: always an empty string.
8. demographics: age and gender only if mentioned.
9. Return strictly valid JSON with this structure:
{
  "soap_note": {"subjective": "", "objective": "", "assessment": "", "plan": ""},
  "ui_summary": {"diagnosis": "", "prescription": "", "notes": ""},
  "demographics": {"age": null, "gender": null},
  "low_confidence": [],
  "risk_flags": [],
  "confidence": 0.0
}`

type noteResponse struct {
	SOAP struct {
		Subjective string `json:"subjective"`
		Objective  string `json:"objective"`
		Assessment string `json:"assessment"`
		Plan       string `json:"plan"`
	} `json:"soap_note"`
	UISummary struct {
		Diagnosis    string `json:"diagnosis"`
		Prescription string `json:"prescription"`
	} `json:"ui_summary"`
	Demographics struct {
		Age    flexAge `json:"age"`
		Gender *string `json:"gender"`
	} `json:"demographics"`
	LowConfidence []string `json:"low_confidence"`
	RiskFlags     []string `json:"risk_flags"`
	Confidence    *float64 `json:"confidence"`
}

// flexAge accepts an age sent as a number, a numeric string or null.
type flexAge struct {
	Value *int
}

func (a *flexAge) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		if v, err := strconv.Atoi(strings.Split(n.String(), ".")[0]); err == nil {
			a.Value = &v
		}
		return nil
	}
	var s *string
	if err := json.Unmarshal(b, &s); err != nil || s == nil {
		return nil
	}
	fields := strings.Fields(*s)
	if len(fields) == 0 {
		return nil
	}
	if v, err := strconv.Atoi(fields[0]); err == nil {
		a.Value = &v
	}
	return nil
}

// GenerateNote asks the model for a SOAP note, UI drafts, demographics and risk flags.
func (c *LLMClient) GenerateNote(ctx context.Context, req pipeline.NoteRequest) (*pipeline.NoteDraft, error) {
	prompt := fmt.Sprintf("Patient context:\n%s\n\nTranscript:\n%s\n\n%s",
		req.Patient.String(), formatTranscript(req.Transcript, req.Utterances), noteInstructions)

	content, err := c.complete(ctx, providerNotes, req.ConsultationID, noteSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var out noteResponse
	if err := decodeJSON(content, &out); err != nil {
		return nil, err
	}

	draft := &pipeline.NoteDraft{
		SOAP: consultation.SOAPSections{
			Subjective: out.SOAP.Subjective,
			Objective:  out.SOAP.Objective,
			Assessment: out.SOAP.Assessment,
			Plan:       out.SOAP.Plan,
		},
		Summary: pipeline.UISummary{
			Diagnosis:    out.UISummary.Diagnosis,
			Prescription: out.UISummary.Prescription,
		},
		Demographics:  pipeline.Demographics{Age: out.Demographics.Age.Value},
		LowConfidence: out.LowConfidence,
		RiskFlags:     out.RiskFlags,
		Confidence:    out.Confidence,
	}
	if out.Demographics.Gender != nil {
		draft.Demographics.Gender = *out.Demographics.Gender
	}
	return draft, nil
}

// formatTranscript labels each diarized utterance with its speaker when utterances are known.
func formatTranscript(text string, utterances []consultation.Utterance) string {
	if len(utterances) == 0 {
		return text
	}
	lines := make([]string, 0, len(utterances))
	for _, u := range utterances {
		speaker := u.Speaker
		if speaker == "" {
			speaker = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("Speaker %s: %s", speaker, u.Text))
	}
	return strings.Join(lines, "\n")
}
