package consultation

import (
	"time"

	"github.com/google/uuid"

	"clinical-scribe/internal/safety"
	"clinical-scribe/internal/triage"
)

type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
)

type FileType string

const (
	FilePreVisit     FileType = "PRE_VISIT"
	FileConsultation FileType = "CONSULTATION"
)

type UploaderRole string

const (
	UploaderPatient   UploaderRole = "PATIENT"
	UploaderClinician UploaderRole = "CLINICIAN"
	UploaderSystem    UploaderRole = "SYSTEM"
)

// Consultation is the aggregate root of one clinical encounter.
//
// Generation increases with every upload and reprocess. Background stages carry the
// generation they were scheduled for and only write while it is still current.
type Consultation struct {
	ID            uuid.UUID `json:"id" db:"id"`
	AppointmentID uuid.UUID `json:"appointment_id" db:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id" db:"patient_id"`
	ClinicianID   uuid.UUID `json:"clinician_id" db:"clinician_id"`
	Status        Status    `json:"status" db:"status"`
	Generation    int64     `json:"generation" db:"generation"`

	// Clinician-facing drafts
	Notes        string `json:"notes" db:"notes"`
	Diagnosis    string `json:"diagnosis" db:"diagnosis"`
	Prescription string `json:"prescription" db:"prescription"`

	UrgencyScore   *int            `json:"urgency_score,omitempty" db:"urgency_score"`
	TriageCategory triage.Category `json:"triage_category,omitempty" db:"triage_category"`
	TriageReason   string          `json:"triage_reason,omitempty" db:"triage_reason"`
	TriageSource   triage.Source   `json:"triage_source,omitempty" db:"triage_source"`

	SafetyWarnings []safety.Warning `json:"safety_warnings" db:"safety_warnings"`
	SafetyStatus   safety.Status    `json:"safety_status" db:"safety_status"`

	RequiresManualReview bool       `json:"requires_manual_review" db:"requires_manual_review"`
	StartTime            *time.Time `json:"start_time,omitempty" db:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty" db:"end_time"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// ApplyTriage copies a classification onto the consultation.
func (c *Consultation) ApplyTriage(r triage.Result) {
	score := r.Score
	c.UrgencyScore = &score
	c.TriageCategory = r.Category
	c.TriageReason = r.Reason
	c.TriageSource = r.Source
}

// Utterance is one diarized segment of a transcript.
type Utterance struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type AudioFile struct {
	ID                   uuid.UUID    `json:"id" db:"id"`
	ConsultationID       uuid.UUID    `json:"consultation_id" db:"consultation_id"`
	UploadedBy           UploaderRole `json:"uploaded_by" db:"uploaded_by"`
	FileType             FileType     `json:"file_type" db:"file_type"`
	FileName             string       `json:"file_name" db:"file_name"`
	StorageRef           string       `json:"-" db:"storage_ref"`
	FileSize             int64        `json:"file_size" db:"file_size"`
	MimeType             string       `json:"mime_type" db:"mime_type"`
	Transcription        *string      `json:"transcription" db:"transcription"`
	TranscriptConfidence *float64     `json:"transcript_confidence,omitempty" db:"transcript_confidence"`
	Utterances           []Utterance  `json:"utterances" db:"utterances"`
	IsTranscriptVerified bool         `json:"is_transcript_verified" db:"is_transcript_verified"`
	UploadedAt           time.Time    `json:"uploaded_at" db:"uploaded_at"`
}

// HasTranscript reports whether a non-blank transcript is stored.
func (a *AudioFile) HasTranscript() bool {
	return a.Transcription != nil && len(trimmed(*a.Transcription)) > 0
}

type SOAPSections struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// StructuredNote is the AI-drafted SOAP note, at most one per consultation.
type StructuredNote struct {
	ID                  uuid.UUID    `json:"id" db:"id"`
	ConsultationID      uuid.UUID    `json:"consultation_id" db:"consultation_id"`
	Sections            SOAPSections `json:"sections" db:"sections"`
	RiskFlags           []string     `json:"risk_flags" db:"risk_flags"`
	Confidence          *float64     `json:"confidence,omitempty" db:"confidence"`
	GeneratedByAI       bool         `json:"generated_by_ai" db:"generated_by_ai"`
	ReviewedByClinician bool         `json:"reviewed_by_clinician" db:"reviewed_by_clinician"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// Detail is the full clinician view of a consultation.
type Detail struct {
	*Consultation
	AudioFiles []*AudioFile    `json:"audio_files"`
	Note       *StructuredNote `json:"soap_note"`
}
