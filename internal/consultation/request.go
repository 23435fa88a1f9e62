package consultation

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/profile"
	"clinical-scribe/internal/triage"
)

// MaxUploadBytes is the largest accepted recording.
const MaxUploadBytes = 50 << 20

var allowedExtensions = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".webm": "audio/webm",
}

// UploadRequest carries one recording to ingest.
type UploadRequest struct {
	ConsultationID uuid.UUID
	FileName       string
	Source         FileType
	UploadedBy     UploaderRole
	Data           []byte
}

// Ext is the lower-cased extension of the uploaded file name.
func (r UploadRequest) Ext() string {
	return strings.ToLower(filepath.Ext(r.FileName))
}

func (r UploadRequest) Validate() error {
	if len(r.Data) == 0 {
		return apperr.Validation("audio file is empty")
	}
	if len(r.Data) > MaxUploadBytes {
		return apperr.Validationf("file too large: %d bytes, limit is %d", len(r.Data), MaxUploadBytes)
	}
	if _, ok := allowedExtensions[r.Ext()]; !ok {
		return apperr.Validationf("unsupported audio format %q, use one of .wav .mp3 .m4a .aac .webm", r.Ext())
	}
	switch r.Source {
	case FilePreVisit, FileConsultation:
	default:
		return apperr.Validationf("unknown audio source %q", r.Source)
	}
	switch r.UploadedBy {
	case UploaderPatient, UploaderClinician, UploaderSystem:
	default:
		return apperr.Validationf("unknown uploader role %q", r.UploadedBy)
	}
	return nil
}

func mimeTypeFor(ext string) string {
	if m, ok := allowedExtensions[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// StoredFileName builds PATFIRLAS_CLNFIRLAS_DD-MM-YYYY_HH-MM_xxxxxxxx.ext. A missing profile
// contributes UNKUNK. The suffix only avoids collisions.
func StoredFileName(p *profile.Patient, c *profile.Clinician, at time.Time, ext string) string {
	pat, cln := "UNKUNK", "UNKUNK"
	if p != nil {
		pat = profile.Initials(p.FirstName, p.LastName)
	}
	if c != nil {
		cln = profile.Initials(c.FirstName, c.LastName)
	}
	return fmt.Sprintf("%s_%s_%s_%s%s", pat, cln, at.Format("02-01-2006_15-04"), uuid.NewString()[:8], ext)
}

// UpdateRequest is a clinician edit. Nil fields are left untouched.
type UpdateRequest struct {
	Notes        *string `json:"notes"`
	Diagnosis    *string `json:"diagnosis"`
	Prescription *string `json:"prescription"`
	Transcript   *string `json:"transcript"`
}

func (r UpdateRequest) Validate() error {
	if r.Notes == nil && r.Diagnosis == nil && r.Prescription == nil && r.Transcript == nil {
		return apperr.Validation("nothing to update")
	}
	return nil
}

// TriageRequest is a manual triage override.
type TriageRequest struct {
	Category triage.Category `json:"category"`
	Score    int             `json:"score"`
	Reason   string          `json:"reason"`
}

func (r TriageRequest) Validate() error {
	if _, err := triage.Manual(r.Category, r.Score, r.Reason); err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
