package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/appointment"
	"clinical-scribe/internal/billing"
	"clinical-scribe/internal/platform/postgres"
	"clinical-scribe/internal/profile"
	"clinical-scribe/internal/safety"
	"clinical-scribe/internal/triage"
)

type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Consultation, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error)
	// Create stores a new appointment together with its consultation.
	Create(ctx context.Context, a *appointment.Appointment, c *Consultation) error

	ListAudio(ctx context.Context, consultationID uuid.UUID) ([]*AudioFile, error)
	GetAudio(ctx context.Context, id uuid.UUID) (*AudioFile, error)
	// GetNote returns nil without error when no note exists yet.
	GetNote(ctx context.Context, consultationID uuid.UUID) (*StructuredNote, error)

	// ReplaceAudio wipes prior audio, note and drafts, stores audio and starts a new
	// generation. It returns the updated consultation and the storage refs of the removed files.
	ReplaceAudio(ctx context.Context, consultationID uuid.UUID, audio *AudioFile) (*Consultation, []string, error)
	// Restart un-verifies the given audio file and starts a new generation in IN_PROGRESS.
	Restart(ctx context.Context, consultationID, audioID uuid.UUID) (*Consultation, error)
	// Resume moves the consultation to IN_PROGRESS without starting a new generation.
	Resume(ctx context.Context, consultationID uuid.UUID) (*Consultation, error)

	// SaveTranscript and MarkFailed only write while generation is current; false means superseded.
	SaveTranscript(ctx context.Context, audio *AudioFile, generation int64) (bool, error)
	MarkFailed(ctx context.Context, consultationID uuid.UUID, generation int64) (bool, error)
	CommitNote(ctx context.Context, nc NoteCommit) (bool, error)

	SaveDrafts(ctx context.Context, c *Consultation) error
	SaveTranscriptEdit(ctx context.Context, audioID uuid.UUID, text string) error
	SaveTriage(ctx context.Context, c *Consultation) error
	// SaveAppointmentStatus writes the appointment and, when c is not nil, the consultation status.
	SaveAppointmentStatus(ctx context.Context, a *appointment.Appointment, c *Consultation) error
	// Finalize closes the consultation and its appointment and records the bill in one transaction.
	Finalize(ctx context.Context, fc FinalizeCommit) (bool, error)
}

// NoteCommit is everything note generation writes at once.
type NoteCommit struct {
	Consultation *Consultation
	Note         *StructuredNote
	// Patient is set only when demographics were backfilled.
	Patient *profile.Patient
}

type FinalizeCommit struct {
	Consultation *Consultation
	Appointment  *appointment.Appointment
	Patient      *profile.Patient
	Bill         *billing.Bill
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

var consultationColumns = []any{"id", "appointment_id", "patient_id", "clinician_id", "status", "generation",
	"notes", "diagnosis", "prescription", "urgency_score", "triage_category", "triage_reason", "triage_source",
	"safety_warnings", "safety_status", "requires_manual_review", "start_time", "end_time", "created_at", "updated_at"}

var audioColumns = []any{"id", "consultation_id", "uploaded_by", "file_type", "file_name", "storage_ref",
	"file_size", "mime_type", "transcription", "transcript_confidence", "utterances", "is_transcript_verified", "uploaded_at"}

var noteColumns = []any{"id", "consultation_id", "sections", "risk_flags", "confidence",
	"generated_by_ai", "reviewed_by_clinician", "created_at", "updated_at"}

type scanner interface {
	Scan(dest ...any) error
}

func (r *postgresRepo) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return getConsultation(ctx, r.db, goqu.Ex{"id": id}, id, false)
}

func (r *postgresRepo) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error) {
	return getConsultation(ctx, r.db, goqu.Ex{"appointment_id": appointmentID}, appointmentID, false)
}

func getConsultation(ctx context.Context, q postgres.DBTX, where goqu.Ex, id uuid.UUID, lock bool) (*Consultation, error) {
	ds := postgres.Dialect.From("consultations").Select(consultationColumns...).Where(where)
	if lock {
		ds = ds.ForUpdate(exp.Wait)
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperr.Internal("build consultation query", err)
	}
	c, err := scanConsultation(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("consultation", id)
	}
	if err != nil {
		return nil, apperr.Internal("get consultation", err)
	}
	return c, nil
}

func scanConsultation(s scanner) (*Consultation, error) {
	var c Consultation
	var score sql.NullInt64
	var category, reason, source sql.NullString
	var warnings []byte
	var start, end sql.NullTime
	err := s.Scan(&c.ID, &c.AppointmentID, &c.PatientID, &c.ClinicianID, &c.Status, &c.Generation,
		&c.Notes, &c.Diagnosis, &c.Prescription, &score, &category, &reason, &source,
		&warnings, &c.SafetyStatus, &c.RequiresManualReview, &start, &end, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		c.UrgencyScore = &v
	}
	c.TriageCategory = triage.Category(category.String)
	c.TriageReason = reason.String
	c.TriageSource = triage.Source(source.String)
	c.SafetyWarnings = []safety.Warning{}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &c.SafetyWarnings); err != nil {
			return nil, err
		}
	}
	if start.Valid {
		c.StartTime = &start.Time
	}
	if end.Valid {
		c.EndTime = &end.Time
	}
	return &c, nil
}

func (r *postgresRepo) Create(ctx context.Context, a *appointment.Appointment, c *Consultation) error {
	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := appointment.Insert(ctx, tx, a); err != nil {
			return err
		}
		rec, err := consultationRecord(c)
		if err != nil {
			return err
		}
		rec["id"] = c.ID
		rec["appointment_id"] = c.AppointmentID
		rec["patient_id"] = c.PatientID
		rec["clinician_id"] = c.ClinicianID
		rec["generation"] = c.Generation
		rec["created_at"] = c.CreatedAt
		if _, err := postgres.Exec(ctx, tx, postgres.Dialect.Insert("consultations").Rows(rec)); err != nil {
			return apperr.Internal("create consultation", err)
		}
		return nil
	})
}

// consultationRecord holds the mutable columns of c.
func consultationRecord(c *Consultation) (goqu.Record, error) {
	warnings := c.SafetyWarnings
	if warnings == nil {
		warnings = []safety.Warning{}
	}
	raw, err := json.Marshal(warnings)
	if err != nil {
		return nil, apperr.Internal("encode safety warnings", err)
	}
	c.UpdatedAt = time.Now().UTC()
	return goqu.Record{
		"status":                 c.Status,
		"notes":                  c.Notes,
		"diagnosis":              c.Diagnosis,
		"prescription":           c.Prescription,
		"urgency_score":          nullInt(c.UrgencyScore),
		"triage_category":        nullString(string(c.TriageCategory)),
		"triage_reason":          nullString(c.TriageReason),
		"triage_source":          nullString(string(c.TriageSource)),
		"safety_warnings":        string(raw),
		"safety_status":          c.SafetyStatus,
		"requires_manual_review": c.RequiresManualReview,
		"start_time":             nullTime(c.StartTime),
		"end_time":               nullTime(c.EndTime),
		"updated_at":             c.UpdatedAt,
	}, nil
}

func saveConsultation(ctx context.Context, q postgres.DBTX, c *Consultation, where goqu.Ex) (bool, error) {
	rec, err := consultationRecord(c)
	if err != nil {
		return false, err
	}
	res, err := postgres.Exec(ctx, q, postgres.Dialect.Update("consultations").Set(rec).Where(where))
	if err != nil {
		return false, apperr.Internal("update consultation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("update consultation", err)
	}
	return n > 0, nil
}

// withLocked runs fn inside a transaction holding the consultation row lock.
func (r *postgresRepo) withLocked(ctx context.Context, id uuid.UUID, fn func(tx *sql.Tx, c *Consultation) error) (*Consultation, error) {
	var locked *Consultation
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := getConsultation(ctx, tx, goqu.Ex{"id": id}, id, true)
		if err != nil {
			return err
		}
		if err := fn(tx, c); err != nil {
			return err
		}
		locked = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

func (r *postgresRepo) ReplaceAudio(ctx context.Context, consultationID uuid.UUID, audio *AudioFile) (*Consultation, []string, error) {
	var removed []string
	c, err := r.withLocked(ctx, consultationID, func(tx *sql.Tx, c *Consultation) error {
		if err := c.Transition(StatusInProgress); err != nil {
			return err
		}

		existing, err := listAudio(ctx, tx, consultationID)
		if err != nil {
			return err
		}
		for _, a := range existing {
			removed = append(removed, a.StorageRef)
		}

		if _, err := postgres.Exec(ctx, tx, postgres.Dialect.Delete("soap_notes").
			Where(goqu.Ex{"consultation_id": consultationID})); err != nil {
			return apperr.Internal("clear structured note", err)
		}
		if _, err := postgres.Exec(ctx, tx, postgres.Dialect.Delete("audio_files").
			Where(goqu.Ex{"consultation_id": consultationID})); err != nil {
			return apperr.Internal("clear audio files", err)
		}
		if err := insertAudio(ctx, tx, audio); err != nil {
			return err
		}

		c.Notes, c.Diagnosis, c.Prescription = "", "", ""
		c.Generation++
		if c.StartTime == nil {
			now := time.Now().UTC()
			c.StartTime = &now
		}
		return bumpGeneration(ctx, tx, c)
	})
	if err != nil {
		return nil, nil, err
	}
	return c, removed, nil
}

func (r *postgresRepo) Restart(ctx context.Context, consultationID, audioID uuid.UUID) (*Consultation, error) {
	return r.withLocked(ctx, consultationID, func(tx *sql.Tx, c *Consultation) error {
		if err := c.Transition(StatusInProgress); err != nil {
			return err
		}
		res, err := postgres.Exec(ctx, tx, postgres.Dialect.Update("audio_files").
			Set(goqu.Record{"is_transcript_verified": false}).
			Where(goqu.Ex{"id": audioID, "consultation_id": consultationID}))
		if err != nil {
			return apperr.Internal("reset transcript verification", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apperr.NotFound("audio file", audioID)
		}
		c.Generation++
		return bumpGeneration(ctx, tx, c)
	})
}

// Resume reopens processing without a new generation. A consultation that was never
// started has nothing to resume.
func (r *postgresRepo) Resume(ctx context.Context, consultationID uuid.UUID) (*Consultation, error) {
	return r.withLocked(ctx, consultationID, func(tx *sql.Tx, c *Consultation) error {
		if c.Status == StatusScheduled {
			return apperr.StateConflict("consultation", c.Status, StatusInProgress)
		}
		if err := c.Transition(StatusInProgress); err != nil {
			return err
		}
		_, err := saveConsultation(ctx, tx, c, goqu.Ex{"id": c.ID})
		return err
	})
}

// bumpGeneration writes c including its new generation. The caller holds the row lock.
func bumpGeneration(ctx context.Context, tx *sql.Tx, c *Consultation) error {
	rec, err := consultationRecord(c)
	if err != nil {
		return err
	}
	rec["generation"] = c.Generation
	if _, err := postgres.Exec(ctx, tx, postgres.Dialect.Update("consultations").
		Set(rec).
		Where(goqu.Ex{"id": c.ID})); err != nil {
		return apperr.Internal("start consultation generation", err)
	}
	return nil
}

// current matches the consultation only while generation is unchanged and processing is open.
func current(consultationID uuid.UUID, generation int64) goqu.Ex {
	return goqu.Ex{
		"id":         consultationID,
		"generation": generation,
		"status":     []Status{StatusInProgress, StatusFailed},
	}
}

func (r *postgresRepo) SaveTranscript(ctx context.Context, audio *AudioFile, generation int64) (bool, error) {
	utterances := audio.Utterances
	if utterances == nil {
		utterances = []Utterance{}
	}
	raw, err := json.Marshal(utterances)
	if err != nil {
		return false, apperr.Internal("encode utterances", err)
	}
	var text any
	if audio.Transcription != nil {
		text = *audio.Transcription
	}
	var confidence any
	if audio.TranscriptConfidence != nil {
		confidence = *audio.TranscriptConfidence
	}

	owner := postgres.Dialect.From("consultations").Select("id").Where(current(audio.ConsultationID, generation))
	res, err := postgres.Exec(ctx, r.db, postgres.Dialect.Update("audio_files").
		Set(goqu.Record{
			"transcription":          text,
			"transcript_confidence":  confidence,
			"utterances":             string(raw),
			"is_transcript_verified": false,
		}).
		Where(goqu.Ex{"id": audio.ID, "consultation_id": owner}))
	if err != nil {
		return false, apperr.Internal("save transcript", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("save transcript", err)
	}
	return n == 1, nil
}

func (r *postgresRepo) MarkFailed(ctx context.Context, consultationID uuid.UUID, generation int64) (bool, error) {
	res, err := postgres.Exec(ctx, r.db, postgres.Dialect.Update("consultations").
		Set(goqu.Record{
			"status":                 StatusFailed,
			"requires_manual_review": true,
			"updated_at":             time.Now().UTC(),
		}).
		Where(current(consultationID, generation)))
	if err != nil {
		return false, apperr.Internal("mark consultation failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("mark consultation failed", err)
	}
	return n == 1, nil
}

func (r *postgresRepo) CommitNote(ctx context.Context, nc NoteCommit) (bool, error) {
	applied := false
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		c := nc.Consultation
		locked, err := getConsultation(ctx, tx, goqu.Ex{"id": c.ID}, c.ID, true)
		if err != nil {
			return err
		}
		if locked.Generation != c.Generation || locked.Status.Terminal() {
			return nil
		}

		if err := upsertNote(ctx, tx, nc.Note); err != nil {
			return err
		}
		if nc.Patient != nil {
			if err := profile.SaveDemographics(ctx, tx, nc.Patient); err != nil {
				return err
			}
		}
		if _, err := saveConsultation(ctx, tx, c, goqu.Ex{"id": c.ID, "generation": c.Generation}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func upsertNote(ctx context.Context, q postgres.DBTX, n *StructuredNote) error {
	sections, err := json.Marshal(n.Sections)
	if err != nil {
		return apperr.Internal("encode note sections", err)
	}
	flags := n.RiskFlags
	if flags == nil {
		flags = []string{}
	}
	rawFlags, err := json.Marshal(flags)
	if err != nil {
		return apperr.Internal("encode risk flags", err)
	}
	var confidence any
	if n.Confidence != nil {
		confidence = *n.Confidence
	}

	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	_, err = postgres.Exec(ctx, q, postgres.Dialect.Insert("soap_notes").
		Rows(goqu.Record{
			"id":                    n.ID,
			"consultation_id":       n.ConsultationID,
			"sections":              string(sections),
			"risk_flags":            string(rawFlags),
			"confidence":            confidence,
			"generated_by_ai":       n.GeneratedByAI,
			"reviewed_by_clinician": n.ReviewedByClinician,
			"created_at":            n.CreatedAt,
			"updated_at":            n.UpdatedAt,
		}).
		OnConflict(goqu.DoUpdate("consultation_id", goqu.Record{
			"sections":              goqu.L("EXCLUDED.sections"),
			"risk_flags":            goqu.L("EXCLUDED.risk_flags"),
			"confidence":            goqu.L("EXCLUDED.confidence"),
			"generated_by_ai":       goqu.L("EXCLUDED.generated_by_ai"),
			"reviewed_by_clinician": goqu.L("EXCLUDED.reviewed_by_clinician"),
			"updated_at":            goqu.L("EXCLUDED.updated_at"),
		})))
	if err != nil {
		return apperr.Internal("upsert structured note", err)
	}
	return nil
}

func (r *postgresRepo) SaveDrafts(ctx context.Context, c *Consultation) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := postgres.Exec(ctx, r.db, postgres.Dialect.Update("consultations").
		Set(goqu.Record{
			"notes":        c.Notes,
			"diagnosis":    c.Diagnosis,
			"prescription": c.Prescription,
			"updated_at":   c.UpdatedAt,
		}).
		Where(goqu.Ex{"id": c.ID}))
	if err != nil {
		return apperr.Internal("update drafts", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("consultation", c.ID)
	}
	return nil
}

func (r *postgresRepo) SaveTranscriptEdit(ctx context.Context, audioID uuid.UUID, text string) error {
	res, err := postgres.Exec(ctx, r.db, postgres.Dialect.Update("audio_files").
		Set(goqu.Record{"transcription": text, "is_transcript_verified": true}).
		Where(goqu.Ex{"id": audioID}))
	if err != nil {
		return apperr.Internal("update transcript", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("audio file", audioID)
	}
	return nil
}

func (r *postgresRepo) SaveTriage(ctx context.Context, c *Consultation) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := postgres.Exec(ctx, r.db, postgres.Dialect.Update("consultations").
		Set(goqu.Record{
			"urgency_score":   nullInt(c.UrgencyScore),
			"triage_category": nullString(string(c.TriageCategory)),
			"triage_reason":   nullString(c.TriageReason),
			"triage_source":   nullString(string(c.TriageSource)),
			"updated_at":      c.UpdatedAt,
		}).
		Where(goqu.Ex{"id": c.ID}))
	if err != nil {
		return apperr.Internal("update triage", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("consultation", c.ID)
	}
	return nil
}

func (r *postgresRepo) SaveAppointmentStatus(ctx context.Context, a *appointment.Appointment, c *Consultation) error {
	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := appointment.SaveStatus(ctx, tx, a); err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		_, err := saveConsultation(ctx, tx, c, goqu.Ex{"id": c.ID})
		return err
	})
}

func (r *postgresRepo) Finalize(ctx context.Context, fc FinalizeCommit) (bool, error) {
	billed := false
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := saveConsultation(ctx, tx, fc.Consultation, goqu.Ex{"id": fc.Consultation.ID}); err != nil {
			return err
		}
		if fc.Appointment != nil {
			if err := appointment.SaveStatus(ctx, tx, fc.Appointment); err != nil {
				return err
			}
		}
		if fc.Patient != nil {
			if err := profile.SaveDemographics(ctx, tx, fc.Patient); err != nil {
				return err
			}
		}
		created, err := billing.Insert(ctx, tx, fc.Bill)
		if err != nil {
			return err
		}
		billed = created
		return nil
	})
	return billed, err
}

func (r *postgresRepo) ListAudio(ctx context.Context, consultationID uuid.UUID) ([]*AudioFile, error) {
	return listAudio(ctx, r.db, consultationID)
}

// listAudio returns the consultation's audio files, newest first.
func listAudio(ctx context.Context, q postgres.DBTX, consultationID uuid.UUID) ([]*AudioFile, error) {
	query, args, err := postgres.Dialect.From("audio_files").
		Select(audioColumns...).
		Where(goqu.Ex{"consultation_id": consultationID}).
		Order(goqu.I("uploaded_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal("build audio query", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal("list audio files", err)
	}
	defer rows.Close()

	var out []*AudioFile
	for rows.Next() {
		a, err := scanAudio(rows)
		if err != nil {
			return nil, apperr.Internal("scan audio file", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *postgresRepo) GetAudio(ctx context.Context, id uuid.UUID) (*AudioFile, error) {
	query, args, err := postgres.Dialect.From("audio_files").Select(audioColumns...).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, apperr.Internal("build audio query", err)
	}
	a, err := scanAudio(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("audio file", id)
	}
	if err != nil {
		return nil, apperr.Internal("get audio file", err)
	}
	return a, nil
}

func insertAudio(ctx context.Context, q postgres.DBTX, a *AudioFile) error {
	if a.UploadedAt.IsZero() {
		a.UploadedAt = time.Now().UTC()
	}
	_, err := postgres.Exec(ctx, q, postgres.Dialect.Insert("audio_files").Rows(goqu.Record{
		"id":                     a.ID,
		"consultation_id":        a.ConsultationID,
		"uploaded_by":            a.UploadedBy,
		"file_type":              a.FileType,
		"file_name":              a.FileName,
		"storage_ref":            a.StorageRef,
		"file_size":              a.FileSize,
		"mime_type":              a.MimeType,
		"is_transcript_verified": false,
		"uploaded_at":            a.UploadedAt,
	}))
	if err != nil {
		return apperr.Internal("create audio file", err)
	}
	return nil
}

func scanAudio(s scanner) (*AudioFile, error) {
	var a AudioFile
	var text sql.NullString
	var confidence sql.NullFloat64
	var utterances []byte
	err := s.Scan(&a.ID, &a.ConsultationID, &a.UploadedBy, &a.FileType, &a.FileName, &a.StorageRef,
		&a.FileSize, &a.MimeType, &text, &confidence, &utterances, &a.IsTranscriptVerified, &a.UploadedAt)
	if err != nil {
		return nil, err
	}
	if text.Valid {
		a.Transcription = &text.String
	}
	if confidence.Valid {
		a.TranscriptConfidence = &confidence.Float64
	}
	a.Utterances = []Utterance{}
	if len(utterances) > 0 {
		if err := json.Unmarshal(utterances, &a.Utterances); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (r *postgresRepo) GetNote(ctx context.Context, consultationID uuid.UUID) (*StructuredNote, error) {
	query, args, err := postgres.Dialect.From("soap_notes").
		Select(noteColumns...).
		Where(goqu.Ex{"consultation_id": consultationID}).
		ToSQL()
	if err != nil {
		return nil, apperr.Internal("build note query", err)
	}

	var n StructuredNote
	var sections, flags []byte
	var confidence sql.NullFloat64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&n.ID, &n.ConsultationID, &sections, &flags,
		&confidence, &n.GeneratedByAI, &n.ReviewedByClinician, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get structured note", err)
	}
	if err := json.Unmarshal(sections, &n.Sections); err != nil {
		return nil, apperr.Internal("decode note sections", err)
	}
	n.RiskFlags = []string{}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &n.RiskFlags); err != nil {
			return nil, apperr.Internal("decode risk flags", err)
		}
	}
	if confidence.Valid {
		n.Confidence = &confidence.Float64
	}
	return &n, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
