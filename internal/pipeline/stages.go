package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"clinical-scribe/internal/alert"
	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/consultation"
	"clinical-scribe/internal/jobs"
	"clinical-scribe/internal/platform/events"
	"clinical-scribe/internal/platform/metrics"
	"clinical-scribe/internal/platform/storage"
	"clinical-scribe/internal/profile"
	"clinical-scribe/internal/safety"
	"clinical-scribe/internal/triage"
)

const (
	stageTranscription  = "transcription"
	stageNoteGeneration = "note_generation"
)

type Deps struct {
	Consultations consultation.Repository
	Profiles      profile.Repository
	Storage       storage.Storage
	Transcriber   TranscriptionProvider
	Notes         NoteGenerator
	Screener      *safety.Screener
	Publisher     events.Publisher
	Alerts        alert.Notifier
}

// Stages executes transcription and note generation jobs.
type Stages struct {
	Deps
	now func() time.Time
}

func NewStages(d Deps) *Stages {
	if d.Publisher == nil {
		d.Publisher = events.Noop{}
	}
	return &Stages{Deps: d, now: func() time.Time { return time.Now().UTC() }}
}

// Register binds the stages to their job kinds.
func (s *Stages) Register(r *jobs.Runner) {
	r.Handle(jobs.KindTranscribe, s.Transcribe)
	r.Handle(jobs.KindGenerateNote, s.GenerateNote)
}

// load returns the consultation when j still targets its current generation.
func (s *Stages) load(ctx context.Context, j *jobs.Job) (*consultation.Consultation, error) {
	c, err := s.Consultations.Get(ctx, j.ConsultationID)
	if err != nil {
		return nil, err
	}
	if c.Generation != j.Generation {
		log.Ctx(ctx).Info().Int64("current_generation", c.Generation).Msg("stale job, newer upload exists")
		return nil, jobs.ErrSuperseded
	}
	if c.Status != consultation.StatusInProgress {
		log.Ctx(ctx).Info().Str("status", string(c.Status)).Msg("consultation not in progress, skipping stage")
		return nil, jobs.ErrSuperseded
	}
	return c, nil
}

// Transcribe runs the transcription provider once over the job's audio file. It never retries;
// a failure marks the consultation FAILED for manual review.
func (s *Stages) Transcribe(ctx context.Context, j *jobs.Job) error {
	c, err := s.load(ctx, j)
	if err != nil {
		return s.outcome(stageTranscription, err)
	}

	audio, err := s.audioFor(ctx, j)
	if err != nil {
		return s.fail(ctx, stageTranscription, j, err)
	}
	data, err := s.Storage.Load(ctx, audio.StorageRef)
	if err != nil {
		return s.fail(ctx, stageTranscription, j, apperr.Internal("load recording", err))
	}

	t, err := s.Transcriber.Transcribe(ctx, data, audio.FileName)
	if err != nil {
		return s.fail(ctx, stageTranscription, j, apperr.Provider("transcription", err))
	}

	text := t.Text
	audio.Transcription = &text
	audio.TranscriptConfidence = t.Confidence
	audio.Utterances = t.Utterances
	saved, err := s.Consultations.SaveTranscript(ctx, audio, j.Generation)
	if err != nil {
		return s.fail(ctx, stageTranscription, j, err)
	}
	if !saved {
		return s.outcome(stageTranscription, jobs.ErrSuperseded)
	}

	log.Ctx(ctx).Info().Int("chars", len(text)).Str("audio_file_id", audio.ID.String()).Msg("transcript stored")
	e := events.New(events.TranscriptReady, c.ID)
	e.AppointmentID, e.Generation = c.AppointmentID, c.Generation
	events.Emit(ctx, s.Publisher, e)

	if audio.FileType == consultation.FilePreVisit {
		s.previsitTriage(ctx, c, text)
	}
	return s.outcome(stageTranscription, nil)
}

// previsitTriage classifies a patient's recorded symptoms before the visit.
func (s *Stages) previsitTriage(ctx context.Context, c *consultation.Consultation, text string) {
	res := triage.EvaluateTranscript(text)
	c.ApplyTriage(res)
	if err := s.Consultations.SaveTriage(ctx, c); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("pre-visit triage not saved")
		return
	}
	metrics.RecordTriage("pre_visit", string(res.Category))
	s.triaged(ctx, c, nil, stageTranscription)
}

func (s *Stages) audioFor(ctx context.Context, j *jobs.Job) (*consultation.AudioFile, error) {
	if j.AudioFileID != nil {
		return s.Consultations.GetAudio(ctx, *j.AudioFileID)
	}
	files, err := s.Consultations.ListAudio(ctx, j.ConsultationID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperr.NotFound("audio file for consultation", j.ConsultationID)
	}
	return files[0], nil
}

// GenerateNote drafts the structured note and commits it with backfilled demographics,
// draft fields, triage and the safety screen in one transaction.
func (s *Stages) GenerateNote(ctx context.Context, j *jobs.Job) error {
	c, err := s.load(ctx, j)
	if err != nil {
		return s.outcome(stageNoteGeneration, err)
	}

	files, err := s.Consultations.ListAudio(ctx, c.ID)
	if err != nil {
		return s.fail(ctx, stageNoteGeneration, j, err)
	}
	source, ok := transcriptSource(files)
	if !ok {
		return s.fail(ctx, stageNoteGeneration, j, apperr.Validation("no transcript available for note generation"))
	}

	patient, err := s.Profiles.GetPatient(ctx, c.PatientID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return s.fail(ctx, stageNoteGeneration, j, err)
	}

	now := s.now()
	draft, err := s.Notes.GenerateNote(ctx, NoteRequest{
		ConsultationID: c.ID,
		Transcript:     *source.Transcription,
		Utterances:     source.Utterances,
		Patient:        patientContext(patient, now),
	})
	if err != nil {
		return s.fail(ctx, stageNoteGeneration, j, apperr.Provider("note generation", err))
	}

	note := &consultation.StructuredNote{
		ID:             uuid.New(),
		ConsultationID: c.ID,
		Sections:       draft.SOAP,
		RiskFlags:      lo.Compact(draft.RiskFlags),
		Confidence:     draft.Confidence,
		GeneratedByAI:  true,
	}

	var backfilled *profile.Patient
	if patient != nil && profile.Backfill(patient, profile.Evidence{
		Age:    draft.Demographics.Age,
		Gender: draft.Demographics.Gender,
		Texts:  []string{draft.SOAP.Subjective},
	}, now) {
		backfilled = patient
	}

	fillDrafts(c, draft)

	res := triage.EvaluateNote(triage.NoteInput{
		Subjective: draft.SOAP.Subjective,
		Assessment: draft.SOAP.Assessment,
		RiskFlags:  note.RiskFlags,
	})
	c.ApplyTriage(res)

	screen := s.Screener.Screen(ctx, draft.SOAP.Plan, screeningPatient(patient))
	c.SafetyWarnings = screen.Warnings
	c.SafetyStatus = screen.Status

	if err := c.Transition(consultation.StatusInProgress); err != nil {
		return s.fail(ctx, stageNoteGeneration, j, err)
	}
	c.RequiresManualReview = false

	applied, err := s.Consultations.CommitNote(ctx, consultation.NoteCommit{
		Consultation: c,
		Note:         note,
		Patient:      backfilled,
	})
	if err != nil {
		return s.fail(ctx, stageNoteGeneration, j, err)
	}
	if !applied {
		return s.outcome(stageNoteGeneration, jobs.ErrSuperseded)
	}

	log.Ctx(ctx).Info().
		Str("triage", string(res.Category)).
		Int("score", res.Score).
		Str("safety_status", string(screen.Status)).
		Int("warnings", len(screen.Warnings)).
		Bool("demographics_backfilled", backfilled != nil).
		Msg("structured note committed")

	metrics.RecordTriage("post_note", string(res.Category))
	e := events.New(events.NoteGenerated, c.ID)
	e.AppointmentID, e.Generation = c.AppointmentID, c.Generation
	events.Emit(ctx, s.Publisher, e)
	s.triaged(ctx, c, patient, stageNoteGeneration)
	return s.outcome(stageNoteGeneration, nil)
}

// triaged publishes the new triage and alerts on CRITICAL.
func (s *Stages) triaged(ctx context.Context, c *consultation.Consultation, p *profile.Patient, stage string) {
	e := events.New(events.TriageUpdated, c.ID)
	e.AppointmentID = c.AppointmentID
	e.TriageCategory = string(c.TriageCategory)
	e.UrgencyScore = c.UrgencyScore
	events.Emit(ctx, s.Publisher, e)

	if c.TriageCategory != triage.Critical {
		return
	}
	crit := alert.Critical{ConsultationID: c.ID, Reason: c.TriageReason, Stage: stage}
	if c.UrgencyScore != nil {
		crit.Score = *c.UrgencyScore
	}
	if p != nil {
		crit.PatientName = p.DisplayName()
	}
	alert.Send(ctx, s.Alerts, crit)
}

// transcriptSource prefers the newest consultation recording and falls back to any transcribed file.
func transcriptSource(files []*consultation.AudioFile) (*consultation.AudioFile, bool) {
	if a, ok := lo.Find(files, func(a *consultation.AudioFile) bool {
		return a.FileType == consultation.FileConsultation && a.HasTranscript()
	}); ok {
		return a, true
	}
	return lo.Find(files, func(a *consultation.AudioFile) bool { return a.HasTranscript() })
}

func patientContext(p *profile.Patient, now time.Time) PatientContext {
	if p == nil {
		return PatientContext{}
	}
	pc := PatientContext{Name: p.DisplayName(), Gender: p.Gender, History: p.MedicalHistory}
	if age, ok := p.Age(now); ok {
		pc.Age = &age
	}
	return pc
}

func screeningPatient(p *profile.Patient) safety.Patient {
	if p == nil {
		return safety.Patient{}
	}
	return safety.Patient{CurrentMedications: p.CurrentMedications, MedicalHistory: p.MedicalHistory}
}

var markup = strings.NewReplacer("**", "", "__", "")

// fillDrafts sets diagnosis and prescription from the summary, falling back to the SOAP
// sections. Notes stay empty for the clinician to write.
func fillDrafts(c *consultation.Consultation, d *NoteDraft) {
	diagnosis, _ := lo.Coalesce(strings.TrimSpace(d.Summary.Diagnosis), strings.TrimSpace(d.SOAP.Assessment))
	prescription, _ := lo.Coalesce(strings.TrimSpace(d.Summary.Prescription), strings.TrimSpace(d.SOAP.Plan))
	c.Diagnosis = cleanMarkup(diagnosis)
	c.Prescription = cleanMarkup(prescription)
	c.Notes = ""
}

func cleanMarkup(s string) string {
	return strings.TrimSpace(markup.Replace(s))
}

// fail marks the consultation FAILED for the job's generation. A stale job's failure is dropped.
func (s *Stages) fail(ctx context.Context, stage string, j *jobs.Job, cause error) error {
	marked, err := s.Consultations.MarkFailed(ctx, j.ConsultationID, j.Generation)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("could not mark consultation failed")
		return s.outcome(stage, errors.Join(cause, err))
	}
	if !marked {
		log.Ctx(ctx).Info().AnErr("cause", cause).Msg("stage failed after being superseded")
		return s.outcome(stage, jobs.ErrSuperseded)
	}

	log.Ctx(ctx).Error().Err(cause).Str("stage", stage).Msg("stage failed, consultation needs manual review")
	e := events.New(events.ConsultationFailed, j.ConsultationID)
	e.Status, e.Generation = string(consultation.StatusFailed), j.Generation
	events.Emit(ctx, s.Publisher, e)
	return s.outcome(stage, cause)
}

func (s *Stages) outcome(stage string, err error) error {
	switch {
	case err == nil:
		metrics.RecordStage(stage, "succeeded")
	case errors.Is(err, jobs.ErrSuperseded):
		metrics.RecordStage(stage, "superseded")
	default:
		metrics.RecordStage(stage, "failed")
	}
	return err
}
