package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"clinical-scribe/internal/alert"
	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/appointment"
	"clinical-scribe/internal/billing"
	"clinical-scribe/internal/jobs"
	"clinical-scribe/internal/platform/codec"
	"clinical-scribe/internal/platform/events"
	"clinical-scribe/internal/platform/metrics"
	"clinical-scribe/internal/platform/storage"
	"clinical-scribe/internal/profile"
	"clinical-scribe/internal/safety"
	"clinical-scribe/internal/triage"
)

// Scheduler records a background job and hands it to the workers.
type Scheduler interface {
	Submit(ctx context.Context, s jobs.Spec) (*jobs.Job, error)
}

type Service interface {
	Book(ctx context.Context, req appointment.BookRequest) (*Booking, error)
	UpdateAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, req appointment.StatusRequest) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Detail, error)
	IngestAudio(ctx context.Context, req UploadRequest) (*Ingested, error)
	Reprocess(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
	TriggerNotes(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Consultation, error)
	OverrideTriage(ctx context.Context, id uuid.UUID, req TriageRequest) (*Consultation, error)
	Finalize(ctx context.Context, id uuid.UUID) (*Finalized, error)
	ListJobs(ctx context.Context, id uuid.UUID) ([]*jobs.Job, error)
}

type Booking struct {
	Appointment  *appointment.Appointment `json:"appointment"`
	Consultation *Consultation            `json:"consultation"`
}

type Ingested struct {
	Consultation *Consultation `json:"consultation"`
	AudioFile    *AudioFile    `json:"audio_file"`
	Job          *jobs.Job     `json:"job"`
}

type Finalized struct {
	Consultation *Consultation `json:"consultation"`
	Bill         *billing.Bill `json:"bill"`
}

type Deps struct {
	Repo         Repository
	Profiles     profile.Repository
	Appointments appointment.Repository
	Jobs         jobs.Repository
	Scheduler    Scheduler
	Bills        billing.Repository
	Storage      storage.Storage
	Codec        codec.Normalizer
	Publisher    events.Publisher
	Alerts       alert.Notifier
	DefaultFee   float64
}

type service struct {
	Deps
	now func() time.Time
}

func NewService(d Deps) Service {
	if d.Publisher == nil {
		d.Publisher = events.Noop{}
	}
	return &service{Deps: d, now: func() time.Time { return time.Now().UTC() }}
}

// Book creates an appointment and its consultation, triaging the reported symptoms up front.
func (s *service) Book(ctx context.Context, req appointment.BookRequest) (*Booking, error) {
	now := s.now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	patient, err := s.Profiles.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Profiles.GetClinician(ctx, req.ClinicianID); err != nil {
		return nil, err
	}

	a := &appointment.Appointment{
		ID:          uuid.New(),
		PatientID:   req.PatientID,
		ClinicianID: req.ClinicianID,
		ScheduledAt: req.ScheduledAt.UTC(),
		Reason:      req.Symptoms,
		Status:      appointment.StatusScheduled,
		CreatedAt:   now,
	}
	c := &Consultation{
		ID:             uuid.New(),
		AppointmentID:  a.ID,
		PatientID:      req.PatientID,
		ClinicianID:    req.ClinicianID,
		Status:         StatusScheduled,
		Notes:          req.Symptoms,
		SafetyWarnings: []safety.Warning{},
		SafetyStatus:   safety.StatusSkipped,
		CreatedAt:      now,
	}
	res := triage.EvaluateTranscript(req.Symptoms)
	c.ApplyTriage(res)

	if err := s.Repo.Create(ctx, a, c); err != nil {
		return nil, err
	}
	metrics.RecordTriage("pre_visit", string(res.Category))
	log.Ctx(ctx).Info().
		Str("appointment_id", a.ID.String()).
		Str("consultation_id", c.ID.String()).
		Str("triage", string(res.Category)).
		Msg("appointment booked")

	e := events.New(events.AppointmentBooked, c.ID)
	e.AppointmentID, e.Status = a.ID, string(a.Status)
	e.TriageCategory, e.UrgencyScore = string(c.TriageCategory), c.UrgencyScore
	events.Emit(ctx, s.Publisher, e)
	s.alertIfCritical(ctx, c, patient, "booking")

	return &Booking{Appointment: a, Consultation: c}, nil
}

// UpdateAppointmentStatus moves the appointment and carries check-in and cancellation over
// to the consultation.
func (s *service) UpdateAppointmentStatus(ctx context.Context, appointmentID uuid.UUID, req appointment.StatusRequest) (*appointment.Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a, err := s.Appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := a.Transition(req.Status); err != nil {
		return nil, err
	}

	c, err := s.Repo.GetByAppointment(ctx, appointmentID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	var changed *Consultation
	if c != nil {
		switch req.Status {
		case appointment.StatusCheckedIn, appointment.StatusInProgress:
			if c.Status == StatusScheduled {
				c.Status = StatusInProgress
				now := s.now()
				c.StartTime = &now
				changed = c
			}
		case appointment.StatusCancelled, appointment.StatusNoShow:
			if CanTransition(c.Status, StatusCancelled) {
				c.Status = StatusCancelled
				changed = c
			}
		}
	}

	if err := s.Repo.SaveAppointmentStatus(ctx, a, changed); err != nil {
		return nil, err
	}

	consultationID := uuid.Nil
	if c != nil {
		consultationID = c.ID
	}
	e := events.New(events.AppointmentStatus, consultationID)
	e.AppointmentID, e.Status = a.ID, string(a.Status)
	events.Emit(ctx, s.Publisher, e)
	return a, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err := s.Repo.ListAudio(ctx, id)
	if err != nil {
		return nil, err
	}
	note, err := s.Repo.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []*AudioFile{}
	}
	return &Detail{Consultation: c, AudioFiles: files, Note: note}, nil
}

// IngestAudio stores a new recording with clean-slate semantics and schedules transcription.
// It returns as soon as the job is queued.
func (s *service) IngestAudio(ctx context.Context, req UploadRequest) (*Ingested, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := s.Repo.Get(ctx, req.ConsultationID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, StatusInProgress) {
		return nil, apperr.StateConflict("consultation", c.Status, StatusInProgress)
	}

	now := s.now()
	data, ext := s.normalize(ctx, req.Data, req.Ext())
	fileName := StoredFileName(s.patientOrNil(ctx, c.PatientID), s.clinicianOrNil(ctx, c.ClinicianID), now, ext)

	ref, err := s.Storage.Save(ctx, c.ID.String()+"/"+fileName, data, mimeTypeFor(ext))
	if err != nil {
		return nil, apperr.Internal("store recording", err)
	}

	audio := &AudioFile{
		ID:             uuid.New(),
		ConsultationID: c.ID,
		UploadedBy:     req.UploadedBy,
		FileType:       req.Source,
		FileName:       fileName,
		StorageRef:     ref,
		FileSize:       int64(len(data)),
		MimeType:       mimeTypeFor(ext),
		Utterances:     []Utterance{},
		UploadedAt:     now,
	}
	updated, removed, err := s.Repo.ReplaceAudio(ctx, c.ID, audio)
	if err != nil {
		s.deleteBlob(ctx, ref)
		return nil, err
	}
	for _, old := range removed {
		s.deleteBlob(ctx, old)
	}

	job, err := s.Scheduler.Submit(ctx, jobs.Spec{
		ConsultationID: c.ID,
		Kind:           jobs.KindTranscribe,
		AudioFileID:    &audio.ID,
		Generation:     updated.Generation,
	})
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Str("consultation_id", c.ID.String()).
		Str("file_name", fileName).
		Int64("generation", updated.Generation).
		Int("replaced_files", len(removed)).
		Msg("audio ingested")

	e := events.New(events.AudioIngested, c.ID)
	e.AppointmentID, e.Status, e.Generation = c.AppointmentID, string(updated.Status), updated.Generation
	events.Emit(ctx, s.Publisher, e)

	return &Ingested{Consultation: updated, AudioFile: audio, Job: job}, nil
}

// normalize converts formats other than mp3 and wav, keeping the original when conversion fails.
func (s *service) normalize(ctx context.Context, data []byte, ext string) ([]byte, string) {
	if s.Codec == nil || !codec.NeedsNormalizing(ext) {
		return data, ext
	}
	out, err := s.Codec.Normalize(ctx, data, ext)
	if err != nil || len(out) == 0 {
		log.Ctx(ctx).Warn().Err(err).Str("ext", ext).Msg("audio normalization failed, keeping original")
		return data, ext
	}
	return out, ".mp3"
}

func (s *service) deleteBlob(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.Storage.Delete(ctx, ref); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("ref", ref).Msg("orphaned recording not deleted")
	}
}

func (s *service) patientOrNil(ctx context.Context, id uuid.UUID) *profile.Patient {
	p, err := s.Profiles.GetPatient(ctx, id)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("patient profile unavailable")
		return nil
	}
	return p
}

func (s *service) clinicianOrNil(ctx context.Context, id uuid.UUID) *profile.Clinician {
	c, err := s.Profiles.GetClinician(ctx, id)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("clinician profile unavailable")
		return nil
	}
	return c
}

// consultationAudio is the newest CONSULTATION recording.
func consultationAudio(files []*AudioFile) (*AudioFile, bool) {
	return lo.Find(files, func(a *AudioFile) bool { return a.FileType == FileConsultation })
}

// Reprocess re-runs transcription on the consultation recording. It is the explicit way out of FAILED.
func (s *service) Reprocess(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	files, err := s.Repo.ListAudio(ctx, id)
	if err != nil {
		return nil, err
	}
	audio, ok := consultationAudio(files)
	if !ok {
		if _, err := s.Repo.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperr.NotFound("consultation audio for consultation", id)
	}

	c, err := s.Repo.Restart(ctx, id, audio.ID)
	if err != nil {
		return nil, err
	}
	job, err := s.Scheduler.Submit(ctx, jobs.Spec{
		ConsultationID: id,
		Kind:           jobs.KindTranscribe,
		AudioFileID:    &audio.ID,
		Generation:     c.Generation,
	})
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("consultation_id", id.String()).Int64("generation", c.Generation).Msg("reprocessing requested")
	e := events.New(events.ConsultationUpdated, id)
	e.AppointmentID, e.Status, e.Generation = c.AppointmentID, string(c.Status), c.Generation
	events.Emit(ctx, s.Publisher, e)
	return job, nil
}

// TriggerNotes schedules note generation over the stored transcript.
func (s *service) TriggerNotes(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	c, err := s.Repo.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Scheduler.Submit(ctx, jobs.Spec{
		ConsultationID: id,
		Kind:           jobs.KindGenerateNote,
		Generation:     c.Generation,
	})
}

// Update applies clinician edits. An edited transcript counts as verified.
func (s *service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Consultation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Notes != nil || req.Diagnosis != nil || req.Prescription != nil {
		if req.Notes != nil {
			c.Notes = *req.Notes
		}
		if req.Diagnosis != nil {
			c.Diagnosis = *req.Diagnosis
		}
		if req.Prescription != nil {
			c.Prescription = *req.Prescription
		}
		if err := s.Repo.SaveDrafts(ctx, c); err != nil {
			return nil, err
		}
	}

	if req.Transcript != nil {
		files, err := s.Repo.ListAudio(ctx, id)
		if err != nil {
			return nil, err
		}
		audio, ok := consultationAudio(files)
		if !ok {
			if len(files) == 0 {
				return nil, apperr.NotFound("audio file for consultation", id)
			}
			audio = files[0]
		}
		if err := s.Repo.SaveTranscriptEdit(ctx, audio.ID, *req.Transcript); err != nil {
			return nil, err
		}
	}

	events.Emit(ctx, s.Publisher, events.New(events.ConsultationUpdated, id))
	return c, nil
}

func (s *service) OverrideTriage(ctx context.Context, id uuid.UUID, req TriageRequest) (*Consultation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	res, err := triage.Manual(req.Category, req.Score, req.Reason)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ApplyTriage(res)
	if err := s.Repo.SaveTriage(ctx, c); err != nil {
		return nil, err
	}
	metrics.RecordTriage("manual", string(res.Category))

	e := events.New(events.TriageUpdated, id)
	e.AppointmentID = c.AppointmentID
	e.TriageCategory, e.UrgencyScore = string(c.TriageCategory), c.UrgencyScore
	events.Emit(ctx, s.Publisher, e)
	s.alertIfCritical(ctx, c, nil, "manual override")
	return c, nil
}

// Finalize signs the consultation off, runs a last demographic backfill and bills it once.
// Finalizing a COMPLETED consultation again only makes sure the bill exists.
func (s *service) Finalize(ctx context.Context, id uuid.UUID) (*Finalized, error) {
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if c.Status != StatusCompleted {
		if err := c.Transition(StatusCompleted); err != nil {
			return nil, err
		}
		c.EndTime = &now
	}

	a, err := s.Appointments.GetByID(ctx, c.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := a.AdvanceTo(appointment.StatusCompleted); err != nil {
		return nil, err
	}

	note, err := s.Repo.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	var backfilled *profile.Patient
	if p := s.patientOrNil(ctx, c.PatientID); p != nil {
		texts := []string{c.Diagnosis, c.Notes}
		if note != nil {
			texts = append(texts, note.Sections.Subjective, note.Sections.Objective, note.Sections.Assessment, note.Sections.Plan)
		}
		if profile.Backfill(p, profile.Evidence{Texts: texts, GenderFromText: true}, now) {
			backfilled = p
		}
	}

	bill := billing.New(c.ID, billing.Amount(s.clinicianOrNil(ctx, c.ClinicianID), s.DefaultFee), now)
	created, err := s.Repo.Finalize(ctx, FinalizeCommit{
		Consultation: c,
		Appointment:  a,
		Patient:      backfilled,
		Bill:         bill,
	})
	if err != nil {
		return nil, err
	}
	if created {
		metrics.RecordBillCreated()
	} else {
		bill, err = s.Bills.GetByConsultation(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	log.Ctx(ctx).Info().
		Str("consultation_id", id.String()).
		Bool("bill_created", created).
		Float64("amount", bill.Amount).
		Msg("consultation finalized")

	e := events.New(events.ConsultationClosed, id)
	e.AppointmentID, e.Status = c.AppointmentID, string(c.Status)
	events.Emit(ctx, s.Publisher, e)
	return &Finalized{Consultation: c, Bill: bill}, nil
}

func (s *service) ListJobs(ctx context.Context, id uuid.UUID) ([]*jobs.Job, error) {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	list, err := s.Jobs.ListByConsultation(ctx, id)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	return list, nil
}

func (s *service) alertIfCritical(ctx context.Context, c *Consultation, p *profile.Patient, stage string) {
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
