package consultation

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/appointment"
	"clinical-scribe/internal/httpapi"
)

// uploadOverhead leaves room for multipart boundaries and form fields on top of the file itself.
const uploadOverhead = 1 << 20

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/appointments", h.BookAppointment)
	r.Patch("/api/appointments/{id}/status", h.UpdateAppointmentStatus)

	r.Route("/api/consultations/{id}", func(r chi.Router) {
		r.Get("/", h.GetConsultation)
		r.Patch("/", h.UpdateConsultation)
		r.Post("/audio", h.UploadAudio)
		r.Post("/reprocess", h.Reprocess)
		r.Post("/notes", h.GenerateNotes)
		r.Put("/triage", h.OverrideTriage)
		r.Post("/finalize", h.Finalize)
		r.Get("/jobs", h.ListJobs)
	})
}

func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointment.BookRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	booking, err := h.svc.Book(r.Context(), req)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, booking)
}

func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	var req appointment.StatusRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	a, err := h.svc.UpdateAppointmentStatus(r.Context(), id, req)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, d)
}

// UploadAudio accepts multipart form data with an "audio" file plus "source" and "uploaded_by" fields.
// It answers 202 once transcription is queued.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+uploadOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpapi.WriteError(w, r, apperr.Validationf("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		httpapi.WriteError(w, r, apperr.Validation("audio file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpapi.WriteError(w, r, apperr.Validationf("read upload: %v", err))
		return
	}

	source := FileType(r.FormValue("source"))
	if source == "" {
		source = FileConsultation
	}
	uploader := UploaderRole(r.FormValue("uploaded_by"))
	if uploader == "" {
		uploader = UploaderClinician
	}

	res, err := h.svc.IngestAudio(r.Context(), UploadRequest{
		ConsultationID: id,
		FileName:       header.Filename,
		Source:         source,
		UploadedBy:     uploader,
		Data:           data,
	})
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, res)
}

func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	job, err := h.svc.Reprocess(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, job)
}

func (h *Handler) GenerateNotes(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	job, err := h.svc.TriggerNotes(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, job)
}

func (h *Handler) UpdateConsultation(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	var req UpdateRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	c, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) OverrideTriage(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	var req TriageRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	c, err := h.svc.OverrideTriage(r.Context(), id, req)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	res, err := h.svc.Finalize(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "id")
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	list, err := h.svc.ListJobs(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, list)
}
