package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"clinical-scribe/internal/apperr"
	"clinical-scribe/internal/httpapi"
	"clinical-scribe/internal/platform/events"
)

const heartbeatInterval = 30 * time.Second

// Subscriber follows consultation events; events.RedisBus is the production implementation.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan events.Event, error)
}

type Handler struct {
	svc       *Service
	sub       Subscriber
	heartbeat time.Duration
}

// NewHandler serves the queue. sub may be nil, in which case the stream endpoint is not registered.
func NewHandler(svc *Service, sub Subscriber) *Handler {
	return &Handler{svc: svc, sub: sub, heartbeat: heartbeatInterval}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/queue", h.List)
	if h.sub != nil {
		r.Get("/api/queue/stream", h.Stream)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Snapshot(r.Context())
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpapi.WriteJSON(w, http.StatusOK, entries)
}

// Stream pushes a fresh queue snapshot over server-sent events whenever a consultation changes.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpapi.WriteError(w, r, apperr.Internal("streaming not supported", nil))
		return
	}

	ctx := r.Context()
	updates, err := h.sub.Subscribe(ctx)
	if err != nil {
		httpapi.WriteError(w, r, apperr.Internal("subscribe to queue updates", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent(w, "connected", map[string]string{"status": "connected"})
	h.sendSnapshot(ctx, w)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case e, ok := <-updates:
			if !ok {
				return
			}
			log.Ctx(ctx).Debug().Str("event", string(e.Type)).Msg("queue update")
			h.sendSnapshot(ctx, w)
			flusher.Flush()
		}
	}
}

func (h *Handler) sendSnapshot(ctx context.Context, w http.ResponseWriter) {
	entries, err := h.svc.Snapshot(ctx)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("queue snapshot failed")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeEvent(w, "queue", entries)
}

func writeEvent(w http.ResponseWriter, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Warn().Err(err).Str("event", name).Msg("encode sse event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
}
