// Package httpapi holds the JSON response helpers shared by the HTTP handlers.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clinical-scribe/internal/apperr"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// WriteError maps err's kind to a status code. Internal causes are logged, never returned.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	body := map[string]any{"code": kind}
	var ae *apperr.Error
	if apperr.As(err, &ae) && kind != apperr.KindInternal {
		body["error"] = ae.Message
		if len(ae.Details) > 0 {
			body["details"] = ae.Details
		}
	} else {
		body["error"] = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	WriteJSON(w, status, body)
}

// DecodeJSON reads a JSON body into dst and rejects unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validationf("invalid request body: %v", err)
	}
	return nil
}

// PathID parses the named chi URL parameter as a UUID.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.Validationf("invalid %s", name)
	}
	return id, nil
}
