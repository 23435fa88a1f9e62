package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("bad"), KindValidation},
		{"wrapped not found", fmt.Errorf("load: %w", NotFound("consultation", "42")), KindNotFound},
		{"conflict", StateConflict("consultation", "COMPLETED", "IN_PROGRESS"), KindStateConflict},
		{"provider", Provider("transcription", errors.New("boom")), KindProvider},
		{"plain error", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestStateConflictNamesStates(t *testing.T) {
	err := StateConflict("appointment", "COMPLETED", "CHECKED_IN")

	assert.Contains(t, err.Error(), "COMPLETED")
	assert.Contains(t, err.Error(), "CHECKED_IN")
	assert.Equal(t, "COMPLETED", err.Details["current"])
	assert.Equal(t, "CHECKED_IN", err.Details["target"])
}

func TestProviderUnwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := Provider("notes", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindProvider))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidation))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(KindNotFound))
	assert.Equal(t, http.StatusConflict, HTTPStatus(KindStateConflict))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(KindProvider))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindInternal))
}
