package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var got sendMessageReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	err := NewClient("TOKEN").WithBaseURL(srv.URL+"/").SendMessage(context.Background(), 42, "CRITICAL TRIAGE")

	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, "CRITICAL TRIAGE", got.Text)
	assert.Empty(t, got.ParseMode)
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewClient("TOKEN").WithBaseURL(srv.URL).SendMessage(context.Background(), 1, "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
