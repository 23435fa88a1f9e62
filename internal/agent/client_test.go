package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-scribe/internal/consultation"
	"clinical-scribe/internal/pipeline"
	"clinical-scribe/internal/platform/retry"
)

type recordingLog struct {
	mu    sync.Mutex
	calls []Call
}

func (l *recordingLog) Record(_ context.Context, c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "visit.mp3", header.Filename)
		assert.Equal(t, "ID3", string(data))
		_, _ = w.Write([]byte(`{"text":"hello doctor","confidence":0.91,"utterances":[{"speaker":"A","text":"hello doctor","start":0,"end":1200}]}`))
	}))
	defer srv.Close()

	log := &recordingLog{}
	tr, err := NewSTTClient(srv.URL, 5*time.Second, log).Transcribe(context.Background(), []byte("ID3"), "visit.mp3")

	require.NoError(t, err)
	assert.Equal(t, "hello doctor", tr.Text)
	require.NotNil(t, tr.Confidence)
	assert.InDelta(t, 0.91, *tr.Confidence, 0.0001)
	assert.Equal(t, []consultation.Utterance{{Speaker: "A", Text: "hello doctor", Start: 0, End: 1200}}, tr.Utterances)
	require.Len(t, log.calls, 1)
	assert.NoError(t, log.calls[0].Err)
}

func TestTranscribeErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	log := &recordingLog{}
	_, err := NewSTTClient(srv.URL, 5*time.Second, log).Transcribe(context.Background(), []byte("x"), "a.wav")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(1), hits.Load())
	require.Len(t, log.calls, 1)
	assert.Error(t, log.calls[0].Err)
}

func TestGenerateNote(t *testing.T) {
	id := uuid.New()
	age := 52
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		prompt = req.Messages[1].Content
		chatReply(w, "```json\n"+`{
			"soap_note": {"subjective": "Cough for 3 days", "objective": "Clear lungs", "assessment": "Viral URI", "plan": "- Fluids"},
			"ui_summary": {"diagnosis": "Viral URI", "prescription": "Paracetamol 500mg PRN", "notes": ""},
			"demographics": {"age": "52 years", "gender": "female"},
			"low_confidence": ["PRN"],
			"risk_flags": ["smoker"],
			"confidence": 0.8
		}`+"\n```")
	}))
	defer srv.Close()

	log := &recordingLog{}
	client := NewLLMClient(LLMConfig{URL: srv.URL, APIKey: "secret", Model: "test-model", Timeout: 5 * time.Second}, log)
	draft, err := client.GenerateNote(context.Background(), pipeline.NoteRequest{
		ConsultationID: id,
		Transcript:     "raw text",
		Utterances:     []consultation.Utterance{{Speaker: "A", Text: "I have a cough"}, {Speaker: "B", Text: "Since when?"}},
		Patient:        pipeline.PatientContext{Name: "Ana Ruiz", Age: &age},
	})

	require.NoError(t, err)
	assert.Equal(t, "Viral URI", draft.SOAP.Assessment)
	assert.Equal(t, "Paracetamol 500mg PRN", draft.Summary.Prescription)
	require.NotNil(t, draft.Demographics.Age)
	assert.Equal(t, 52, *draft.Demographics.Age)
	assert.Equal(t, "female", draft.Demographics.Gender)
	assert.Equal(t, []string{"smoker"}, draft.RiskFlags)
	assert.Contains(t, prompt, "Speaker A: I have a cough\nSpeaker B: Since when?")
	assert.Contains(t, prompt, "Name: Ana Ruiz\nAge: 52")
	require.Len(t, log.calls, 1)
	assert.Equal(t, id, log.calls[0].ConsultationID)
	assert.Equal(t, "test-model", log.calls[0].Model)
}

func TestGenerateNoteRetriesQuota(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		chatReply(w, `{"soap_note": {"assessment": "Migraine"}}`)
	}))
	defer srv.Close()

	log := &recordingLog{}
	client := NewLLMClient(LLMConfig{URL: srv.URL, Timeout: time.Second}, log).WithRetry(fastRetry())
	draft, err := client.GenerateNote(context.Background(), pipeline.NoteRequest{Transcript: "headache"})

	require.NoError(t, err)
	assert.Equal(t, "Migraine", draft.SOAP.Assessment)
	assert.Nil(t, draft.Demographics.Age)
	assert.Equal(t, int32(3), hits.Load())
	assert.Len(t, log.calls, 3)
}

func TestGenerateNoteClientErrorIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewLLMClient(LLMConfig{URL: srv.URL, Timeout: time.Second}, nil).WithRetry(fastRetry())
	_, err := client.GenerateNote(context.Background(), pipeline.NoteRequest{Transcript: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), hits.Load())
}

func TestGenerateNoteInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, "Sure! Here is your note: subjective ...")
	}))
	defer srv.Close()

	_, err := NewLLMClient(LLMConfig{URL: srv.URL, Timeout: time.Second}, nil).GenerateNote(context.Background(), pipeline.NoteRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestCheckInteractions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(body), "warfarin"))
		chatReply(w, `{"warnings":[{"type":"interaction","message":"Bleeding risk with NSAIDs","drug":"ibuprofen","severity":"high"}]}`)
	}))
	defer srv.Close()

	warnings, err := NewLLMClient(LLMConfig{URL: srv.URL, Timeout: time.Second}, nil).
		CheckInteractions(context.Background(), "warfarin", "ibuprofen 400mg")

	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "ibuprofen", warnings[0].Drug)
	assert.Equal(t, "high", warnings[0].Severity)
}

func TestFlexAge(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{`45`, intPtr(45)},
		{`45.0`, intPtr(45)},
		{`"45"`, intPtr(45)},
		{`"45 years"`, intPtr(45)},
		{`null`, nil},
		{`"unknown"`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var a flexAge
			require.NoError(t, json.Unmarshal([]byte(tt.in), &a))
			assert.Equal(t, tt.want, a.Value)
		})
	}
}

func intPtr(v int) *int { return &v }

func TestLimiterWaitsOnContext(t *testing.T) {
	l := NewLimiter(0.001, 1)
	stub := &stubTranscriber{}
	tr := l.Transcriber(stub)

	_, err := tr.Transcribe(context.Background(), nil, "a.wav")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = tr.Transcribe(ctx, nil, "a.wav")

	assert.Error(t, err)
	assert.Equal(t, 1, stub.calls)
}

type stubTranscriber struct{ calls int }

func (s *stubTranscriber) Transcribe(context.Context, []byte, string) (*pipeline.Transcript, error) {
	s.calls++
	return &pipeline.Transcript{}, nil
}

func TestDBCallLogSwallowsInsertErrors(t *testing.T) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m.ExpectExec(`INSERT INTO "ai_logs"`).WillReturnError(assert.AnError)

	assert.NotPanics(t, func() {
		NewDBCallLog(db).Record(context.Background(), Call{Provider: providerNotes, Latency: time.Second, Err: assert.AnError})
	})
	assert.NoError(t, m.ExpectationsWereMet())
}
