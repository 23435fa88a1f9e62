// Package agent holds the HTTP clients for the speech-to-text service and the LLM that drafts
// notes and screens prescriptions.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clinical-scribe/internal/platform/retry"
)

const (
	providerNotes  = "note_generation"
	providerSafety = "interaction_check"
)

// errQuota marks a response the provider asked us to retry later.
var errQuota = errors.New("provider rate limited")

// LLMClient talks to an OpenAI-compatible chat completions endpoint.
type LLMClient struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	retry      retry.Config
	log        CallLog
}

type LLMConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewLLMClient(cfg LLMConfig, log CallLog) *LLMClient {
	if log == nil {
		log = NopCallLog{}
	}
	return &LLMClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		retry: retry.Config{
			MaxAttempts:   5,
			InitialDelay:  4 * time.Second,
			MaxDelay:      60 * time.Second,
			BackoffFactor: 2,
		},
		log: log,
	}
}

// WithRetry replaces the quota backoff schedule.
func (c *LLMClient) WithRetry(cfg retry.Config) *LLMClient {
	c.retry = cfg
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete sends one prompt and returns the assistant's text. Quota and server errors are retried
// with backoff; other failures return at once.
func (c *LLMClient) complete(ctx context.Context, provider string, consultationID uuid.UUID, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", err
	}

	var content string
	err = retry.Do(ctx, c.retry, func() error {
		start := time.Now()
		text, err := c.send(ctx, payload)
		c.log.Record(ctx, Call{ConsultationID: consultationID, Provider: provider, Model: c.model, Latency: time.Since(start), Err: err})
		if err != nil {
			if errors.Is(err, errQuota) {
				return err
			}
			return &retry.Permanent{Err: err}
		}
		content = text
		return nil
	}, func(attempt int, err error, next time.Duration) {
		log.Ctx(ctx).Warn().Err(err).Str("provider", provider).Int("attempt", attempt).Dur("retry_in", next).Msg("llm quota hit, backing off")
	})
	return content, err
}

func (c *LLMClient) send(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %s - %s", errQuota, resp.Status, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llm error: %s - %s", resp.Status, string(body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// decodeJSON parses model output, tolerating a surrounding markdown code fence.
func decodeJSON(content string, dst any) error {
	if err := json.Unmarshal([]byte(content), dst); err == nil {
		return nil
	}
	cleaned := strings.NewReplacer("```json", "", "```", "").Replace(content)
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), dst); err != nil {
		return fmt.Errorf("model returned invalid JSON: %w", err)
	}
	return nil
}
