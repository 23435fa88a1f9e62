package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"clinical-scribe/internal/consultation"
	"clinical-scribe/internal/pipeline"
)

const providerTranscription = "transcription"

// STTClient posts recordings to the speech-to-text service. It makes exactly one request per call.
type STTClient struct {
	httpClient *http.Client
	url        string
	log        CallLog
}

func NewSTTClient(url string, timeout time.Duration, log CallLog) *STTClient {
	if log == nil {
		log = NopCallLog{}
	}
	return &STTClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		log:        log,
	}
}

type sttResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Utterances []struct {
		Speaker string  `json:"speaker"`
		Text    string  `json:"text"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"utterances"`
}

func (c *STTClient) Transcribe(ctx context.Context, audio []byte, fileName string) (t *pipeline.Transcript, err error) {
	start := time.Now()
	defer func() {
		c.log.Record(ctx, Call{Provider: providerTranscription, Latency: time.Since(start), Err: err})
	}()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stt request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("stt error: %s - %s", resp.Status, string(respBody))
	}

	var result sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode stt response: %w", err)
	}

	t = &pipeline.Transcript{
		Text:       result.Text,
		Confidence: result.Confidence,
		Utterances: make([]consultation.Utterance, 0, len(result.Utterances)),
	}
	for _, u := range result.Utterances {
		t.Utterances = append(t.Utterances, consultation.Utterance{Speaker: u.Speaker, Text: u.Text, Start: u.Start, End: u.End})
	}
	return t, nil
}
