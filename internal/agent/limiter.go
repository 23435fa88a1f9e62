package agent

import (
	"context"

	"golang.org/x/time/rate"

	"clinical-scribe/internal/pipeline"
	"clinical-scribe/internal/safety"
)

// Limiter throttles outbound provider calls shared by every worker.
type Limiter struct {
	limiter *rate.Limiter
}

func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

type limitedTranscriber struct {
	next pipeline.TranscriptionProvider
	l    *Limiter
}

func (l *Limiter) Transcriber(next pipeline.TranscriptionProvider) pipeline.TranscriptionProvider {
	return &limitedTranscriber{next: next, l: l}
}

func (t *limitedTranscriber) Transcribe(ctx context.Context, audio []byte, fileName string) (*pipeline.Transcript, error) {
	if err := t.l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Transcribe(ctx, audio, fileName)
}

type limitedNotes struct {
	next pipeline.NoteGenerator
	l    *Limiter
}

func (l *Limiter) Notes(next pipeline.NoteGenerator) pipeline.NoteGenerator {
	return &limitedNotes{next: next, l: l}
}

func (n *limitedNotes) GenerateNote(ctx context.Context, req pipeline.NoteRequest) (*pipeline.NoteDraft, error) {
	if err := n.l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return n.next.GenerateNote(ctx, req)
}

type limitedChecker struct {
	next safety.InteractionChecker
	l    *Limiter
}

func (l *Limiter) Checker(next safety.InteractionChecker) safety.InteractionChecker {
	return &limitedChecker{next: next, l: l}
}

func (c *limitedChecker) CheckInteractions(ctx context.Context, currentMeds, plan string) ([]safety.Warning, error) {
	if err := c.l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.CheckInteractions(ctx, currentMeds, plan)
}
