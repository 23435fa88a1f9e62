// Package alert notifies the on-duty clinician chat when a consultation is triaged CRITICAL.
package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Critical describes one critical triage outcome.
type Critical struct {
	ConsultationID uuid.UUID
	PatientName    string
	ClinicianName  string
	Score          int
	Reason         string
	Stage          string
}

type Notifier interface {
	NotifyCritical(ctx context.Context, c Critical) error
}

type Service struct {
	tgClient TelegramClient
	chatID   int64
}

func NewService(tg TelegramClient, chatID int64) *Service {
	return &Service{tgClient: tg, chatID: chatID}
}

func (s *Service) NotifyCritical(ctx context.Context, c Critical) error {
	if s.tgClient == nil || s.chatID == 0 {
		log.Ctx(ctx).Debug().Str("consultation_id", c.ConsultationID.String()).Msg("critical alert skipped, no chat configured")
		return nil
	}
	if err := s.tgClient.SendMessage(ctx, s.chatID, formatCritical(c)); err != nil {
		return fmt.Errorf("send critical alert: %w", err)
	}
	log.Ctx(ctx).Info().Str("consultation_id", c.ConsultationID.String()).Msg("critical alert sent")
	return nil
}

func formatCritical(c Critical) string {
	var b strings.Builder
	b.WriteString("CRITICAL TRIAGE\n")
	if c.PatientName != "" {
		fmt.Fprintf(&b, "Patient: %s\n", c.PatientName)
	}
	if c.ClinicianName != "" {
		fmt.Fprintf(&b, "Clinician: %s\n", c.ClinicianName)
	}
	fmt.Fprintf(&b, "Score: %d\n", c.Score)
	if c.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", c.Reason)
	}
	if c.Stage != "" {
		fmt.Fprintf(&b, "Stage: %s\n", c.Stage)
	}
	fmt.Fprintf(&b, "Consultation: %s", c.ConsultationID)
	return b.String()
}

// Send delivers the alert and logs a failure. Alerts never fail the caller's operation.
func Send(ctx context.Context, n Notifier, c Critical) {
	if n == nil {
		return
	}
	if err := n.NotifyCritical(ctx, c); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("consultation_id", c.ConsultationID.String()).Msg("critical alert failed")
	}
}
