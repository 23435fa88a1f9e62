// Package queue builds the staff-facing list of active appointments ordered by clinical urgency.
package queue

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"clinical-scribe/internal/appointment"
	"clinical-scribe/internal/triage"
)

type Entry struct {
	AppointmentID  uuid.UUID          `json:"appointment_id"`
	ConsultationID *uuid.UUID         `json:"consultation_id,omitempty"`
	PatientName    string             `json:"patient_name"`
	ClinicianName  string             `json:"clinician_name"`
	TriageScore    int                `json:"triage_score"`
	TriageCategory triage.Category    `json:"triage_category"`
	TriageReason   string             `json:"triage_reason"`
	Status         appointment.Status `json:"appointment_status"`
	ScheduledAt    time.Time          `json:"scheduled_at"`
	WaitMinutes    int                `json:"wait_minutes"`
}

// Row is one active appointment as read from storage; triage fields are nil until a
// consultation has been classified.
type Row struct {
	AppointmentID  uuid.UUID
	ConsultationID *uuid.UUID
	PatientName    string
	ClinicianName  string
	Status         appointment.Status
	ScheduledAt    time.Time
	UrgencyScore   *int
	TriageCategory *string
	TriageReason   *string
}

// Rank turns rows into queue entries, most urgent first. Within a category the patient
// who has waited longest comes first.
func Rank(rows []Row, now time.Time) []Entry {
	entries := lo.Map(rows, func(r Row, _ int) Entry {
		e := Entry{
			AppointmentID:  r.AppointmentID,
			ConsultationID: r.ConsultationID,
			PatientName:    r.PatientName,
			ClinicianName:  r.ClinicianName,
			TriageScore:    triage.DefaultScore,
			TriageCategory: triage.Low,
			Status:         r.Status,
			ScheduledAt:    r.ScheduledAt,
			WaitMinutes:    waitMinutes(r.ScheduledAt, now),
		}
		if r.UrgencyScore != nil {
			e.TriageScore = *r.UrgencyScore
		}
		if r.TriageCategory != nil && *r.TriageCategory != "" {
			e.TriageCategory = triage.Category(*r.TriageCategory)
		}
		if r.TriageReason != nil {
			e.TriageReason = *r.TriageReason
		}
		return e
	})

	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].TriageCategory.Priority(), entries[j].TriageCategory.Priority()
		if pi != pj {
			return pi < pj
		}
		return entries[i].WaitMinutes > entries[j].WaitMinutes
	})
	return entries
}

func waitMinutes(scheduledAt, now time.Time) int {
	if d := now.Sub(scheduledAt); d > 0 {
		return int(d / time.Minute)
	}
	return 0
}
