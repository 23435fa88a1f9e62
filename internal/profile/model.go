package profile

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	UserID             uuid.UUID  `json:"user_id" db:"user_id"`
	FirstName          string     `json:"first_name" db:"first_name"`
	LastName           string     `json:"last_name" db:"last_name"`
	DateOfBirth        *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Gender             string     `json:"gender,omitempty" db:"gender"`
	MedicalHistory     string     `json:"medical_history,omitempty" db:"medical_history"`
	CurrentMedications string     `json:"current_medications,omitempty" db:"current_medications"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

func (p *Patient) DisplayName() string {
	return titleCase(p.FirstName) + " " + titleCase(p.LastName)
}

// Age in whole years at now, or false when the birth date is unknown.
func (p *Patient) Age(now time.Time) (int, bool) {
	if p.DateOfBirth == nil {
		return 0, false
	}
	dob := *p.DateOfBirth
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age, true
}

type Clinician struct {
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	FirstName       string    `json:"first_name" db:"first_name"`
	LastName        string    `json:"last_name" db:"last_name"`
	Specialization  string    `json:"specialization,omitempty" db:"specialization"`
	ConsultationFee *float64  `json:"consultation_fee,omitempty" db:"consultation_fee"`
}

func (c *Clinician) DisplayName() string {
	return titleCase(c.FirstName) + " " + titleCase(c.LastName)
}

// Initials returns the upper-cased first three letters of first and last name,
// "XXX" standing in for a blank part.
func Initials(first, last string) string {
	return prefix3(first) + prefix3(last)
}

func prefix3(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "XXX"
	}
	r := []rune(strings.ToUpper(s))
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
