package profile

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,3})[\s-]?(?:years?|yrs?|yo|y/o)(?:[\s-]?old)?`),
	regexp.MustCompile(`age[:\s]+(\d{1,3})\b`),
	regexp.MustCompile(`(?:male|female)\s+(\d{1,3})\b`),
}

var (
	maleWords   = regexp.MustCompile(`\b(male|man|boy|gentleman)\b`)
	femaleWords = regexp.MustCompile(`\b(female|woman|girl|lady)\b`)
)

// Evidence is what a pipeline step knows about the patient's demographics.
// Structured values are preferred; Texts are searched for an age when they are missing.
// Gender is read from Texts only when GenderFromText is set.
type Evidence struct {
	Age            *int
	Gender         string
	Texts          []string
	GenderFromText bool
}

// Backfill fills an unset birth date and an unset or "unknown" gender from ev.
// Existing values are never overwritten. It reports whether p changed.
func Backfill(p *Patient, ev Evidence, now time.Time) bool {
	changed := false
	text := strings.ToLower(strings.Join(ev.Texts, " "))

	if p.DateOfBirth == nil {
		if age, ok := extractAge(ev.Age, text); ok {
			dob := now.AddDate(0, 0, -age*365)
			p.DateOfBirth = &dob
			changed = true
		}
	}

	if current := strings.TrimSpace(p.Gender); current == "" || strings.EqualFold(current, "unknown") {
		if g := extractGender(ev.Gender, text, ev.GenderFromText); g != "" {
			p.Gender = g
			changed = true
		}
	}
	return changed
}

func plausibleAge(n int) bool {
	return n > 0 && n < 120
}

func extractAge(structured *int, text string) (int, bool) {
	if structured != nil && plausibleAge(*structured) {
		return *structured, true
	}
	for _, re := range agePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && plausibleAge(n) {
			return n, true
		}
	}
	return 0, false
}

func extractGender(structured, text string, fromText bool) string {
	if g := NormalizeGender(structured); g != "" {
		return g
	}
	if !fromText {
		return ""
	}
	switch {
	case maleWords.MatchString(text):
		return "Male"
	case femaleWords.MatchString(text):
		return "Female"
	}
	return ""
}

// NormalizeGender maps common variants to a canonical label. Blank and "unknown" map to "".
func NormalizeGender(g string) string {
	g = strings.TrimSpace(g)
	switch strings.ToLower(g) {
	case "", "unknown":
		return ""
	case "m", "male":
		return "Male"
	case "f", "female":
		return "Female"
	}
	return g
}
