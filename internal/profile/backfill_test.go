package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func TestBackfillAge(t *testing.T) {
	tests := []struct {
		name    string
		ev      Evidence
		wantAge int
		wantSet bool
	}{
		{"structured age", Evidence{Age: intPtr(45)}, 45, true},
		{"structured out of range falls back to text", Evidence{Age: intPtr(140), Texts: []string{"an 84-year-old woman"}}, 84, true},
		{"years old pattern", Evidence{Texts: []string{"Patient is 62 years old"}}, 62, true},
		{"yo pattern", Evidence{Texts: []string{"30 yo male"}}, 30, true},
		{"age label pattern", Evidence{Texts: []string{"Age: 51"}}, 51, true},
		{"gender age pattern", Evidence{Texts: []string{"female 38 presenting with cough"}}, 38, true},
		{"implausible age ignored", Evidence{Texts: []string{"150 years"}}, 0, false},
		{"nothing found", Evidence{Texts: []string{"no demographics"}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Patient{}
			Backfill(p, tt.ev, now)
			if !tt.wantSet {
				assert.Nil(t, p.DateOfBirth)
				return
			}
			require.NotNil(t, p.DateOfBirth)
			assert.Equal(t, now.AddDate(0, 0, -tt.wantAge*365), *p.DateOfBirth)
		})
	}
}

func TestBackfillNeverOverwritesBirthDate(t *testing.T) {
	dob := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Patient{DateOfBirth: &dob, Gender: "Female"}

	changed := Backfill(p, Evidence{Age: intPtr(30), Gender: "male", Texts: []string{"a 30 year old man"}}, now)

	assert.False(t, changed)
	assert.Equal(t, dob, *p.DateOfBirth)
	assert.Equal(t, "Female", p.Gender)
}

func TestBackfillGender(t *testing.T) {
	tests := []struct {
		name    string
		current string
		ev      Evidence
		want    string
	}{
		{"structured m", "", Evidence{Gender: "m"}, "Male"},
		{"structured female", "unknown", Evidence{Gender: "FEMALE"}, "Female"},
		{"structured other kept", "", Evidence{Gender: "Non-binary"}, "Non-binary"},
		{"text male", "", Evidence{Texts: []string{"Gentleman presents with cough"}, GenderFromText: true}, "Male"},
		{"text female not confused with male", "Unknown", Evidence{Texts: []string{"a female patient"}, GenderFromText: true}, "Female"},
		{"text ignored without opt in", "", Evidence{Texts: []string{"the man at the pharmacy"}}, ""},
		{"existing value kept", "Female", Evidence{Gender: "male"}, "Female"},
		{"structured unknown ignored", "", Evidence{Gender: "unknown"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Patient{Gender: tt.current}
			Backfill(p, tt.ev, now)
			if tt.want == "" {
				assert.Equal(t, tt.current, p.Gender)
				return
			}
			assert.Equal(t, tt.want, p.Gender)
		})
	}
}

func TestAge(t *testing.T) {
	dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{DateOfBirth: &dob}

	age, ok := p.Age(now)
	assert.True(t, ok)
	assert.Equal(t, 35, age)

	_, ok = (&Patient{}).Age(now)
	assert.False(t, ok)
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "JOHSMI", Initials("john", "Smith"))
	assert.Equal(t, "LIXXX", Initials("Li", ""))
}

func TestDisplayName(t *testing.T) {
	p := &Patient{FirstName: "mARY", LastName: "o'neil"}
	assert.Equal(t, "Mary O'neil", p.DisplayName())
}
