package schedule

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// clinicWeek mirrors the production availability table: evenings on
// weekdays except Tuesday, Saturday mornings, closed Sunday.
func clinicWeek(t *testing.T) *Weekly {
	t.Helper()
	w, err := ParseWeekly(map[string]string{
		"monday":    "16:00-20:00",
		"tuesday":   "closed",
		"wednesday": "16:00-20:00",
		"thursday":  "16:00-20:00",
		"friday":    "16:00-20:00",
		"saturday":  "09:00-13:00",
	})
	if err != nil {
		t.Fatalf("ParseWeekly() error: %v", err)
	}
	return w
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestValidate(t *testing.T) {
	w := clinicWeek(t)

	tests := []struct {
		name     string
		start    string
		duration time.Duration
		want     Violation
	}{
		// 2025-06-02 is a Monday, open 16:00-20:00.
		{"inside window", "2025-06-02 17:00", 30 * time.Minute, ViolationNone},
		{"at opening", "2025-06-02 16:00", 30 * time.Minute, ViolationNone},
		{"ends exactly at closing", "2025-06-02 19:30", 30 * time.Minute, ViolationNone},
		{"full window", "2025-06-02 16:00", 4 * time.Hour, ViolationNone},

		{"before opening", "2025-06-02 15:59", 30 * time.Minute, ViolationTooEarly},
		{"morning of open day", "2025-06-02 09:00", 30 * time.Minute, ViolationTooEarly},
		{"at closing", "2025-06-02 20:00", 30 * time.Minute, ViolationTooLateStart},
		{"after closing", "2025-06-02 21:00", 30 * time.Minute, ViolationTooLateStart},
		{"crosses closing", "2025-06-02 19:45", 30 * time.Minute, ViolationTooLateEnd},
		{"one minute over", "2025-06-02 19:31", 30 * time.Minute, ViolationTooLateEnd},

		// 2025-06-03 is a Tuesday, closed.
		{"closed day", "2025-06-03 10:00", 30 * time.Minute, ViolationClosedDay},
		{"closed day inside another day's window", "2025-06-03 17:00", 30 * time.Minute, ViolationClosedDay},
		// 2025-06-08 is a Sunday, absent from the table.
		{"absent day", "2025-06-08 10:00", 30 * time.Minute, ViolationClosedDay},

		// Saturday has its own window.
		{"saturday morning ok", "2025-06-07 09:00", 60 * time.Minute, ViolationNone},
		{"saturday afternoon", "2025-06-07 14:00", 30 * time.Minute, ViolationTooLateStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.Validate(mustTime(t, tt.start), tt.duration)
			if tt.want == ViolationNone {
				if err != nil {
					t.Fatalf("Validate() = %v, want admissible", err)
				}
				return
			}

			var rej *RejectionError
			if !errors.As(err, &rej) {
				t.Fatalf("Validate() = %v, want *RejectionError", err)
			}
			if rej.Violation != tt.want {
				t.Errorf("violation = %d, want %d (message %q)", rej.Violation, tt.want, rej.Message)
			}
			if rej.Message == "" {
				t.Error("rejection message must be user-facing, got empty")
			}
		})
	}
}

func TestValidate_NonPositiveDuration(t *testing.T) {
	w := clinicWeek(t)

	// Duration <= 0 rejects regardless of time-of-day, even inside an
	// open window or on a closed day.
	starts := []string{"2025-06-02 17:00", "2025-06-03 10:00", "2025-06-02 03:00"}
	for _, s := range starts {
		for _, d := range []time.Duration{0, -30 * time.Minute} {
			err := w.Validate(mustTime(t, s), d)
			var rej *RejectionError
			if !errors.As(err, &rej) || rej.Violation != ViolationBadDuration {
				t.Errorf("Validate(%s, %v) = %v, want bad-duration rejection", s, d, err)
			}
		}
	}
}

func TestValidate_ClosedDayNamesTheDay(t *testing.T) {
	w := clinicWeek(t)

	err := w.Validate(mustTime(t, "2025-06-03 10:00"), 30*time.Minute)
	if err == nil || !strings.Contains(err.Error(), "Tuesday") {
		t.Errorf("closed-day rejection should name Tuesday, got %v", err)
	}
}

func TestParseWeekly_Errors(t *testing.T) {
	tests := []struct {
		name  string
		table map[string]string
	}{
		{"unknown day", map[string]string{"funday": "09:00-10:00"}},
		{"missing dash", map[string]string{"monday": "09:00"}},
		{"closes before opening", map[string]string{"monday": "20:00-16:00"}},
		{"bad clock", map[string]string{"monday": "25:00-26:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWeekly(tt.table); err == nil {
				t.Error("ParseWeekly() should reject the table")
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	w := clinicWeek(t)
	got := w.Describe()

	if !strings.Contains(got, "Monday: 16:00-20:00") {
		t.Errorf("Describe() missing Monday window:\n%s", got)
	}
	if !strings.Contains(got, "Tuesday: closed") {
		t.Errorf("Describe() missing closed Tuesday:\n%s", got)
	}
	// Week order starts Monday.
	if strings.Index(got, "Monday") > strings.Index(got, "Sunday") {
		t.Errorf("Describe() should start the week on Monday:\n%s", got)
	}
}
