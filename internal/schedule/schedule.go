// Package schedule validates appointment requests against the doctor's
// fixed weekly availability. It is pure calendar arithmetic with no
// side effects, so it is tested exhaustively.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Violation identifies which availability rule a request breaks.
type Violation int

const (
	// ViolationNone means the request is admissible.
	ViolationNone Violation = iota

	// ViolationBadDuration means the requested duration is not positive.
	ViolationBadDuration

	// ViolationClosedDay means the clinic is closed the whole day.
	ViolationClosedDay

	// ViolationTooEarly means the start is before opening time.
	ViolationTooEarly

	// ViolationTooLateStart means the start is at or after closing time.
	ViolationTooLateStart

	// ViolationTooLateEnd means the computed end runs past closing time.
	ViolationTooLateEnd
)

// RejectionError reports why an appointment request was rejected. The
// message is user-facing: the model relays it to the patient verbatim.
type RejectionError struct {
	Violation Violation
	Message   string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// Window is an open interval within a single day, in minutes since
// midnight local clinic time.
type Window struct {
	Open  int
	Close int
}

// Weekly is the doctor's fixed availability table. Days without a
// window are closed.
type Weekly struct {
	windows map[time.Weekday]Window
}

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekly builds a Weekly from a config map of lowercase day names
// to "HH:MM-HH:MM" windows or "closed". Absent or "closed" days have
// no window.
func ParseWeekly(table map[string]string) (*Weekly, error) {
	w := &Weekly{windows: make(map[time.Weekday]Window)}

	for day, spec := range table {
		wd, ok := dayNames[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			return nil, fmt.Errorf("unknown day name %q in availability table", day)
		}

		spec = strings.ToLower(strings.TrimSpace(spec))
		if spec == "" || spec == "closed" {
			continue
		}

		open, close, err := parseWindow(spec)
		if err != nil {
			return nil, fmt.Errorf("availability for %s: %w", day, err)
		}
		w.windows[wd] = Window{Open: open, Close: close}
	}

	return w, nil
}

func parseWindow(spec string) (int, int, error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("window %q must be HH:MM-HH:MM or closed", spec)
	}
	open, err := parseClock(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	close, err := parseClock(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if close <= open {
		return 0, 0, fmt.Errorf("window %q closes before it opens", spec)
	}
	return open, close, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

// WindowFor returns the open window for a weekday, if any.
func (w *Weekly) WindowFor(day time.Weekday) (Window, bool) {
	win, ok := w.windows[day]
	return win, ok
}

// Describe renders the availability table for prompts and error
// messages, in week order starting Monday.
func (w *Weekly) Describe() string {
	order := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	var b strings.Builder
	for _, day := range order {
		win, ok := w.windows[day]
		if !ok {
			fmt.Fprintf(&b, "%s: closed\n", day)
			continue
		}
		fmt.Fprintf(&b, "%s: %s-%s\n", day, clockString(win.Open), clockString(win.Close))
	}
	return strings.TrimRight(b.String(), "\n")
}

func clockString(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Validate decides whether an appointment starting at start and
// running for duration fits inside the day's open window. Each
// rejection names its own boundary so the patient hears exactly what
// to change. The whole interval must fit within one day's window.
func (w *Weekly) Validate(start time.Time, duration time.Duration) error {
	if duration <= 0 {
		return &RejectionError{
			Violation: ViolationBadDuration,
			Message:   "Appointment duration must be greater than zero minutes.",
		}
	}

	day := start.Weekday()
	win, ok := w.windows[day]
	if !ok {
		return &RejectionError{
			Violation: ViolationClosedDay,
			Message:   fmt.Sprintf("The clinic is not available on %s. %s", day, availableDaysHint(w)),
		}
	}

	startMin := start.Hour()*60 + start.Minute()
	endMin := startMin + int(duration.Minutes())

	switch {
	case startMin < win.Open:
		return &RejectionError{
			Violation: ViolationTooEarly,
			Message: fmt.Sprintf("The requested time is before opening on %s: the clinic opens at %s.",
				day, clockString(win.Open)),
		}
	case startMin >= win.Close:
		return &RejectionError{
			Violation: ViolationTooLateStart,
			Message: fmt.Sprintf("The requested time is after closing on %s: the clinic closes at %s.",
				day, clockString(win.Close)),
		}
	case endMin > win.Close:
		return &RejectionError{
			Violation: ViolationTooLateEnd,
			Message: fmt.Sprintf("A %d-minute appointment starting at %s would run past closing time (%s) on %s.",
				int(duration.Minutes()), clockString(startMin), clockString(win.Close), day),
		}
	}

	return nil
}

func availableDaysHint(w *Weekly) string {
	if len(w.windows) == 0 {
		return "No days are currently open for appointments."
	}
	return "Available days:\n" + w.Describe()
}
