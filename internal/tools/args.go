package tools

import (
	"fmt"
	"time"
)

// Argument timestamps arrive as "YYYY-MM-DD HH:MM:SS" (seconds
// optional) in the clinic's local timezone.
const (
	timeLayout      = "2006-01-02 15:04:05"
	timeLayoutShort = "2006-01-02 15:04"
)

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func stringArgDefault(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func timeArg(args map[string]any, key string, loc *time.Location) (time.Time, error) {
	s := stringArg(args, key)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing required field %q", key)
	}
	return parseLocalTime(s, loc)
}

// optionalTimeArg returns the zero time when the field is absent.
func optionalTimeArg(args map[string]any, key string, loc *time.Location) (time.Time, error) {
	s := stringArg(args, key)
	if s == "" {
		return time.Time{}, nil
	}
	return parseLocalTime(s, loc)
}

func parseLocalTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{timeLayout, timeLayoutShort, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q, expected YYYY-MM-DD HH:MM:SS", s)
}

// displayTime renders an instant the way patient emails and chat
// replies show it.
func displayTime(t time.Time) string {
	return t.Format("02 January 2006, 15:04") + " WIB"
}
