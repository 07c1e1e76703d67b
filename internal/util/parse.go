package util

import (
	"fmt"
	"strings"
	"time"
)

// ParseRunStartTime converts a UTC date ("2006-01-02") or RFC 3339 timestamp
// to Unix milliseconds, the unit the tracking server stores run start times in.
// If the string is empty, it returns 0.
func ParseRunStartTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid run start time %q (want YYYY-MM-DD)", s)
}

// SplitList splits a comma-delimited string, trimming spaces and dropping
// empty elements.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
