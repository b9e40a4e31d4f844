package reservation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// NormalizeTime accepts HH:MM or HH:MM:SS and returns HH:MM.
func NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	layout := TimeLayout
	if len(s) == 8 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", fmt.Errorf("%w: time must be HH:MM", ErrInvalidRequest)
	}
	if t.Second() != 0 {
		return "", fmt.Errorf("%w: time must be on a whole minute", ErrInvalidRequest)
	}
	return t.Format(TimeLayout), nil
}

// NormalizeTimes normalizes, de-duplicates and sorts slot times. Invalid entries are dropped.
func NormalizeTimes(times []string) []string {
	seen := make(map[string]struct{}, len(times))
	out := make([]string, 0, len(times))
	for _, raw := range times {
		t, err := NormalizeTime(raw)
		if err != nil {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
