package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var frequencyPattern = regexp.MustCompile(`^(\d+)?\s*([A-Za-z]+)$`)

var frequencyUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "t": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

// ParseFrequency reads a fixed cadence such as "15 minutes", "15min", "H",
// "1D" or a Go duration like "15m". Calendar units (months, years) have no
// fixed length and are rejected.
func ParseFrequency(spec string) (time.Duration, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return 0, fmt.Errorf("%w: empty frequency", ErrInvalidFrequency)
	}

	var d time.Duration
	if m := frequencyPattern.FindStringSubmatch(s); m != nil {
		switch m[2] {
		case "M", "MS", "Y", "YS", "A", "AS", "Q", "QS":
			return 0, fmt.Errorf("%w: calendar unit in %q has no fixed length", ErrInvalidFrequency, spec)
		}
		unit, ok := frequencyUnits[strings.ToLower(m[2])]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalidFrequency, spec)
		}
		n := 1
		if m[1] != "" {
			v, err := strconv.Atoi(m[1])
			if err != nil {
				return 0, fmt.Errorf("%w: %q: %v", ErrInvalidFrequency, spec, err)
			}
			n = v
		}
		d = time.Duration(n) * unit
	} else {
		v, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, spec)
		}
		d = v
	}

	if d <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidFrequency, spec)
	}
	return d, nil
}
