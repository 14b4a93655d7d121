package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that decodes from text in env vars, YAML
// and TOML. A bare integer is read as milliseconds.
type Duration time.Duration

// Milliseconds builds a Duration of n milliseconds
func Milliseconds(n int64) Duration {
	return Duration(time.Duration(n) * time.Millisecond)
}

// Std returns the time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String renders the duration in Go syntax
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText parses "50ms", "1s" or a bare millisecond count
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Milliseconds(ms)
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in Go syntax
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
