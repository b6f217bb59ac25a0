package dataflow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTickSpeed indicates a tick speed that cannot be parsed.
var ErrInvalidTickSpeed = errors.New("invalid tick speed")

// Speed is a symbolic tick speed.
type Speed string

const (
	// SpeedSlow ticks on a 250ms timer.
	SpeedSlow Speed = "slow"
	// SpeedNormal ticks at frame cadence.
	SpeedNormal Speed = "normal"
	// SpeedFast re-ticks as soon as the previous tick returns.
	SpeedFast Speed = "fast"
)

const (
	slowInterval  = 250 * time.Millisecond
	frameInterval = 16 * time.Millisecond
)

// TickSpeed controls how eagerly the engine repeats ticks while there is
// work. It only trades latency for throughput; results are the same at
// every speed. The zero value is normal speed.
type TickSpeed struct {
	// Preset is set for symbolic speeds.
	Preset Speed
	// Interval is the pause between ticks for numeric speeds.
	Interval time.Duration
}

// Preset tick speeds.
var (
	TickSlow   = TickSpeed{Preset: SpeedSlow}
	TickNormal = TickSpeed{Preset: SpeedNormal}
	TickFast   = TickSpeed{Preset: SpeedFast}
)

// TickEvery returns a numeric tick speed. A non-positive interval is fast.
func TickEvery(d time.Duration) TickSpeed {
	if d <= 0 {
		return TickFast
	}
	return TickSpeed{Interval: d}
}

// Delay returns the pause between two busy ticks.
func (t TickSpeed) Delay() time.Duration {
	switch t.Preset {
	case SpeedSlow:
		return slowInterval
	case SpeedFast:
		return 0
	case SpeedNormal:
		return frameInterval
	}
	if t.Interval > 0 {
		return t.Interval
	}
	return frameInterval
}

// String returns the preset name or the interval.
func (t TickSpeed) String() string {
	if t.Preset != "" {
		return string(t.Preset)
	}
	if t.Interval <= 0 {
		return string(SpeedNormal)
	}
	return t.Interval.String()
}

// ParseTickSpeed accepts "slow", "normal", "fast", a Go duration such as
// "250ms", or a bare number of milliseconds.
func ParseTickSpeed(s string) (TickSpeed, error) {
	s = strings.TrimSpace(s)
	switch Speed(strings.ToLower(s)) {
	case SpeedSlow:
		return TickSlow, nil
	case SpeedNormal, "":
		return TickNormal, nil
	case SpeedFast:
		return TickFast, nil
	}

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return TickSpeed{}, fmt.Errorf("%w: %q is negative", ErrInvalidTickSpeed, s)
		}
		return TickEvery(time.Duration(ms) * time.Millisecond), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return TickSpeed{}, fmt.Errorf("%w: %q", ErrInvalidTickSpeed, s)
	}
	if d < 0 {
		return TickSpeed{}, fmt.Errorf("%w: %q is negative", ErrInvalidTickSpeed, s)
	}
	return TickEvery(d), nil
}

// MarshalText implements encoding.TextMarshaler.
func (t TickSpeed) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TickSpeed) UnmarshalText(text []byte) error {
	parsed, err := ParseTickSpeed(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
