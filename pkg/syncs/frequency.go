package syncs

import (
	"errors"
	"fmt"
	"time"
)

// MinFrequency is the floor for sync frequencies. Anything shorter would
// let a single misconfigured collection storm the workflow engine.
const MinFrequency = 5 * time.Minute

var (
	// ErrInvalidFrequency is returned for unparseable frequency strings
	ErrInvalidFrequency = errors.New("invalid sync frequency")
	// ErrFrequencyTooShort is returned for frequencies under MinFrequency
	ErrFrequencyTooShort = errors.New("sync frequency is too short")
)

// ParseFrequency validates a frequency string ("30m", "1h", "24h") and
// returns its interval.
func ParseFrequency(frequency string) (time.Duration, error) {
	interval, err := time.ParseDuration(frequency)
	if err != nil || interval <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, frequency)
	}
	if interval < MinFrequency {
		return 0, fmt.Errorf("%w: %q is under the %s floor", ErrFrequencyTooShort, frequency, MinFrequency)
	}
	return interval, nil
}

// ComputeIntervalOffset validates the frequency and derives the schedule's
// phase offset from wall-clock time:
//
//	offset = (minutes*60000 + seconds*1000 + milliseconds) mod interval_ms
//
// The offset is deterministic for a given (frequency, now), so re-creating
// a schedule after a restart reproduces the same firing instants without
// persisting absolute next-fire timestamps.
func ComputeIntervalOffset(frequency string, now time.Time) (time.Duration, time.Duration, error) {
	interval, err := ParseFrequency(frequency)
	if err != nil {
		return 0, 0, err
	}

	nowMs := int64(now.Minute())*60_000 +
		int64(now.Second())*1_000 +
		int64(now.Nanosecond()/int(time.Millisecond))
	offsetMs := nowMs % interval.Milliseconds()

	return interval, time.Duration(offsetMs) * time.Millisecond, nil
}
