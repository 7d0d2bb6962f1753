package crypto

import "time"

// TimeProvider supplies the current time to components with timeout or
// expiry behavior, so tests can drive them with a fixed clock.
// Implementations must be safe for concurrent use.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider is the wall clock.
type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time                  { return time.Now() }
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }
