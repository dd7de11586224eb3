package adapter

import "time"

// Clock abstracts wall-clock reads and timers so ledger timestamps,
// cursor save deadlines and poll intervals can be driven by tests
//
//go:generate mockgen -source=clock.go -destination=../mocks/clock.go -package=mocks -mock_names=Clock=MockClock
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration
	// After returns a channel that fires once after d
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

// NewClock returns a Clock backed by the system time
func NewClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
