// Package clock abstracts wall time so cache freshness and retry backoff can
// be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the cache, the ESI client and the scan
// coordinator.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real implements Clock with the system time.
type Real struct{}

// Now returns the current system time in UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// Sleep blocks for d.
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// New returns the system clock.
func New() Clock { return Real{} }

// Mock is a controllable Clock. Sleep advances the clock instantly and
// records the requested duration.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewMock creates a Mock starting at start (or time.Now when zero).
func NewMock(start time.Time) *Mock {
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Mock{now: start}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = append(m.sleeps, d)
	m.now = m.now.Add(d)
}

// Advance moves the clock forward without recording a sleep.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Sleeps returns every duration passed to Sleep, in call order.
func (m *Mock) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.sleeps))
	copy(out, m.sleeps)
	return out
}
