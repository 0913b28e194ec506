// Package clock provides the time and randomness port the bus engine uses
// for backoff scheduling and synchronous waits, so tests can substitute a
// deterministic implementation instead of wall-clock time.
package clock

import (
	"math/rand"
	"sync"
	"time"
)

// Clock is the time/randomness port required by pkg/bus. Micros must be
// monotonic within a single process run; it need not relate to wall-clock
// time across restarts.
type Clock interface {
	// Micros returns a monotonically increasing microsecond counter.
	Micros() uint32
	// Sleep blocks the calling goroutine for d.
	Sleep(d time.Duration)
	// Rand returns a pseudo-random value in [0, n).
	Rand(n uint32) uint32
}

// System is the default Clock, backed by the standard library.
type System struct {
	start time.Time
	mu    sync.Mutex
	rng   *rand.Rand
}

// NewSystem returns a ready-to-use System clock.
func NewSystem() *System {
	return &System{
		start: time.Now(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Micros implements Clock.
func (s *System) Micros() uint32 {
	return uint32(time.Since(s.start).Microseconds())
}

// Sleep implements Clock.
func (s *System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Rand implements Clock.
func (s *System) Rand(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(s.rng.Int63n(int64(n)))
}
