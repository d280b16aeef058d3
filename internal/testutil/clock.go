package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a Clock.
var Epoch = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

// Clock is a deterministic wall clock for tests.
//
// Each call to Now returns the current time and then advances it by the
// configured step, so consecutive writes get strictly increasing timestamps
// and "newest first" orderings are stable across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock starting at Epoch that advances one second per call.
func NewClock() *Clock {
	return &Clock{now: Epoch, step: time.Second}
}

// NewFrozenClock creates a clock that always returns t.
func NewFrozenClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current time and advances the clock by one step.
//
// Matches the func() time.Time shape expected by store.WithClock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the current time without advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FixedIDGenerator returns the same id every time.
//
// Used in place of the UUIDv7 request id generator so that logged and
// echoed request ids are stable in tests.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator. An empty id defaults to "test-request-id".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-request-id"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
