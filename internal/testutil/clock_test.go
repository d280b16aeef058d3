package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtEpoch(t *testing.T) {
	clock := NewClock()
	assert.Equal(t, Epoch, clock.Peek())
}

func TestClock_NowAdvancesBySteps(t *testing.T) {
	clock := NewClock()

	first := clock.Now()
	second := clock.Now()

	assert.Equal(t, Epoch, first)
	assert.Equal(t, Epoch.Add(time.Second), second)
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Peek())
}

func TestClock_AdvanceAndSet(t *testing.T) {
	clock := NewClock()

	clock.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour), clock.Peek())

	later := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestFrozenClock_NeverMoves(t *testing.T) {
	clock := NewFrozenClock(Epoch)
	for i := 0; i < 5; i++ {
		assert.Equal(t, Epoch, clock.Now())
	}
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock()
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				now := clock.Now()
				mu.Lock()
				assert.False(t, seen[now], "duplicate time %v", now)
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, Epoch.Add(numGoroutines*callsPerGoroutine*time.Second), clock.Peek())
}

func TestFixedIDGenerator(t *testing.T) {
	assert.Equal(t, "req-1", NewFixedIDGenerator("req-1").Generate())
	assert.Equal(t, "test-request-id", NewFixedIDGenerator("").Generate())
}
