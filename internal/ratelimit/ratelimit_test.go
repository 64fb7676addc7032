package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisabledLimiterAlwaysAllows(t *testing.T) {
	l := New(0)
	for i := 0; i < 5; i++ {
		assert.True(t, l.Check("example.com"))
	}
}

func TestAllowsWithinCapacityThenBlocks(t *testing.T) {
	l := New(3)
	assert.True(t, l.Check("a"))
	assert.True(t, l.Check("a"))
	assert.True(t, l.Check("a"))
	assert.False(t, l.Check("a"))
}

func TestRefillOverTime(t *testing.T) {
	l := New(10)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Check("a"))
	}
	assert.False(t, l.Check("a"))

	// Force the bucket's last refill into the past to simulate elapsed time
	// rather than sleeping in the test.
	l.mu.Lock()
	l.buckets["a"].lastRefill = time.Now().Add(-200 * time.Millisecond)
	l.mu.Unlock()

	assert.True(t, l.Check("a"))
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(1)
	assert.True(t, l.Check("a"))
	assert.False(t, l.Check("a"))
	assert.True(t, l.Check("b"))
}

func TestCleanupEvictsIdleBuckets(t *testing.T) {
	l := New(5)
	l.Check("stale")
	l.mu.Lock()
	l.buckets["stale"].lastRefill = time.Now().Add(-10 * time.Minute)
	l.mu.Unlock()

	l.Cleanup()

	l.mu.Lock()
	_, exists := l.buckets["stale"]
	l.mu.Unlock()
	assert.False(t, exists)
}
