package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	clock := newFakeClock()
	k := NewKeyedLimiter(60, 1, time.Minute)
	k.now = clock.Now

	ok, _ := k.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := k.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = k.Allow("10.0.0.2")
	assert.True(t, ok, "不同客户端互不影响")
	assert.Equal(t, 2, k.Len())
}

func TestKeyedLimiterSweepsIdleBuckets(t *testing.T) {
	clock := newFakeClock()
	k := NewKeyedLimiter(60, 1, time.Minute)
	k.now = clock.Now
	k.lastSweep = clock.Now()

	k.Allow("a")
	k.Allow("b")
	assert.Equal(t, 2, k.Len())

	clock.Advance(2 * time.Minute)
	k.Allow("c")
	assert.Equal(t, 1, k.Len(), "空闲的桶被回收")
}
