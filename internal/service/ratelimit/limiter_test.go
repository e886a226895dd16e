package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowEvery(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })

	assert.True(t, l.AllowEvery("yahoo", time.Minute))
	assert.False(t, l.AllowEvery("yahoo", time.Minute))

	now = now.Add(30 * time.Second)
	assert.False(t, l.AllowEvery("yahoo", time.Minute))
	assert.True(t, l.AllowEvery("binance", time.Minute), "keys are independent")

	now = now.Add(30 * time.Second)
	assert.True(t, l.AllowEvery("yahoo", time.Minute))
}

func TestLimiter_ZeroIntervalAlwaysAllows(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		assert.True(t, l.AllowEvery("rss", 0))
	}
}

func TestLimiter_BurstCapacity(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewWithClock(func() time.Time { return now })
	assert.True(t, l.Allow("k", 2, 1))
	assert.True(t, l.Allow("k", 2, 1))
	assert.False(t, l.Allow("k", 2, 1))
	now = now.Add(time.Second)
	assert.True(t, l.Allow("k", 2, 1))
}
