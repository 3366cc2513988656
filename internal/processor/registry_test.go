package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r.Add(Entry{ID: "b", StartTime: t0.Add(time.Second)})
	r.Add(Entry{ID: "a", StartTime: t0})
	assert.Equal(t, 2, r.Len())

	list := r.List()
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	e, ok := r.Get("b")
	assert.True(t, ok)
	assert.Equal(t, t0.Add(time.Second), e.StartTime)

	r.Remove("b")
	r.Remove("missing")
	assert.Equal(t, 1, r.Len())

	assert.Equal(t, 1, r.Clear())
	assert.Zero(t, r.Len())
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newRateLimiter(2, time.Minute, func() time.Time { return now })

	assert.True(t, l.allow())
	now = now.Add(30 * time.Second)
	assert.True(t, l.allow())
	assert.False(t, l.allow())

	// the first hit leaves the window
	now = now.Add(31 * time.Second)
	assert.True(t, l.allow())
	assert.False(t, l.allow())
}

func TestRateLimiterDisabled(t *testing.T) {
	l := newRateLimiter(0, time.Minute, time.Now)
	for range 1000 {
		assert.True(t, l.allow())
	}
}
