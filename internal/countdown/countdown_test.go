package countdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemainingClampsAtZero(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	assert.Equal(t, 45*time.Minute, Remaining(start, time.Hour, start.Add(15*time.Minute)))
	assert.Equal(t, time.Duration(0), Remaining(start, time.Hour, start.Add(time.Hour)))
	assert.Equal(t, time.Duration(0), Remaining(start, time.Hour, start.Add(2*time.Hour)))
}

func TestFrameAt(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	f := FrameAt(start, time.Hour, start.Add(10*time.Minute+500*time.Millisecond))
	assert.Equal(t, int64(50*60), f.Seconds)
	assert.Equal(t, "50:00", f.Display)
	assert.False(t, f.Elapsed)

	f = FrameAt(start, 90*time.Minute, start)
	assert.Equal(t, "1:30:00", f.Display)

	f = FrameAt(start, time.Hour, start.Add(time.Hour))
	assert.True(t, f.Elapsed)
	assert.Equal(t, "00:00", f.Display)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "00:00", Format(-5))
	assert.Equal(t, "00:59", Format(59))
	assert.Equal(t, "59:59", Format(3599))
	assert.Equal(t, "1:00:00", Format(3600))
}

func TestWatchStopsWhenElapsed(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	current := start.Add(time.Hour - 2*time.Second)
	now := func() time.Time { return current }

	ticks := make(chan time.Time)
	frames := Watch(context.Background(), start, time.Hour, now, ticks)

	first := <-frames
	assert.Equal(t, int64(2), first.Seconds)

	current = current.Add(time.Second)
	ticks <- current
	second := <-frames
	assert.Equal(t, int64(1), second.Seconds)

	current = current.Add(time.Second)
	ticks <- current
	last := <-frames
	assert.True(t, last.Elapsed)

	_, open := <-frames
	assert.False(t, open)
}

func TestWatchStopsOnCancel(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())

	frames := Watch(ctx, start, time.Hour, func() time.Time { return start }, make(chan time.Time))
	<-frames
	cancel()

	select {
	case _, open := <-frames:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
