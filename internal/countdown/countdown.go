// Package countdown derives the session countdown shown to the parties.
// Values are recomputed from started_at on every tick and never decide
// whether a session may be completed.
package countdown

import (
	"context"
	"fmt"
	"time"
)

// Frame is one display value.
type Frame struct {
	Remaining time.Duration `json:"-"`
	Seconds   int64         `json:"remaining_seconds"`
	Display   string        `json:"display"`
	Elapsed   bool          `json:"elapsed"`
}

// Remaining is started_at + duration - now, clamped at zero.
func Remaining(startedAt time.Time, duration time.Duration, now time.Time) time.Duration {
	left := startedAt.Add(duration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func FrameAt(startedAt time.Time, duration time.Duration, now time.Time) Frame {
	left := Remaining(startedAt, duration, now)
	// Round up so the display only reaches 00:00 once the duration is over.
	seconds := int64((left + time.Second - 1) / time.Second)
	return Frame{
		Remaining: left,
		Seconds:   seconds,
		Display:   Format(seconds),
		Elapsed:   left == 0,
	}
}

// Format renders seconds as MM:SS, or H:MM:SS past one hour.
func Format(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Watch emits a frame immediately and then on every tick, until the
// countdown elapses or ctx is done. The channel is closed on return.
func Watch(ctx context.Context, startedAt time.Time, duration time.Duration, now func() time.Time, ticks <-chan time.Time) <-chan Frame {
	out := make(chan Frame, 1)
	go func() {
		defer close(out)
		for {
			frame := FrameAt(startedAt, duration, now())
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
			if frame.Elapsed {
				return
			}
			select {
			case <-ticks:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// WatchEverySecond is Watch driven by a one second ticker.
func WatchEverySecond(ctx context.Context, startedAt time.Time, duration time.Duration, now func() time.Time) <-chan Frame {
	ticker := time.NewTicker(time.Second)
	frames := Watch(ctx, startedAt, duration, now, ticker.C)
	out := make(chan Frame, 1)
	go func() {
		defer ticker.Stop()
		defer close(out)
		for f := range frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
