package gateway

import (
	"time"

	"golang.org/x/time/rate"
)

// classWindow tracks the sliding window of executed calls for one quota class
// and enforces the minimum spacing between calls. It is only touched by the
// gateway worker (and by Stats, under the gateway mutex).
type classWindow struct {
	limit  int
	window time.Duration
	spacer *rate.Limiter
	stamps []time.Time
}

func newClassWindow(limit ClassLimit) *classWindow {
	w := &classWindow{
		limit:  limit.Limit,
		window: limit.Window,
	}
	if limit.MinSpacing > 0 {
		w.spacer = rate.NewLimiter(rate.Every(limit.MinSpacing), 1)
	}
	return w
}

// waitTime returns how long the worker must pause before the next call may
// execute. It consumes one spacing token, so it must be called exactly once
// per attempt. When the window is exhausted the wait runs until the oldest
// request falls out of the window.
func (w *classWindow) waitTime(now time.Time) time.Duration {
	w.prune(now)

	var wait time.Duration
	if w.limit > 0 && len(w.stamps) >= w.limit {
		wait = w.stamps[0].Add(w.window).Sub(now)
	}
	if w.spacer != nil {
		if d := w.spacer.ReserveN(now, 1).DelayFrom(now); d > wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// record registers an executed call. Every attempt counts against the quota,
// including ones the server rejects.
func (w *classWindow) record(now time.Time) {
	w.prune(now)
	w.stamps = append(w.stamps, now)
}

// used reports how many calls sit inside the current window.
func (w *classWindow) used(now time.Time) int {
	w.prune(now)
	return len(w.stamps)
}

func (w *classWindow) prune(now time.Time) {
	if w.window <= 0 {
		return
	}
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
