// Package presence derives an online/offline signal from heartbeat
// recency. Pure computation, no store access.
package presence

import "time"

// DefaultWindow is how recent a heartbeat must be for a user to count as
// online. Matches the 5-minute staleness policy of the client.
const DefaultWindow = 5 * time.Minute

type Evaluator struct {
	window time.Duration
}

// New returns an evaluator with the given staleness window. A
// non-positive window falls back to DefaultWindow.
func New(window time.Duration) Evaluator {
	if window <= 0 {
		window = DefaultWindow
	}
	return Evaluator{window: window}
}

func Default() Evaluator {
	return New(DefaultWindow)
}

// IsOnline reports whether a heartbeat at lastActive counts as online at
// the given instant. A missing heartbeat is always offline, and a
// heartbeat exactly at the window edge is already stale.
func (e Evaluator) IsOnline(lastActive *time.Time, now time.Time) bool {
	if lastActive == nil {
		return false
	}
	return now.Sub(*lastActive) < e.window
}
