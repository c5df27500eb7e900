// Package quota enforces the per-session question limit.
package quota

import (
	"sync"
)

// Tracker counts accepted question submissions within one session. The count
// never exceeds the total and is never decremented mid-session; a failed
// network call still consumes quota.
type Tracker struct {
	mu    sync.Mutex
	used  int
	total int
}

// NewTracker creates a tracker with the deployment's fixed question total.
func NewTracker(total int) *Tracker {
	return &Tracker{total: total}
}

// Used returns the number of questions consumed so far.
func (t *Tracker) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Total returns the fixed per-session limit.
func (t *Tracker) Total() int {
	return t.total
}

// Remaining returns how many questions may still be asked.
func (t *Tracker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total - t.used
}

// Increment consumes one question and returns the new used count, clamped at
// the total.
func (t *Tracker) Increment() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used < t.total {
		t.used++
	}
	return t.used
}

// Reset starts a fresh quota. Called when session identity changes, never when
// the conversation view is cleared.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.used = 0
}
