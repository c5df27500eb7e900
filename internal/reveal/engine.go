// Package reveal implements the typed-text renderer: an already-fetched answer
// is shown as a progressively lengthening prefix on a fixed tick interval.
package reveal

import (
	"sync"
	"time"
)

// Sink receives reveal frames. OnReveal is called once per tick with the
// visible prefix; OnDone is called exactly once when the text is fully
// revealed. Callbacks run on the engine's goroutine while it holds internal
// state, so they must not call back into the engine.
type Sink interface {
	OnReveal(prefix string)
	OnDone(full string)
}

// Engine plays at most one reveal sequence at a time. Starting a new sequence
// cancels the pending one before any new tick is scheduled, so two tick
// sequences never run concurrently against the same display target. Each
// sequence moves Idle -> Revealing -> Done; a cancelled sequence never reaches
// Done and never notifies.
type Engine struct {
	mu       sync.Mutex
	interval time.Duration
	current  *run
}

type run struct {
	cancel chan struct{}
}

// New creates an engine that advances one rune per interval tick.
func New(interval time.Duration) *Engine {
	return &Engine{interval: interval}
}

// Reveal starts revealing text, superseding any sequence still in progress.
// Empty text transitions directly to Done and still notifies.
func (e *Engine) Reveal(text string, sink Sink) {
	e.mu.Lock()
	e.cancelLocked()

	if text == "" {
		e.mu.Unlock()
		sink.OnDone("")
		return
	}

	r := &run{cancel: make(chan struct{})}
	e.current = r
	e.mu.Unlock()

	go e.play(r, text, sink)
}

// Cancel stops the sequence in progress, if any, without notifying its sink.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
}

func (e *Engine) cancelLocked() {
	if e.current != nil {
		close(e.current.cancel)
		e.current = nil
	}
}

func (e *Engine) play(r *run, text string, sink Sink) {
	runes := []rune(text)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for i := 1; i <= len(runes); i++ {
		select {
		case <-r.cancel:
			return
		case <-ticker.C:
		}
		if !e.emit(r, func() { sink.OnReveal(string(runes[:i])) }) {
			return
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != r {
		return
	}
	e.current = nil
	sink.OnDone(text)
}

// emit runs fn under the engine lock unless r has been superseded. A run that
// lost the race between its tick firing and cancellation must stay silent.
func (e *Engine) emit(r *run, fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != r {
		return false
	}
	fn()
	return true
}
