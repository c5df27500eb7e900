package quota

import (
	"testing"
)

func TestIncrementCountsToTotal(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(3)
	for n := 1; n <= 3; n++ {
		if got := tracker.Increment(); got != n {
			t.Fatalf("Increment %d returned %d", n, got)
		}
	}
	if tracker.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", tracker.Remaining())
	}
}

func TestIncrementClampsAtTotal(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(3)
	// used() after N attempts must equal min(N, total), whatever the outcome
	// of the individual calls was.
	for n := 0; n < 10; n++ {
		tracker.Increment()
	}
	if got := tracker.Used(); got != 3 {
		t.Fatalf("expected used clamped at 3, got %d", got)
	}
	if got := tracker.Remaining(); got != 0 {
		t.Fatalf("expected 0 remaining, got %d", got)
	}
}

func TestResetStartsFreshQuota(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(5)
	tracker.Increment()
	tracker.Increment()
	tracker.Reset()

	if tracker.Used() != 0 {
		t.Fatalf("expected 0 used after reset, got %d", tracker.Used())
	}
	if tracker.Remaining() != 5 {
		t.Fatalf("expected full quota after reset, got %d", tracker.Remaining())
	}
}

func TestTotalIsFixed(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(5)
	tracker.Increment()
	if tracker.Total() != 5 {
		t.Fatalf("total changed: %d", tracker.Total())
	}
}
