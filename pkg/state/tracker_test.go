package state

import (
	"testing"
	"time"
)

// trackerTestTimeout prevents tracker tests from timing out. It also sets an
// indirect performance boundary on update detection time.
const trackerTestTimeout = 1 * time.Second

// TestTracker tests Tracker.
func TestTracker(t *testing.T) {
	tracker := NewTracker()

	handoff := make(chan bool)

	go func() {
		// Wait indefinitely for a successful change from the initial tracker
		// state (1).
		firstState, poisoned := tracker.WaitForChange(1)
		if poisoned || firstState != 2 {
			handoff <- false
			return
		}
		handoff <- true

		// Wait for termination and ensure that the state doesn't change.
		finalState, poisoned := tracker.WaitForChange(firstState)
		handoff <- (finalState == firstState && poisoned)
	}()

	// Notify of a change and wait for a response.
	tracker.NotifyOfChange()
	select {
	case value := <-handoff:
		if !value {
			t.Fatal("received failure on state tracking")
		}
	case <-time.After(trackerTestTimeout):
		t.Fatal("timeout failure on state tracking")
	}

	// Poison tracking and wait for a response.
	tracker.Poison()
	select {
	case value := <-handoff:
		if !value {
			t.Fatal("received failure on tracking termination")
		}
	case <-time.After(trackerTestTimeout):
		t.Fatal("timeout failure on tracking termination")
	}
}

// TestTrackerWaitForChangeReturnsCurrentIndexWhenAlreadyChanged ensures a
// waiter that arrives after the change it's watching for doesn't block.
func TestTrackerWaitForChangeReturnsCurrentIndexWhenAlreadyChanged(t *testing.T) {
	tracker := NewTracker()
	tracker.NotifyOfChange()

	done := make(chan struct{})
	var index uint64
	var poisoned bool
	go func() {
		index, poisoned = tracker.WaitForChange(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(trackerTestTimeout):
		t.Fatal("WaitForChange blocked despite an already-observed change")
	}
	if poisoned || index != 2 {
		t.Fatalf("got (index=%d, poisoned=%t), want (2, false)", index, poisoned)
	}
}
