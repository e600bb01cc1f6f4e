package producer

import (
	"testing"
	"time"
)

func TestThrottleState_ExtendsWindowButNeverShrinks(t *testing.T) {
	ts := newThrottleState(2)
	ts.Notify(100 * time.Millisecond)
	first := ts.PauseUntil()

	ts.Notify(50 * time.Millisecond) // smaller, same event: must not shrink
	if !ts.PauseUntil().Equal(first) {
		t.Fatalf("smaller duration within the same window shrank the pause: got %v want %v", ts.PauseUntil(), first)
	}

	ts.Notify(200 * time.Millisecond) // larger, same event: must extend
	if !ts.PauseUntil().After(first) {
		t.Fatal("larger duration within the same window did not extend the pause")
	}
}

func TestThrottleState_ObserveElapsedClearsWindow(t *testing.T) {
	ts := newThrottleState(1)
	ts.Notify(10 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	ts.ObserveElapsed(time.Now())
	if !ts.PauseUntil().IsZero() {
		t.Fatal("expected elapsed window to be cleared")
	}
}

func TestThrottleState_MultiplierScalesPause(t *testing.T) {
	ts := newThrottleState(2)
	before := time.Now()
	ts.Notify(500 * time.Millisecond)
	until := ts.PauseUntil()
	if until.Sub(before) < 1000*time.Millisecond {
		t.Fatalf("expected pause of at least D*multiplier=1000ms, got %v", until.Sub(before))
	}
}
