package consumer

import (
	"context"
	"testing"
	"time"
)

func TestIoTracker_WaitZero_ReturnsOnceDrained(t *testing.T) {
	tr := NewIoTracker()
	tr.Add(3)

	done := make(chan bool, 1)
	go func() {
		done <- tr.WaitZero(context.Background(), nil)
	}()

	time.Sleep(10 * time.Millisecond)
	tr.Done()
	tr.Done()
	tr.Done()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected WaitZero to observe zero")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitZero did not return after the tracker drained")
	}
}

func TestIoTracker_WaitZero_TimesOut(t *testing.T) {
	tr := NewIoTracker()
	tr.Add(1)

	timeout := make(chan time.Time)
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(timeout)
	}()

	if tr.WaitZero(context.Background(), timeout) {
		t.Fatal("expected WaitZero to time out with work still outstanding")
	}
}
