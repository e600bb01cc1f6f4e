package manager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEntry is a minimal manager.Entry for exercising Manager in isolation
// from the real producer/consumer engines.
type fakeEntry struct {
	id       int
	paused   atomic.Bool
	resumed  atomic.Int32
	shutdown atomic.Int32
	failShut bool
}

func (f *fakeEntry) Pause()  { f.paused.Store(true) }
func (f *fakeEntry) Resume() { f.resumed.Add(1); f.paused.Store(false) }
func (f *fakeEntry) Shutdown(ctx context.Context, timeout time.Duration) error {
	f.shutdown.Add(1)
	if f.failShut {
		return context.DeadlineExceeded
	}
	return nil
}

func TestManager_AddTopicAndLookup(t *testing.T) {
	m := New[*fakeEntry]()
	e := &fakeEntry{id: 1}
	m.AddTopic(e, "orders", "payments")

	got, ok := m.Lookup("orders")
	if !ok || got != e {
		t.Fatalf("expected orders to resolve to e, got %v, %v", got, ok)
	}
	if _, ok := m.Lookup("unknown"); ok {
		t.Fatal("expected unknown topic to be absent")
	}

	topics := m.Topics()
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
}

func TestManager_AddTopicPanicsAfterStart(t *testing.T) {
	m := New[*fakeEntry]()
	m.Start()

	defer func() {
		if recover() == nil {
			t.Fatal("expected AddTopic after Start to panic")
		}
	}()
	m.AddTopic(&fakeEntry{}, "late")
}

func TestManager_PauseResumeDeduplicatesSharedEntry(t *testing.T) {
	m := New[*fakeEntry]()
	shared := &fakeEntry{id: 1}
	m.AddTopic(shared, "orders", "payments", "refunds")

	m.Pause()
	if !shared.paused.Load() {
		t.Fatal("expected shared entry to be paused")
	}

	m.Resume()
	if shared.resumed.Load() != 1 {
		t.Fatalf("expected Resume to be called exactly once despite 3 topic registrations, got %d", shared.resumed.Load())
	}
}

func TestManager_PauseTopicResumeTopic(t *testing.T) {
	m := New[*fakeEntry]()
	a := &fakeEntry{id: 1}
	b := &fakeEntry{id: 2}
	m.AddTopic(a, "orders")
	m.AddTopic(b, "payments")

	if err := m.PauseTopic("orders"); err != nil {
		t.Fatalf("PauseTopic: %v", err)
	}
	if !a.paused.Load() {
		t.Fatal("expected orders entry to be paused")
	}
	if b.paused.Load() {
		t.Fatal("expected payments entry to be unaffected")
	}

	if err := m.PauseTopic("missing"); err == nil {
		t.Fatal("expected error for unregistered topic")
	}
}

func TestManager_ShutdownReturnsFirstErrorButAttemptsAll(t *testing.T) {
	m := New[*fakeEntry]()
	failing := &fakeEntry{id: 1, failShut: true}
	ok := &fakeEntry{id: 2}
	m.AddTopic(failing, "orders")
	m.AddTopic(ok, "payments")

	err := m.Shutdown(context.Background(), time.Second)
	if err == nil {
		t.Fatal("expected Shutdown to surface the failing entry's error")
	}
	if failing.shutdown.Load() != 1 || ok.shutdown.Load() != 1 {
		t.Fatal("expected Shutdown to be attempted on every distinct entry")
	}
}
