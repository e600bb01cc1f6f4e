// Package manager implements the Manager component from spec.md §4.5: a
// topic-indexed registry fanning bulk Pause/Resume/Shutdown calls to the
// right engine, generalizing the teacher's internal/pipeline.Runner (which
// held one source and a slice of sinks) into a keyed registry holding many
// independent per-topic engines of either role.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/mohsanabbas/kflow/kerrors"
)

// Entry is the subset of a producer.Engine or consumer.Engine[K, V] a
// Manager needs: pause/resume and a graceful, timeout-bounded shutdown.
// comparable lets Manager de-duplicate an engine registered under several
// topic names (a consumer entry spanning multiple topics) before fanning
// out a bulk call.
type Entry interface {
	comparable
	Pause()
	Resume()
	Shutdown(ctx context.Context, timeout time.Duration) error
}

// Manager owns topic-name → Entry. Lookup is safe for concurrent use;
// AddTopic is only legal before Start.
type Manager[E Entry] struct {
	mu      sync.RWMutex
	byTopic map[string]E
	started bool
}

// New returns an empty Manager.
func New[E Entry]() *Manager[E] {
	return &Manager[E]{byTopic: make(map[string]E)}
}

// AddTopic registers e under each of topics. It panics if called after
// Start: topic registration is a construction-time concern, and allowing
// it afterward would let Pause/Shutdown race a registration that hasn't
// finished landing.
func (m *Manager[E]) AddTopic(e E, topics ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		panic("manager: AddTopic called after Start")
	}
	for _, t := range topics {
		m.byTopic[t] = e
	}
}

// Start freezes the topic→entry mapping; subsequent AddTopic calls panic.
func (m *Manager[E]) Start() {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
}

// Lookup returns the entry registered for topic, if any.
func (m *Manager[E]) Lookup(topicName string) (E, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byTopic[topicName]
	return e, ok
}

// Topics returns the registered topic names.
func (m *Manager[E]) Topics() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byTopic))
	for t := range m.byTopic {
		out = append(out, t)
	}
	return out
}

func (m *Manager[E]) uniqueEntries() []E {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[E]struct{}, len(m.byTopic))
	out := make([]E, 0, len(m.byTopic))
	for _, e := range m.byTopic {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Pause pauses every distinct registered entry.
func (m *Manager[E]) Pause() {
	for _, e := range m.uniqueEntries() {
		e.Pause()
	}
}

// Resume resumes every distinct registered entry.
func (m *Manager[E]) Resume() {
	for _, e := range m.uniqueEntries() {
		e.Resume()
	}
}

// PauseTopic pauses only the entry registered for topicName.
func (m *Manager[E]) PauseTopic(topicName string) error {
	e, ok := m.Lookup(topicName)
	if !ok {
		return kerrors.New(kerrors.Configuration, kerrors.CodeUnknownTopic, "no entry registered for topic "+topicName)
	}
	e.Pause()
	return nil
}

// ResumeTopic resumes only the entry registered for topicName.
func (m *Manager[E]) ResumeTopic(topicName string) error {
	e, ok := m.Lookup(topicName)
	if !ok {
		return kerrors.New(kerrors.Configuration, kerrors.CodeUnknownTopic, "no entry registered for topic "+topicName)
	}
	e.Resume()
	return nil
}

// Shutdown shuts every distinct registered entry down, waiting up to
// timeout each, and returns the first error encountered (after attempting
// all of them).
func (m *Manager[E]) Shutdown(ctx context.Context, timeout time.Duration) error {
	var first error
	for _, e := range m.uniqueEntries() {
		if err := e.Shutdown(ctx, timeout); err != nil && first == nil {
			first = err
		}
	}
	return first
}
