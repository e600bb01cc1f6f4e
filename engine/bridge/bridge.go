// Package bridge implements the non-owning callback back-reference pattern
// from spec.md §4.3: sarama's own callback-style signals (consumer group
// rebalance notifications, broker throttle metadata, periodic stats) are
// re-homed onto whichever ProducerEngine or ConsumerEngine owns the topic
// they concern, without bridge importing either engine package. A Target
// registers itself by topic name (a consumer engine by its group ID) at
// construction and deregisters on
// Shutdown; the registry holds no reference that keeps a Target alive past
// that point, mirroring the teacher's Runner.SubscribeAck fan-out in
// internal/pipeline/runner.go but keyed by topic instead of a flat slice.
package bridge

import (
	"sync"
	"time"

	"github.com/mohsanabbas/kflow/config"
)

// Target is implemented by engine.producer and engine.consumer entries.
// Every method must be safe to call from a goroutine the bridge does not
// own, and must not block.
type Target interface {
	Topic() string
	OnThrottle(d time.Duration)
	OnLog(level config.LogLevel, msg string, args ...any)
	OnStats(raw []byte)
	OnRebalanceError(err error)
}

// Registry maps topic name to a live Target. It holds each Target until
// Deregister removes it, which is the caller's responsibility during
// shutdown; it never closes or shuts down a Target itself.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Target
}

// NewRegistry builds an empty registry. One Registry is normally shared by
// every producer and consumer Manager in a process.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]Target)}
}

// Register associates topic with t, replacing any prior registration for
// the same topic.
func (r *Registry) Register(topic string, t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[topic] = t
}

// Deregister removes topic's association if it still points at t (a stale
// registration from an already-replaced entry is left alone).
func (r *Registry) Deregister(topic string, t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.targets[topic]; ok && cur == t {
		delete(r.targets, topic)
	}
}

func (r *Registry) lookup(topic string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[topic]
	return t, ok
}

// Throttle forwards a broker-reported throttle duration to topic's Target,
// if one is currently registered. Unregistered topics are silently
// dropped: the broker-side metadata that drives this call can lag a
// Manager's own bookkeeping by one poll cycle.
func (r *Registry) Throttle(topic string, d time.Duration) {
	if t, ok := r.lookup(topic); ok {
		t.OnThrottle(d)
	}
}

// Log forwards a log event to topic's Target.
func (r *Registry) Log(topic string, level config.LogLevel, msg string, args ...any) {
	if t, ok := r.lookup(topic); ok {
		t.OnLog(level, msg, args...)
	}
}

// Stats forwards a raw stats payload to topic's Target.
func (r *Registry) Stats(topic string, raw []byte) {
	if t, ok := r.lookup(topic); ok {
		t.OnStats(raw)
	}
}

// RebalanceError forwards a consumer-group rebalance error to topic's
// Target.
func (r *Registry) RebalanceError(topic string, err error) {
	if t, ok := r.lookup(topic); ok {
		t.OnRebalanceError(err)
	}
}
