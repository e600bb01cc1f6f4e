package producer

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/mohsanabbas/kflow/config"
)

// Entry is the per-topic producer state spec.md calls a ProducerTopicEntry:
// immutable identity, policy flags and scalar tunables copied out of the
// validated config once at construction, plus the small amount of runtime
// state the engine mutates on the hot path. It never outlives its Engine.
type Entry struct {
	Topic      string
	TopicHash  uint64
	Conf       config.ProducerOptions

	PreserveMessageOrder bool
	WaitForAcks          bool
	FlushWaitForAcks     bool
	SkipUnknownHeaders   bool
	AutoThrottle         bool

	MaxQueueLength     int
	ThrottleMultiplier float64
	PayloadPolicy      config.PayloadPolicy

	mu                    sync.Mutex
	LogLevel              config.LogLevel
	QueueFullNotification config.QueueFullNotification
	queueFullTrigger      bool // edge state for EdgeTriggered notification
}

func newEntry(topic string, cfg config.ProducerOptions) *Entry {
	return &Entry{
		Topic:                 topic,
		TopicHash:             xxhash.Sum64String(topic),
		Conf:                  cfg,
		PreserveMessageOrder:  cfg.PreserveMessageOrder,
		WaitForAcks:           cfg.WaitForAcks,
		FlushWaitForAcks:      cfg.FlushWaitForAcks,
		SkipUnknownHeaders:    cfg.SkipUnknownHeaders,
		AutoThrottle:          cfg.AutoThrottle,
		MaxQueueLength:        cfg.MaxQueueLength,
		ThrottleMultiplier:    cfg.AutoThrottleMultiplier,
		PayloadPolicy:         cfg.PayloadPolicy,
		LogLevel:              cfg.LogLevel,
		QueueFullNotification: cfg.QueueFullNotification,
	}
}

// markQueueFull reports whether the QueueFull callback should fire for this
// attempt, given the entry's configured notification policy, and updates
// the edge-trigger state. full is the buffer's full/not-full status at the
// moment of the attempt.
func (e *Entry) markQueueFull(full bool) (notify bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.QueueFullNotification {
	case config.EachOccurrence:
		return full
	case config.EdgeTriggered:
		if full != e.queueFullTrigger {
			e.queueFullTrigger = full
			return true
		}
		return false
	default: // OncePerMessage
		return full
	}
}
