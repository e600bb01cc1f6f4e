package consumer

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohsanabbas/kflow/config"
	"github.com/mohsanabbas/kflow/engine/topic"
	"github.com/mohsanabbas/kflow/internal/telemetry"
)

// Callbacks bundles the user-supplied capability functions a consumer
// Engine invokes, one per spec.md §6's callbacks collaborator list.
type Callbacks[K, V any] struct {
	Receiver          func(context.Context, topic.DeserializedMessage[K, V])
	Preprocessor      func(topic.Message) bool // true = keep
	Assignment        func([]topic.Partition)
	Revocation        func([]topic.Partition)
	RebalanceError    func(error)
	OffsetCommit      func(map[topic.Partition]error)
	OffsetCommitError func(map[topic.Partition]error) bool
	Error             func(error)
	Log               func(level config.LogLevel, msg string, args ...any)
	Stats             func(raw []byte)
	Throttle          func(d time.Duration)
}

// queueItem is one unit of dispatch work: a raw message plus the sarama
// session/message pair needed to mark it committed once processed.
type queueItem struct {
	msg  *sarama.ConsumerMessage
	sess sarama.ConsumerGroupSession
}

// processItem runs the preprocess → deserialize → receive pipeline for one
// message, then marks it consumed and records it with the committer. It
// never dispatches two messages from the same partition concurrently
// because every item for a given partition flows through the same queue's
// single worker goroutine.
func (e *Engine[K, V]) processItem(ctx context.Context, it queueItem) {
	defer func() {
		e.entry.io.Done()
		telemetry.SetConsumerInFlight(e.entry.GroupID, e.entry.io.Count())
	}()

	raw := topic.Message{
		Topic:     it.msg.Topic,
		Partition: it.msg.Partition,
		Offset:    it.msg.Offset,
		Timestamp: it.msg.Timestamp,
		Key:       it.msg.Key,
		Value:     it.msg.Value,
		Headers:   headerMap(it.msg.Headers),
	}

	if e.entry.preprocessing.Load() && e.cb.Preprocessor != nil {
		if !e.cb.Preprocessor(raw) {
			telemetry.IncPreprocessorDropped(raw.Topic)
			it.sess.MarkMessage(it.msg, "")
			e.committer.observe(raw.TopicPartition(), raw.Offset)
			return
		}
	}

	dm := topic.DeserializedMessage[K, V]{Message: raw}

	if k, err := e.keyDeser.Deserialize(raw.Key); err != nil {
		dm.Err = &topic.DeserializationError{Component: "key", Cause: err}
	} else {
		dm.Key = k
	}
	if v, err := e.valDeser.Deserialize(raw.Value); err != nil {
		dm.Err = &topic.DeserializationError{Component: "value", Cause: err}
	} else {
		dm.Value = v
	}
	if e.headerReg != nil && len(raw.Headers) > 0 {
		hv, err := e.headerReg.DeserializeAll(raw.Headers, e.entry.Conf.SkipUnknownHeaders)
		if err != nil {
			dm.Err = &topic.DeserializationError{Component: "headers", Cause: err}
		} else {
			dm.Headers = hv
		}
	}

	if e.cb.Receiver != nil {
		e.cb.Receiver(ctx, dm)
	}

	it.sess.MarkMessage(it.msg, "")
	e.committer.observe(raw.TopicPartition(), raw.Offset)
}

func headerMap(src []*sarama.RecordHeader) map[string][]byte {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(src))
	for _, h := range src {
		out[string(h.Key)] = h.Value
	}
	return out
}
