// Package metadata implements the MetadataFacade: a read-only view over a
// topic's partition list, offset watermarks, and timestamp-to-offset
// lookups, plus the queue-length introspection the producer/consumer
// engines expose. Results are point-in-time snapshots per spec.md §4.4 —
// no invalidation signalling is offered.
package metadata

import (
	"github.com/IBM/sarama"

	"github.com/mohsanabbas/kflow/kerrors"
)

// Facade wraps a sarama.Client already dialed by a producer or consumer
// Engine. It never dials its own connection and never outlives the
// Engine whose client it borrows.
type Facade struct {
	client sarama.Client
}

// NewFacade wraps client. client must remain open for the Facade's
// lifetime; the Facade does not close it.
func NewFacade(client sarama.Client) *Facade {
	return &Facade{client: client}
}

// Partitions returns the partition IDs for topic as of the client's
// current metadata cache.
func (f *Facade) Partitions(topic string) ([]int32, error) {
	parts, err := f.client.Partitions(topic)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Broker, "metadata_failed", err)
	}
	return parts, nil
}

// Watermarks reports the low (oldest retained) and high (next-to-be-written)
// offsets for a partition.
func (f *Facade) Watermarks(topic string, partition int32) (low, high int64, err error) {
	low, err = f.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, kerrors.Wrap(kerrors.Broker, "metadata_failed", err)
	}
	high, err = f.client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, kerrors.Wrap(kerrors.Broker, "metadata_failed", err)
	}
	return low, high, nil
}

// OffsetForTimestamp returns the earliest offset whose message timestamp
// is >= timestampMS (Kafka's timestamp-to-offset semantics), or -1 if no
// such offset exists.
func (f *Facade) OffsetForTimestamp(topic string, partition int32, timestampMS int64) (int64, error) {
	off, err := f.client.GetOffset(topic, partition, timestampMS)
	if err != nil {
		return 0, kerrors.Wrap(kerrors.Broker, "metadata_failed", err)
	}
	return off, nil
}

// QueueLengthReporter is implemented by producer/consumer engines that can
// report their current outbound or dispatch queue depth.
type QueueLengthReporter interface {
	QueueLength() int
}

// QueueLength delegates to an engine's own introspection, keeping the
// Facade's role limited to broker-side metadata plus a thin pass-through
// for in-process buffer depth.
func (f *Facade) QueueLength(r QueueLengthReporter) int {
	if r == nil {
		return 0
	}
	return r.QueueLength()
}
