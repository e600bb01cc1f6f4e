// Package topic holds the data model shared by the producer and consumer
// engines: topic-partition coordinates, the raw and deserialized message
// shapes, and delivery reports.
package topic

import "time"

// Partition is a (topic, partition) coordinate. It is a plain value type:
// comparable, usable directly as a map key.
type Partition struct {
	Topic     string
	Partition int32
}

// Offset pairs a Partition with an offset, i.e. a TopicPartitionOffset.
type Offset struct {
	Partition
	Offset int64
}

// Message is the raw record as returned by the underlying Kafka client:
// single-owner, moves by value through the pipeline.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Err       error
}

func (m Message) TopicPartition() Partition {
	return Partition{Topic: m.Topic, Partition: m.Partition}
}

// DeserializationError reports which component (key, value, or headers)
// failed to deserialize, and why. For a header failure Cause names the
// header.
type DeserializationError struct {
	Component string // "key", "value", or "headers"
	Cause     error
}

func (e *DeserializationError) Error() string {
	return "deserialize " + e.Component + ": " + e.Cause.Error()
}

func (e *DeserializationError) Unwrap() error { return e.Cause }

// DeserializedMessage wraps a raw Message with typed key, value, and header
// values produced by user-supplied deserializers. Err is set, without
// discarding the message, when any component failed.
type DeserializedMessage[K any, V any] struct {
	Message
	Key     K
	Value   V
	Headers map[string]any
	Err     *DeserializationError
}

// DeliveryReport is returned for every record handed to the producer
// engine's Send family, whether it succeeded or failed.
//
// Opaque is carried verbatim from the originating send call; the engine
// never inspects or type-asserts it; callers do.
type DeliveryReport struct {
	TopicPartition Partition
	Err            error
	Opaque         any
}
