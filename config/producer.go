package config

import (
	"fmt"
	"time"

	"github.com/mohsanabbas/kflow/kerrors"
)

// PayloadPolicy controls whether the producer copies, passes through, or
// blocks on handing a payload's backing array to the low-level client.
type PayloadPolicy string

const (
	PayloadCopy        PayloadPolicy = "copy"
	PayloadPassthrough PayloadPolicy = "passthrough"
	PayloadBlock       PayloadPolicy = "block"
)

// LogLevel names a topic's configured log verbosity. The engines store it,
// but log events reaching OnLog are passed to Callbacks.Log at their own
// level; nothing filters them by LogLevel.
type LogLevel string

const (
	LogError   LogLevel = "error"
	LogWarning LogLevel = "warning"
	LogInfo    LogLevel = "info"
	LogDebug   LogLevel = "debug"
)

// QueueFullNotification selects when the QueueFull callback fires as the
// producer's buffer fills.
type QueueFullNotification string

const (
	OncePerMessage QueueFullNotification = "oncePerMessage"
	EachOccurrence QueueFullNotification = "eachOccurrence"
	EdgeTriggered  QueueFullNotification = "edgeTriggered"
)

// PartitionerKind selects how the low-level client assigns a record to a
// partition.
type PartitionerKind string

const (
	PartitionerDefault    PartitionerKind = "default"
	PartitionerManual     PartitionerKind = "manual"
	PartitionerRoundRobin PartitionerKind = "roundrobin"
	PartitionerCustom     PartitionerKind = "custom"
)

// ProducerOptions is the full per-topic producer configuration: the kafka
// options namespace (passed through to sarama) plus the internal options
// namespace from spec.md §6's producer option table.
type ProducerOptions struct {
	SchemaVersion string `koanf:"schema_version"`

	// Kafka options namespace.
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	Version  string   `koanf:"version"`
	TLSEn    bool     `koanf:"tls_enabled"`
	SASLUser string   `koanf:"sasl_user"`
	SASLPass string   `koanf:"sasl_pass"`

	// Internal options namespace.
	MaxQueueLength                int                    `koanf:"max.queue.length"`
	PayloadPolicy                 PayloadPolicy          `koanf:"payload.policy"`
	PreserveMessageOrder          bool                   `koanf:"preserve.message.order"`
	Partitioner                   PartitionerKind        `koanf:"partitioner"`
	AllowCustomOrderedPartitioner bool                   `koanf:"allow.custom.ordered.partitioner"`
	Retries                       int                    `koanf:"retries"`
	TimeoutMS                     int                    `koanf:"timeout.ms"`
	WaitForAcks                   bool                   `koanf:"wait.for.acks"`
	WaitForAcksTimeoutMS          int                    `koanf:"wait.for.acks.timeout.ms"`
	FlushWaitForAcks              bool                   `koanf:"flush.wait.for.acks"`
	FlushWaitForAcksTimeoutMS     int                    `koanf:"flush.wait.for.acks.timeout.ms"`
	LogLevel                      LogLevel               `koanf:"log.level"`
	SkipUnknownHeaders            bool                   `koanf:"skip.unknown.headers"`
	AutoThrottle                  bool                   `koanf:"auto.throttle"`
	AutoThrottleMultiplier        float64                `koanf:"auto.throttle.multiplier"`
	QueueFullNotification         QueueFullNotification  `koanf:"queue.full.notification"`
	StatsIntervalMS               int                    `koanf:"stats.interval.ms"`
}

// LoadProducerOptions reads path (YAML) merged with KFLOW_PRODUCER__-
// prefixed environment overrides and applies defaults.
func LoadProducerOptions(path string) (ProducerOptions, error) {
	var cfg ProducerOptions
	if err := load(path, "KFLOW_PRODUCER__", &cfg); err != nil {
		return cfg, err
	}
	applyProducerDefaults(&cfg)
	return cfg, nil
}

func applyProducerDefaults(c *ProducerOptions) {
	if c.MaxQueueLength == 0 {
		c.MaxQueueLength = 10_000
	}
	if c.PayloadPolicy == "" {
		c.PayloadPolicy = PayloadCopy
	}
	if c.Partitioner == "" {
		c.Partitioner = PartitionerDefault
	}
	if c.Retries == 0 {
		c.Retries = 3
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 10_000
	}
	if c.WaitForAcksTimeoutMS == 0 {
		c.WaitForAcksTimeoutMS = 5_000
	}
	if c.FlushWaitForAcksTimeoutMS == 0 {
		c.FlushWaitForAcksTimeoutMS = 30_000
	}
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	if c.AutoThrottleMultiplier == 0 {
		c.AutoThrottleMultiplier = 1
	}
	if c.QueueFullNotification == "" {
		c.QueueFullNotification = OncePerMessage
	}
	if c.StatsIntervalMS == 0 {
		c.StatsIntervalMS = 5_000
	}
}

// WaitForAcksTimeout and FlushWaitForAcksTimeout convert the millisecond
// fields to time.Duration for use inside the engine.
func (c ProducerOptions) WaitForAcksTimeout() time.Duration {
	return time.Duration(c.WaitForAcksTimeoutMS) * time.Millisecond
}

func (c ProducerOptions) FlushWaitForAcksTimeout() time.Duration {
	return time.Duration(c.FlushWaitForAcksTimeoutMS) * time.Millisecond
}

func (c ProducerOptions) SendTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// StatsInterval is how often the engine polls its client-side metrics
// registry into the Stats callback. A value of 0 disables polling.
func (c ProducerOptions) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMS) * time.Millisecond
}

// Validate rejects configurations spec.md §9 calls out as unsafe to
// silently degrade: a custom, non-deterministic partitioner combined with
// preserveMessageOrder. Per the spec's recommendation this fails at
// configuration time rather than quietly losing per-key ordering.
func (c ProducerOptions) Validate() error {
	if c.Topic == "" {
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "topic must not be empty")
	}
	if len(c.Brokers) == 0 {
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "at least one broker is required")
	}
	if c.PreserveMessageOrder && c.Partitioner == PartitionerCustom && !c.AllowCustomOrderedPartitioner {
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption,
			fmt.Sprintf("topic %q: preserve.message.order with a custom partitioner requires allow.custom.ordered.partitioner=true "+
				"(the engine cannot prove the partitioner is key-deterministic)", c.Topic))
	}
	switch c.PayloadPolicy {
	case PayloadCopy, PayloadPassthrough, PayloadBlock:
	default:
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "payload.policy: invalid value "+string(c.PayloadPolicy))
	}
	switch c.QueueFullNotification {
	case OncePerMessage, EachOccurrence, EdgeTriggered:
	default:
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "queue.full.notification: invalid value "+string(c.QueueFullNotification))
	}
	return nil
}
