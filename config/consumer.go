package config

import (
	"time"

	"github.com/mohsanabbas/kflow/kerrors"
)

// DispatchPolicy selects how a ConsumerEngine fans incoming batches out
// onto its logical queues.
type DispatchPolicy string

const (
	Serial     DispatchPolicy = "serial"
	RoundRobin DispatchPolicy = "roundrobin"
)

// CommitMode selects whether a commit blocks the caller or runs on a
// coroutine (here: a separate goroutine).
type CommitMode string

const (
	ModeSync  CommitMode = "sync"
	ModeAsync CommitMode = "async"
)

// CommitExec selects whether the commit call itself runs on the calling
// goroutine or is scheduled onto the IO pool.
type CommitExec string

const (
	ExecLocal     CommitExec = "local"
	ExecCoroutine CommitExec = "coroutine"
)

// CommitStrategy selects whether offsets are sent to the broker
// immediately or written to the low-level client's local offset store for
// its auto-commit thread to pick up.
type CommitStrategy string

const (
	StrategyCommit CommitStrategy = "commit"
	StrategyStore  CommitStrategy = "store"
)

// OffsetPersistSettings is the commit-policy matrix from spec.md §3.
type OffsetPersistSettings struct {
	Mode                  CommitMode     `koanf:"mode"`
	Exec                  CommitExec     `koanf:"exec"`
	Strategy              CommitStrategy `koanf:"strategy"`
	AllowNonStoredOffsets bool           `koanf:"allow_non_stored_offsets"`
}

// ConsumerOptions is the full per-topic consumer configuration.
type ConsumerOptions struct {
	SchemaVersion string `koanf:"schema_version"`

	// Kafka options namespace.
	Brokers   []string `koanf:"brokers"`
	Topics    []string `koanf:"topics"`
	GroupID   string   `koanf:"group_id"`
	StartFrom string   `koanf:"start_from"` // oldest|newest
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`

	// Internal options namespace.
	PollTimeoutMS           int                   `koanf:"poll.timeout.ms"`
	BatchSize               int                   `koanf:"batch.size"`
	ReadSizeBoundBytes      int32                 `koanf:"read.size.bound.bytes"`
	PauseOnStart            bool                  `koanf:"pause.on.start"`
	DispatchPolicy          DispatchPolicy        `koanf:"dispatch.policy"`
	RoundRobinQueues        int                   `koanf:"round_robin.queues"`
	SkipUnknownHeaders      bool                  `koanf:"skip.unknown.headers"`
	Preprocessing           bool                  `koanf:"preprocessing"`
	ShutdownIoWaitTimeoutMS int                   `koanf:"shutdown.io.wait.timeout.ms"`
	LogLevel                LogLevel              `koanf:"log.level"`
	OffsetPersist           OffsetPersistSettings `koanf:"offset.persist"`
	StatsIntervalMS         int                   `koanf:"stats.interval.ms"`
}

// LoadConsumerOptions reads path (YAML) merged with KFLOW_CONSUMER__-
// prefixed environment overrides and applies defaults.
func LoadConsumerOptions(path string) (ConsumerOptions, error) {
	var cfg ConsumerOptions
	if err := load(path, "KFLOW_CONSUMER__", &cfg); err != nil {
		return cfg, err
	}
	applyConsumerDefaults(&cfg)
	return cfg, nil
}

func applyConsumerDefaults(c *ConsumerOptions) {
	if c.PollTimeoutMS == 0 {
		c.PollTimeoutMS = 250
	}
	if c.BatchSize == 0 {
		c.BatchSize = 500
	}
	if c.ReadSizeBoundBytes == 0 {
		c.ReadSizeBoundBytes = 1 << 20
	}
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
	if c.DispatchPolicy == "" {
		c.DispatchPolicy = Serial
	}
	if c.DispatchPolicy == RoundRobin && c.RoundRobinQueues == 0 {
		c.RoundRobinQueues = 4
	}
	if c.ShutdownIoWaitTimeoutMS == 0 {
		c.ShutdownIoWaitTimeoutMS = 30_000
	}
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	if c.OffsetPersist.Mode == "" {
		c.OffsetPersist.Mode = ModeAsync
	}
	if c.OffsetPersist.Exec == "" {
		c.OffsetPersist.Exec = ExecLocal
	}
	if c.OffsetPersist.Strategy == "" {
		c.OffsetPersist.Strategy = StrategyCommit
	}
	if c.StatsIntervalMS == 0 {
		c.StatsIntervalMS = 5_000
	}
}

func (c ConsumerOptions) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMS) * time.Millisecond
}

func (c ConsumerOptions) ShutdownIoWaitTimeout() time.Duration {
	return time.Duration(c.ShutdownIoWaitTimeoutMS) * time.Millisecond
}

// StatsInterval is how often the engine polls its client-side metrics
// registry into the Stats callback. A value of 0 disables polling.
func (c ConsumerOptions) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalMS) * time.Millisecond
}

// Validate checks the option set for internal consistency.
func (c ConsumerOptions) Validate() error {
	if c.GroupID == "" {
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "group_id must not be empty")
	}
	if len(c.Topics) == 0 {
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "at least one topic is required")
	}
	if len(c.Brokers) == 0 {
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "at least one broker is required")
	}
	switch c.DispatchPolicy {
	case Serial:
	case RoundRobin:
		if c.RoundRobinQueues < 1 {
			return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "round_robin.queues must be >= 1")
		}
	default:
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "dispatch.policy: invalid value "+string(c.DispatchPolicy))
	}
	switch c.OffsetPersist.Strategy {
	case StrategyCommit, StrategyStore:
	default:
		return kerrors.New(kerrors.Configuration, kerrors.CodeBadOption, "offset.persist.strategy: invalid value "+string(c.OffsetPersist.Strategy))
	}
	return nil
}
