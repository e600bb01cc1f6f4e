// Package producer implements the ProducerEngine: a buffered, per-topic
// send pipeline over sarama.AsyncProducer with adaptive throttling,
// at-most-once delivery-report dispatch, and the three queue-full
// notification policies. It is grounded on the teacher's
// sink/kafka.driver (AsyncProducer wiring) generalized from a single
// fire-and-forget Push into the full send/sendSync/flush contract, plus
// the teacher's backpressure.Controller for the shape of the mutex-guarded
// flow-control state (here reworked into throttleState).
package producer

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/semaphore"

	"github.com/mohsanabbas/kflow/config"
	"github.com/mohsanabbas/kflow/engine/bridge"
	"github.com/mohsanabbas/kflow/engine/topic"
	"github.com/mohsanabbas/kflow/internal/telemetry"
	"github.com/mohsanabbas/kflow/kerrors"
)

// Callbacks bundles the user-supplied capability functions an Engine
// invokes. Each is a single-method capability per spec.md §9; nil members
// are simply not called.
type Callbacks struct {
	DeliveryReport func(topic.DeliveryReport)
	QueueFull      func(topicName string)
	Error          func(err error)
	Log            func(level config.LogLevel, msg string, args ...any)
	Stats          func(raw []byte)
	Throttle       func(d time.Duration)
}

// Engine is the per-topic producer runtime.
type Engine struct {
	entry    *Entry
	producer sarama.AsyncProducer
	throttle *throttleState
	cb       Callbacks
	reg      *bridge.Registry

	sem *semaphore.Weighted

	pendingMu sync.Mutex
	pending   map[uuid.UUID]*Future

	shuttingDown chan struct{}
	closeOnce    sync.Once
	drainDone    chan struct{}

	pauseMu sync.Mutex
	paused  bool
	pauseCh chan struct{}

	metricsReg gometrics.Registry
}

// NewEngine builds an Engine for topic, dialing a sarama.AsyncProducer from
// cfg. reg is the shared bridge.Registry this Engine registers itself
// under for throttle/log/stats/rebalance forwarding.
func NewEngine(topicName string, cfg config.ProducerOptions, cb Callbacks, reg *bridge.Registry) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sc := sarama.NewConfig()
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.Configuration, kerrors.CodeBadOption, err)
		}
		sc.Version = ver
	}
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = cfg.Retries
	if cfg.PreserveMessageOrder {
		// A retried request can overtake a later one once more than one
		// request per broker connection is in flight, reordering a
		// partition's records. Pin this to 1 so retries can never race
		// ahead of what they're retrying.
		sc.Net.MaxOpenRequests = 1
	}
	if cfg.WaitForAcks {
		sc.Producer.RequiredAcks = sarama.WaitForAll
	} else {
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	}
	switch cfg.Partitioner {
	case config.PartitionerManual:
		sc.Producer.Partitioner = sarama.NewManualPartitioner
	case config.PartitionerRoundRobin:
		sc.Producer.Partitioner = sarama.NewRoundRobinPartitioner
	default:
		sc.Producer.Partitioner = sarama.NewHashPartitioner
	}
	if cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.SASLUser
		sc.Net.SASL.Password = cfg.SASLPass
	}

	metricsReg := gometrics.NewRegistry()
	sc.MetricRegistry = metricsReg

	ap, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.Network, "dial_failed", err)
	}
	e := newEngineWithProducer(topicName, cfg, ap, cb, reg)
	e.metricsReg = metricsReg
	e.startStatsLoop(cfg.StatsInterval())
	return e, nil
}

// newEngineWithProducer wires an Engine around an already-constructed
// sarama.AsyncProducer, letting tests substitute sarama/mocks.AsyncProducer.
// Its metricsReg is left nil: tests that want stats polling build one and
// call startStatsLoop themselves.
func newEngineWithProducer(topicName string, cfg config.ProducerOptions, ap sarama.AsyncProducer, cb Callbacks, reg *bridge.Registry) *Engine {
	e := &Engine{
		entry:        newEntry(topicName, cfg),
		producer:     ap,
		throttle:     newThrottleState(cfg.AutoThrottleMultiplier),
		cb:           cb,
		reg:          reg,
		sem:          semaphore.NewWeighted(int64(cfg.MaxQueueLength)),
		pending:      make(map[uuid.UUID]*Future),
		shuttingDown: make(chan struct{}),
		drainDone:    make(chan struct{}),
		pauseCh:      make(chan struct{}),
	}
	close(e.pauseCh) // not paused: closed channel reads immediately
	if reg != nil {
		reg.Register(topicName, e)
	}
	go e.drain()
	return e
}

// Topic satisfies bridge.Target.
func (e *Engine) Topic() string { return e.entry.Topic }

// OnThrottle satisfies bridge.Target: records a broker quota pause.
func (e *Engine) OnThrottle(d time.Duration) {
	e.throttle.Notify(d)
	telemetry.SetProducerThrottled(e.entry.Topic, true)
	if e.cb.Throttle != nil {
		e.cb.Throttle(d)
	}
}

// OnLog satisfies bridge.Target.
func (e *Engine) OnLog(level config.LogLevel, msg string, args ...any) {
	if e.cb.Log != nil {
		e.cb.Log(level, msg, args...)
	}
}

// OnStats satisfies bridge.Target: routed verbatim, no parsing.
func (e *Engine) OnStats(raw []byte) {
	if e.cb.Stats != nil {
		e.cb.Stats(raw)
	}
}

// OnRebalanceError satisfies bridge.Target. Producers never rebalance;
// this is a no-op kept only to satisfy the interface.
func (e *Engine) OnRebalanceError(error) {}

// Send enqueues a record and returns a Future for its delivery report. If
// cfg.WaitForAcks is set, Send itself blocks until the report arrives (or
// waitForAcksTimeout elapses), so the returned Future is already complete.
func (e *Engine) Send(ctx context.Context, key, value []byte, headers map[string][]byte, opaque any) (*Future, error) {
	select {
	case <-e.shuttingDown:
		return nil, kerrors.ShuttingDown()
	default:
	}

	if err := e.waitForSlot(ctx); err != nil {
		return nil, err
	}
	if err := e.waitOutPause(ctx); err != nil {
		e.sem.Release(1)
		return nil, err
	}
	if e.entry.AutoThrottle {
		if err := e.waitOutThrottle(ctx); err != nil {
			e.sem.Release(1)
			return nil, err
		}
	}

	id := uuid.New()
	fut := newFuture()
	e.pendingMu.Lock()
	e.pending[id] = fut
	n := len(e.pending)
	e.pendingMu.Unlock()
	telemetry.SetProducerQueueLength(e.entry.Topic, n)

	payload := value
	if e.entry.PayloadPolicy == config.PayloadCopy {
		payload = append([]byte(nil), value...)
	}

	msg := &sarama.ProducerMessage{
		Topic:    e.entry.Topic,
		Key:      sarama.ByteEncoder(key),
		Value:    sarama.ByteEncoder(payload),
		Metadata: correlation{id: id, opaque: opaque},
	}
	for name, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(name), Value: v})
	}

	e.producer.Input() <- msg

	if e.entry.Conf.WaitForAcks {
		select {
		case <-fut.Done():
		case <-time.After(e.entry.Conf.WaitForAcksTimeout()):
			return fut, kerrors.AckTimeout().WithPartition(e.entry.Topic, -1)
		case <-ctx.Done():
			return fut, kerrors.Interrupted()
		}
	}
	return fut, nil
}

// SendSync is Send followed by Get.
func (e *Engine) SendSync(ctx context.Context, key, value []byte, headers map[string][]byte, opaque any) (topic.DeliveryReport, error) {
	fut, err := e.Send(ctx, key, value, headers, opaque)
	if fut == nil {
		return topic.DeliveryReport{Err: err, Opaque: opaque}, err
	}
	return fut.Get(), err
}

// correlation is stashed in ProducerMessage.Metadata to recover the
// pending Future and the caller's opaque handle once sarama reports
// success or failure.
type correlation struct {
	id     uuid.UUID
	opaque any
}

// waitForSlot enforces maxQueueLength, applying the configured
// queueFullNotification policy while waiting for room.
func (e *Engine) waitForSlot(ctx context.Context) error {
	if e.sem.TryAcquire(1) {
		if e.entry.markQueueFull(false) && e.cb.QueueFull != nil {
			e.cb.QueueFull(e.entry.Topic)
		}
		return nil
	}

	if e.entry.markQueueFull(true) && e.cb.QueueFull != nil {
		e.cb.QueueFull(e.entry.Topic)
	}

	if e.entry.QueueFullNotification == config.EachOccurrence {
		for {
			select {
			case <-e.shuttingDown:
				return kerrors.ShuttingDown()
			case <-ctx.Done():
				return kerrors.Interrupted()
			default:
			}
			if e.sem.TryAcquire(1) {
				e.entry.markQueueFull(false)
				return nil
			}
			if e.cb.QueueFull != nil {
				e.cb.QueueFull(e.entry.Topic)
			}
			time.Sleep(time.Millisecond)
		}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return kerrors.Interrupted()
	}
	if e.entry.markQueueFull(false) && e.cb.QueueFull != nil {
		e.cb.QueueFull(e.entry.Topic)
	}
	return nil
}

// waitOutPause blocks while the engine is administratively paused.
func (e *Engine) waitOutPause(ctx context.Context) error {
	e.pauseMu.Lock()
	ch := e.pauseCh
	e.pauseMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return kerrors.Interrupted()
	case <-e.shuttingDown:
		return kerrors.ShuttingDown()
	}
}

// waitOutThrottle blocks until the current broker throttle window elapses.
func (e *Engine) waitOutThrottle(ctx context.Context) error {
	until := e.throttle.PauseUntil()
	if until.IsZero() {
		return nil
	}
	d := time.Until(until)
	if d <= 0 {
		e.throttle.ObserveElapsed(time.Now())
		telemetry.SetProducerThrottled(e.entry.Topic, false)
		return nil
	}
	select {
	case <-time.After(d):
		e.throttle.ObserveElapsed(time.Now())
		telemetry.SetProducerThrottled(e.entry.Topic, false)
		return nil
	case <-ctx.Done():
		return kerrors.Interrupted()
	case <-e.shuttingDown:
		return kerrors.ShuttingDown()
	}
}

// startStatsLoop periodically snapshots metricsReg as JSON into the Stats
// callback, routed verbatim per spec.md §4.3 ("route stats JSON verbatim,
// no parsing"). A zero interval or nil registry disables polling.
func (e *Engine) startStatsLoop(interval time.Duration) {
	if interval <= 0 || e.metricsReg == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				var buf bytes.Buffer
				gometrics.WriteJSONOnce(e.metricsReg, &buf)
				raw := buf.Bytes()
				if e.reg != nil {
					e.reg.Stats(e.entry.Topic, raw)
				} else if e.cb.Stats != nil {
					e.cb.Stats(raw)
				}
			case <-e.shuttingDown:
				return
			}
		}
	}()
}

// drain is the background delivery-report dispatch coroutine (spec.md's
// pollFuture): it continuously reads sarama's Successes/Errors channels,
// completes the matching Future, and routes the DeliveryReport to the
// user callback.
func (e *Engine) drain() {
	defer close(e.drainDone)
	successes := e.producer.Successes()
	errs := e.producer.Errors()
	for {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				if errs == nil {
					return
				}
				continue
			}
			e.report(msg, nil)
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				if successes == nil {
					return
				}
				continue
			}
			e.report(perr.Msg, perr.Err)
		}
	}
}

func (e *Engine) report(msg *sarama.ProducerMessage, sendErr error) {
	e.sem.Release(1)
	e.throttle.ObserveElapsed(time.Now())

	corr, _ := msg.Metadata.(correlation)
	rep := topic.DeliveryReport{
		TopicPartition: topic.Partition{Topic: e.entry.Topic, Partition: msg.Partition},
		Opaque:         corr.opaque,
	}
	if sendErr != nil {
		rep.Err = kerrors.Wrap(kerrors.Broker, "produce_failed", sendErr).WithPartition(e.entry.Topic, msg.Partition)
	}

	e.pendingMu.Lock()
	fut, ok := e.pending[corr.id]
	if ok {
		delete(e.pending, corr.id)
	}
	n := len(e.pending)
	e.pendingMu.Unlock()
	telemetry.SetProducerQueueLength(e.entry.Topic, n)

	if ok {
		fut.complete(rep)
	}
	if e.cb.DeliveryReport != nil {
		e.cb.DeliveryReport(rep)
	}
}

// QueueLength reports the number of sends currently awaiting a delivery
// report, satisfying metadata.QueueLengthReporter.
func (e *Engine) QueueLength() int {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return len(e.pending)
}

// Flush waits for all currently pending sends to receive a delivery
// report. If neither cfg.FlushWaitForAcks nor cfg.PreserveMessageOrder is
// set this returns immediately.
func (e *Engine) Flush(ctx context.Context) error {
	if !e.entry.Conf.FlushWaitForAcks && !e.entry.PreserveMessageOrder {
		return nil
	}
	deadline := time.After(e.entry.Conf.FlushWaitForAcksTimeout())
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		e.pendingMu.Lock()
		n := len(e.pending)
		e.pendingMu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return kerrors.FlushTimeout().WithPartition(e.entry.Topic, -1)
		case <-ctx.Done():
			return kerrors.Interrupted()
		}
	}
}

// Pause gates new Sends until Resume is called.
func (e *Engine) Pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if e.paused {
		return
	}
	e.paused = true
	e.pauseCh = make(chan struct{})
}

// Resume releases any Sends blocked in waitOutPause.
func (e *Engine) Resume() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if !e.paused {
		return
	}
	e.paused = false
	close(e.pauseCh)
}

// Shutdown stops accepting new Sends, closes the underlying producer, and
// waits for the drain coroutine to finish delivering outstanding reports,
// up to timeout. Per invariant (v), no callback fires for this topic after
// Shutdown returns.
func (e *Engine) Shutdown(ctx context.Context, timeout time.Duration) error {
	e.closeOnce.Do(func() { close(e.shuttingDown) })
	_ = e.producer.AsyncClose()

	select {
	case <-e.drainDone:
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	if e.reg != nil {
		e.reg.Deregister(e.entry.Topic, e)
	}
	return nil
}
