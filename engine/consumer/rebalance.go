package consumer

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohsanabbas/kflow/engine/topic"
	"github.com/mohsanabbas/kflow/internal/telemetry"
)

// groupHandler adapts an Engine to sarama.ConsumerGroupHandler. Its
// ConsumeClaim loop never calls user code directly: it only routes raw
// messages onto the entry's dispatch queues, matching spec.md §4.2's "the
// poll coroutine's only responsibility is to feed the dispatch stage".
type groupHandler[K, V any] struct {
	engine *Engine[K, V]
}

// Setup installs the new assignment: rebuilds the partition→queue map,
// resets the committer's observed-offset bookkeeping (stale against a new
// assignment), and invokes AssignmentCallback.
func (h *groupHandler[K, V]) Setup(sess sarama.ConsumerGroupSession) error {
	e := h.engine

	e.sessMu.Lock()
	e.session = sess
	e.sessMu.Unlock()

	e.committer.resetAssignment()

	var parts []topic.Partition
	for t, ps := range sess.Claims() {
		for _, p := range ps {
			parts = append(parts, topic.Partition{Topic: t, Partition: p})
		}
	}
	e.entry.rebuildPartitionMap(parts)

	if e.cb.Assignment != nil {
		e.cb.Assignment(parts)
	}
	if e.entry.paused.Load() {
		e.group.PauseAll()
	}
	return nil
}

// Cleanup runs on revocation: it waits for in-flight dispatch work on the
// revoked partitions to finish (up to shutdownIoWaitTimeoutMs), commits
// whatever offsets were observed, and invokes RevocationCallback.
func (h *groupHandler[K, V]) Cleanup(sess sarama.ConsumerGroupSession) error {
	e := h.engine
	parts := e.entry.Assigned()

	timer := time.NewTimer(e.entry.Conf.ShutdownIoWaitTimeout())
	defer timer.Stop()
	e.entry.io.WaitZero(context.Background(), timer.C)

	e.committer.mu.Lock()
	var observed []topic.Partition
	for _, p := range parts {
		if _, ok := e.committer.observed[p]; ok {
			observed = append(observed, p)
		}
	}
	e.committer.mu.Unlock()
	if len(observed) > 0 {
		if err := e.Commit(context.Background(), observed); err != nil && e.cb.Error != nil {
			e.cb.Error(err)
		}
	}

	e.sessMu.Lock()
	e.session = nil
	e.sessMu.Unlock()

	if e.cb.Revocation != nil {
		e.cb.Revocation(parts)
	}
	return nil
}

// ConsumeClaim feeds raw messages onto the partition's assigned dispatch
// queue. Messages for a revoked/cancelled session are left undispatched
// rather than forced onto a full queue, per the rebalance boundary
// scenario: no receiver invocation for undispatched messages after
// revocation.
func (h *groupHandler[K, V]) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	e := h.engine
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			tp := topic.Partition{Topic: msg.Topic, Partition: msg.Partition}
			qidx := e.entry.QueueFor(tp)

			e.entry.io.Add(1)
			telemetry.SetConsumerInFlight(e.entry.GroupID, e.entry.io.Count())
			select {
			case e.queues[qidx] <- queueItem{msg: msg, sess: sess}:
				telemetry.SetConsumerQueueLength(e.entry.GroupID, qidx, len(e.queues[qidx]))
			case <-sess.Context().Done():
				e.entry.io.Done()
				telemetry.SetConsumerInFlight(e.entry.GroupID, e.entry.io.Count())
				return nil
			}
		case <-sess.Context().Done():
			return nil
		}
	}
}
