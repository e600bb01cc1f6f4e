package consumer

import (
	"sync"
	"sync/atomic"

	"github.com/mohsanabbas/kflow/config"
	"github.com/mohsanabbas/kflow/engine/topic"
)

// Entry is the per-topic consumer state spec.md calls a ConsumerTopicEntry:
// assignment bookkeeping, the partition→queue map, and the small amount of
// policy/runtime state the dispatch and rebalance paths consult.
type Entry struct {
	Topics  []string
	GroupID string
	Conf    config.ConsumerOptions

	io *IoTracker

	mu               sync.Mutex
	assigned         []topic.Partition
	partitionToQueue map[topic.Partition]int
	queueCount       int

	paused        atomic.Bool
	preprocessing atomic.Bool
}

func newEntry(topics []string, groupID string, cfg config.ConsumerOptions) *Entry {
	e := &Entry{
		Topics:           topics,
		GroupID:          groupID,
		Conf:             cfg,
		io:               NewIoTracker(),
		partitionToQueue: make(map[topic.Partition]int),
	}
	e.preprocessing.Store(cfg.Preprocessing)
	if cfg.DispatchPolicy == config.RoundRobin {
		e.queueCount = cfg.RoundRobinQueues
	} else {
		e.queueCount = 1
	}
	return e
}

// rebuildPartitionMap recomputes the deterministic partition→queue mapping
// for a fresh assignment. mapPartitionToQueue(partition) = partition mod N
// for RoundRobin, or always 0 for Serial — stable for the life of the
// assignment per spec.md §4.2.
func (e *Entry) rebuildPartitionMap(parts []topic.Partition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assigned = parts
	e.partitionToQueue = make(map[topic.Partition]int, len(parts))
	for _, p := range parts {
		e.partitionToQueue[p] = e.queueForPartition(p.Partition)
	}
}

func (e *Entry) queueForPartition(partition int32) int {
	if e.queueCount <= 1 {
		return 0
	}
	n := int(partition) % e.queueCount
	if n < 0 {
		n += e.queueCount
	}
	return n
}

// QueueFor returns the stable queue index for a partition already present
// in the current assignment.
func (e *Entry) QueueFor(p topic.Partition) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.partitionToQueue[p]; ok {
		return idx
	}
	return e.queueForPartition(p.Partition)
}

func (e *Entry) Assigned() []topic.Partition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]topic.Partition(nil), e.assigned...)
}
