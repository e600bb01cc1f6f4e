package consumer

import (
	"testing"

	"github.com/mohsanabbas/kflow/config"
	"github.com/mohsanabbas/kflow/engine/topic"
)

func TestEntry_QueueForPartition_RoundRobinStableMapping(t *testing.T) {
	cfg := config.ConsumerOptions{DispatchPolicy: config.RoundRobin, RoundRobinQueues: 4}
	e := newEntry([]string{"orders"}, "g", cfg)

	parts := []topic.Partition{
		{Topic: "orders", Partition: 0},
		{Topic: "orders", Partition: 1},
		{Topic: "orders", Partition: 2},
		{Topic: "orders", Partition: 3},
		{Topic: "orders", Partition: 4},
		{Topic: "orders", Partition: 5},
		{Topic: "orders", Partition: 6},
		{Topic: "orders", Partition: 7},
	}
	e.rebuildPartitionMap(parts)

	for _, p := range parts {
		want := int(p.Partition) % 4
		if got := e.QueueFor(p); got != want {
			t.Fatalf("partition %d: want queue %d, got %d", p.Partition, want, got)
		}
	}

	// Stability: rebuilding with the same assignment must not move a
	// partition to a different queue.
	e.rebuildPartitionMap(parts)
	for _, p := range parts {
		want := int(p.Partition) % 4
		if got := e.QueueFor(p); got != want {
			t.Fatalf("mapping moved after rebuild: partition %d now in queue %d, want %d", p.Partition, got, want)
		}
	}
}

func TestEntry_QueueForPartition_SerialAlwaysQueueZero(t *testing.T) {
	cfg := config.ConsumerOptions{DispatchPolicy: config.Serial}
	e := newEntry([]string{"orders"}, "g", cfg)
	e.rebuildPartitionMap([]topic.Partition{{Topic: "orders", Partition: 5}})

	if got := e.QueueFor(topic.Partition{Topic: "orders", Partition: 5}); got != 0 {
		t.Fatalf("serial dispatch must use queue 0, got %d", got)
	}
}
