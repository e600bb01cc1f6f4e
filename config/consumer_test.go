package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConsumerOptions_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`schema_version: v1
brokers: ["localhost:9092"]
topics: ["orders"]
group_id: orders-consumer
`)
	if err := os.WriteFile(filepath.Join(dir, "consumer.yml"), raw, 0o644); err != nil {
		t.Fatalf("write consumer.yml: %v", err)
	}

	cfg, err := LoadConsumerOptions(filepath.Join(dir, "consumer.yml"))
	if err != nil {
		t.Fatalf("LoadConsumerOptions: %v", err)
	}
	if cfg.DispatchPolicy != Serial {
		t.Fatalf("want default dispatch.policy serial, got %s", cfg.DispatchPolicy)
	}
	if cfg.OffsetPersist.Strategy != StrategyCommit {
		t.Fatalf("want default offset.persist.strategy commit, got %s", cfg.OffsetPersist.Strategy)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConsumerOptions_Validate_RoundRobinRequiresQueueCount(t *testing.T) {
	cfg := ConsumerOptions{
		Brokers:        []string{"localhost:9092"},
		Topics:         []string{"orders"},
		GroupID:        "g",
		DispatchPolicy: RoundRobin,
	}
	cfg.RoundRobinQueues = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for roundrobin with zero queues")
	}
}

func TestLoadConsumerOptions_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`schema_version: v2
brokers: ["localhost:9092"]
topics: ["orders"]
group_id: g
`)
	if err := os.WriteFile(filepath.Join(dir, "consumer.yml"), raw, 0o644); err != nil {
		t.Fatalf("write consumer.yml: %v", err)
	}
	if _, err := LoadConsumerOptions(filepath.Join(dir, "consumer.yml")); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}
