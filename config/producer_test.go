package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProducerOptions_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`schema_version: v1
brokers: ["localhost:9092"]
topic: orders
`)
	if err := os.WriteFile(filepath.Join(dir, "producer.yml"), raw, 0o644); err != nil {
		t.Fatalf("write producer.yml: %v", err)
	}

	cfg, err := LoadProducerOptions(filepath.Join(dir, "producer.yml"))
	if err != nil {
		t.Fatalf("LoadProducerOptions: %v", err)
	}
	if cfg.MaxQueueLength != 10_000 {
		t.Fatalf("want default max.queue.length 10000, got %d", cfg.MaxQueueLength)
	}
	if cfg.PayloadPolicy != PayloadCopy {
		t.Fatalf("want default payload.policy copy, got %s", cfg.PayloadPolicy)
	}
	if cfg.QueueFullNotification != OncePerMessage {
		t.Fatalf("want default queue.full.notification oncePerMessage, got %s", cfg.QueueFullNotification)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadProducerOptions_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`schema_version: v999
brokers: ["localhost:9092"]
topic: orders
`)
	if err := os.WriteFile(filepath.Join(dir, "producer.yml"), raw, 0o644); err != nil {
		t.Fatalf("write producer.yml: %v", err)
	}
	if _, err := LoadProducerOptions(filepath.Join(dir, "producer.yml")); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}

func TestProducerOptions_Validate_RejectsUnprovenOrderedCustomPartitioner(t *testing.T) {
	cfg := ProducerOptions{
		Brokers:              []string{"localhost:9092"},
		Topic:                "orders",
		PreserveMessageOrder: true,
		Partitioner:          PartitionerCustom,
	}
	applyProducerDefaults(&cfg)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for preserveMessageOrder + custom partitioner without explicit allow")
	}

	cfg.AllowCustomOrderedPartitioner = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error once allow.custom.ordered.partitioner is set, got %v", err)
	}
}

func TestProducerOptions_Validate_RejectsUnknownEnumValues(t *testing.T) {
	cfg := ProducerOptions{Brokers: []string{"b:9092"}, Topic: "t"}
	applyProducerDefaults(&cfg)
	cfg.PayloadPolicy = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown payload.policy")
	}
}
