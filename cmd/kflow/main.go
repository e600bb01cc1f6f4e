// Command kflow wires a set of producer and consumer engines from on-disk
// config files and serves the control-plane and metrics endpoints until
// interrupted. It is a minimal, runnable default — a library consumer with
// more involved deserialization or dynamic topic sets builds its own
// equivalent of this file around the same config/engine/manager packages.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohsanabbas/kflow/config"
	"github.com/mohsanabbas/kflow/engine/bridge"
	"github.com/mohsanabbas/kflow/engine/consumer"
	"github.com/mohsanabbas/kflow/engine/producer"
	"github.com/mohsanabbas/kflow/engine/topic"
	"github.com/mohsanabbas/kflow/internal/logging"
	"github.com/mohsanabbas/kflow/internal/telemetry"
	"github.com/mohsanabbas/kflow/internal/transport"
	"github.com/mohsanabbas/kflow/manager"
	"github.com/mohsanabbas/kflow/serde"
)

func main() {
	logging.InitFromEnv()
	log := logging.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := bridge.NewRegistry()
	producers := manager.New[*producer.Engine]()
	consumers := manager.New[*consumer.Engine[string, []byte]]()

	for _, path := range splitPaths(os.Getenv("KFLOW_PRODUCER_CONFIGS")) {
		cfg, err := config.LoadProducerOptions(path)
		if err != nil {
			log.Error("producer config load failed", "path", path, "err", err)
			os.Exit(1)
		}
		eng, err := producer.NewEngine(cfg.Topic, cfg, producerCallbacks(), reg)
		if err != nil {
			log.Error("producer engine start failed", "topic", cfg.Topic, "err", err)
			os.Exit(1)
		}
		producers.AddTopic(eng, cfg.Topic)
		log.Info("producer engine started", "topic", cfg.Topic)
	}

	for _, path := range splitPaths(os.Getenv("KFLOW_CONSUMER_CONFIGS")) {
		cfg, err := config.LoadConsumerOptions(path)
		if err != nil {
			log.Error("consumer config load failed", "path", path, "err", err)
			os.Exit(1)
		}
		deps := consumer.Deps[string, []byte]{
			Key:     serde.String,
			Value:   serde.Bytes,
			Headers: serde.NewHeaderRegistry(),
			Bridge:  reg,
			Callbacks: consumer.Callbacks[string, []byte]{
				Receiver: func(_ context.Context, dm topic.DeserializedMessage[string, []byte]) {
					if dm.Err != nil {
						log.Error("deserialization failed", "topic", dm.Topic, "partition", dm.Partition, "err", dm.Err)
						return
					}
					log.Debug("message received", "topic", dm.Topic, "partition", dm.Partition, "offset", dm.Offset)
				},
				Error: func(err error) { log.Error("consumer error", "group", cfg.GroupID, "err", err) },
				Log: func(level config.LogLevel, msg string, args ...any) {
					logging.Log(string(level), msg, args...)
				},
			},
		}
		eng, err := consumer.NewEngine[string, []byte](cfg, deps)
		if err != nil {
			log.Error("consumer engine start failed", "group", cfg.GroupID, "err", err)
			os.Exit(1)
		}
		consumers.AddTopic(eng, cfg.Topics...)
		log.Info("consumer engine started", "group", cfg.GroupID, "topics", cfg.Topics)
	}

	producers.Start()
	consumers.Start()

	srv, err := transport.StartServer(grpcPort(), producers, consumers)
	if err != nil {
		log.Error("control server failed to start", "err", err)
		os.Exit(1)
	}
	telemetry.Expose(metricsPort())

	go func() {
		if err := srv.Serve(); err != nil {
			log.Error("control server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	srv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := producers.Shutdown(shutdownCtx, 10*time.Second); err != nil {
		log.Error("producer shutdown", "err", err)
	}
	if err := consumers.Shutdown(shutdownCtx, 10*time.Second); err != nil {
		log.Error("consumer shutdown", "err", err)
	}
}

func producerCallbacks() producer.Callbacks {
	log := logging.L()
	return producer.Callbacks{
		DeliveryReport: func(rep topic.DeliveryReport) {
			if rep.Err != nil {
				log.Error("delivery failed", "topic", rep.TopicPartition.Topic, "partition", rep.TopicPartition.Partition, "err", rep.Err)
			}
		},
		QueueFull: func(topicName string) { log.Warn("producer queue full", "topic", topicName) },
		Error:     func(err error) { log.Error("producer error", "err", err) },
		Log: func(level config.LogLevel, msg string, args ...any) {
			logging.Log(string(level), msg, args...)
		},
	}
}

func splitPaths(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func grpcPort() int {
	return envPortOr("KFLOW_GRPC_PORT", 7070)
}

func metricsPort() int {
	return envPortOr("KFLOW_METRICS_PORT", 9100)
}

func envPortOr(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	return n
}
