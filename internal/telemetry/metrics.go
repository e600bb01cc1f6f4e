package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProducerQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kflow_producer_queue_length",
			Help: "Number of producer sends awaiting a delivery report",
		},
		[]string{"topic"},
	)

	ProducerThrottled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kflow_producer_throttled",
			Help: "1 if the producer topic is currently paused by broker-reported throttling, 0 otherwise",
		},
		[]string{"topic"},
	)

	ConsumerQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kflow_consumer_queue_length",
			Help: "Depth of one of a consumer group's dispatch queues",
		},
		[]string{"group", "queue"},
	)

	ConsumerInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kflow_consumer_inflight_io",
			Help: "Messages claimed from the broker but not yet marked consumed",
		},
		[]string{"group"},
	)

	ConsumerPreprocessorDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kflow_consumer_preprocessor_dropped_total",
			Help: "Messages discarded by the preprocessor callback before deserialization",
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(ProducerQueueLength, ProducerThrottled)
	prometheus.MustRegister(ConsumerQueueLength, ConsumerInFlight, ConsumerPreprocessorDropped)
}

// Expose starts a background HTTP server serving /metrics on port.
func Expose(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	}()
}

// SetProducerQueueLength records the current in-flight send count for topic.
func SetProducerQueueLength(topicName string, n int) {
	ProducerQueueLength.WithLabelValues(topicName).Set(float64(n))
}

// SetProducerThrottled records whether topic is currently paused by
// broker-reported throttling.
func SetProducerThrottled(topicName string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	ProducerThrottled.WithLabelValues(topicName).Set(v)
}

// SetConsumerQueueLength records the depth of one dispatch queue belonging
// to groupID.
func SetConsumerQueueLength(groupID string, queueIndex, n int) {
	ConsumerQueueLength.WithLabelValues(groupID, fmt.Sprintf("%d", queueIndex)).Set(float64(n))
}

// SetConsumerInFlight records groupID's current IoTracker count.
func SetConsumerInFlight(groupID string, n int) {
	ConsumerInFlight.WithLabelValues(groupID).Set(float64(n))
}

// IncPreprocessorDropped records one message discarded by a preprocessor
// callback for topicName.
func IncPreprocessorDropped(topicName string) {
	ConsumerPreprocessorDropped.WithLabelValues(topicName).Inc()
}
