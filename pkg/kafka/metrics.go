package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	producerMessages *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec

	consumerLaneDepth     *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerRetries       *prometheus.CounterVec
	consumerDLQ           *prometheus.CounterVec
)

// initMetrics registers the Kafka collectors on the default registry once
// per process; producer and consumer share them.
func initMetrics() {
	metricsOnce.Do(func() {
		f := promauto.With(prometheus.DefaultRegisterer)
		producerMessages = f.NewCounterVec(
			prometheus.CounterOpts{Name: "contagion_kafka_producer_messages_total", Help: "Messages written to Kafka by result"},
			[]string{"topic", "result"},
		)
		producerBytes = f.NewCounterVec(
			prometheus.CounterOpts{Name: "contagion_kafka_producer_bytes_total", Help: "Payload bytes written before compression"},
			[]string{"topic", "compression"},
		)
		producerLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "contagion_kafka_producer_write_seconds", Help: "WriteMessages latency"},
			[]string{"topic"},
		)
		consumerLaneDepth = f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "contagion_kafka_consumer_lane_depth", Help: "Messages waiting in the lane that received the latest message"},
			[]string{"topic"},
		)
		consumerHandleLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "contagion_kafka_consumer_handle_seconds", Help: "Handling time per message including retries"},
			[]string{"topic"},
		)
		consumerRetries = f.NewCounterVec(
			prometheus.CounterOpts{Name: "contagion_kafka_consumer_retries_total", Help: "Handler retries"},
			[]string{"topic"},
		)
		consumerDLQ = f.NewCounterVec(
			prometheus.CounterOpts{Name: "contagion_kafka_consumer_dlq_total", Help: "Messages parked in the dead letter topic"},
			[]string{"topic", "reason"},
		)
	})
}

func observeWrite(topic, compression string, n int, size int64, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, result).Add(float64(n))
	producerBytes.WithLabelValues(topic, compression).Add(float64(size))
	producerLatency.WithLabelValues(topic).Observe(took.Seconds())
}
