package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once
	registerer  prometheus.Registerer = prometheus.DefaultRegisterer

	publishedTotal *prometheus.CounterVec
	publishedBytes *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
	handleLatency  *prometheus.HistogramVec
	handledTotal   *prometheus.CounterVec
)

// SetMetricsRegisterer replaces the registerer used for producer and consumer
// metrics. It must be called before the first producer or consumer is built.
func SetMetricsRegisterer(reg prometheus.Registerer) { registerer = reg }

func initMetrics() {
	metricsOnce.Do(func() {
		publishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "effortlab_kafka_published_messages_total",
			Help: "Messages written to Kafka",
		}, []string{"topic", "compression", "result"})
		publishedBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "effortlab_kafka_published_bytes_total",
			Help: "Payload bytes written to Kafka",
		}, []string{"topic"})
		publishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "effortlab_kafka_publish_seconds",
			Help:    "Kafka write latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
		queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "effortlab_kafka_consumer_queue_depth",
			Help: "Messages waiting for a consumer worker",
		}, []string{"topic"})
		handleLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "effortlab_kafka_consumer_handle_seconds",
			Help: "Handling time per consumed message, retries included",
		}, []string{"topic"})
		handledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "effortlab_kafka_consumer_messages_total",
			Help: "Consumed messages by outcome",
		}, []string{"topic", "result"})

		if registerer == nil {
			return
		}
		for _, c := range []prometheus.Collector{publishedTotal, publishedBytes, publishLatency, queueDepth, handleLatency, handledTotal} {
			if err := registerer.Register(c); err != nil {
				if _, dup := err.(prometheus.AlreadyRegisteredError); !dup {
					panic(err)
				}
			}
		}
	})
}

func observePublish(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	publishedTotal.WithLabelValues(topic, comp, result).Add(float64(count))
	publishedBytes.WithLabelValues(topic).Add(float64(bytes))
	publishLatency.WithLabelValues(topic).Observe(dur.Seconds())
}

func observeHandled(topic, result string, dur time.Duration) {
	handledTotal.WithLabelValues(topic, result).Inc()
	handleLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
