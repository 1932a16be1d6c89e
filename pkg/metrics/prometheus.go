package metrics

import (
	"EffortLab/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	trials       *prometheus.CounterVec
	markers      *prometheus.CounterVec
	estimates    prometheus.Histogram
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the recorder with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		trials: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "effortlab_trials_total",
				Help: "Trials judged, by block type and result",
			},
			[]string{"action", "result"},
		),
		markers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "effortlab_markers_total",
				Help: "Event markers handed to the trigger, by delivery outcome",
			},
			[]string{"marker", "outcome"},
		),
		estimates: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "effortlab_staircase_k",
				Help:    "Effort-cost coefficient after each staircase update",
				Buckets: prometheus.LinearBuckets(0, 0.1, 16),
			},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "effortlab_records_sent_total",
				Help: "Trial records written to a backend",
			},
			[]string{"backend"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "effortlab_errors_total",
				Help: "Errors encountered, by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "effortlab_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordTrial(action models.ActionType, result models.Result) {
	res := string(result)
	if result == models.ResultNone {
		res = "reject"
	}
	r.trials.WithLabelValues(string(action), res).Inc()
}

func (r *Recorder) RecordMarker(m models.Marker, delivered bool) {
	outcome := "sent"
	if !delivered {
		outcome = "dropped"
	}
	r.markers.WithLabelValues(m.String(), outcome).Inc()
}

func (r *Recorder) RecordEstimate(k float64) {
	r.estimates.Observe(k)
}

// RecordMessageSent records a trial record written to a backend.
func (r *Recorder) RecordMessageSent(backend string) {
	r.messagesSent.WithLabelValues(backend).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used by tests and by tools that do not expose /metrics.
type Nop struct{}

func (Nop) RecordTrial(models.ActionType, models.Result) {}
func (Nop) RecordMarker(models.Marker, bool)             {}
func (Nop) RecordEstimate(float64)                       {}
func (Nop) RecordMessageSent(string)                     {}
func (Nop) RecordError(string)                           {}
func (Nop) RecordLatency(string, float64)                {}
