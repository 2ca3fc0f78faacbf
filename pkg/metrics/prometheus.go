package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent       *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	latency            *prometheus.HistogramVec
	forecastsGenerated *prometheus.CounterVec
	forecastCacheHits  *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	estimatedSavings   *prometheus.GaugeVec
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enercast_messages_sent_total",
				Help: "Measurements forwarded to a backend",
			},
			[]string{"backend", "building"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enercast_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enercast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		forecastsGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enercast_forecasts_generated_total",
				Help: "Forecasts generated and stored",
			},
			[]string{"building", "model"},
		),
		forecastCacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enercast_forecast_cache_hits_total",
				Help: "Forecast requests served from a fresh stored forecast",
			},
			[]string{"building"},
		),
		validationFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enercast_forecast_validation_failures_total",
				Help: "Forecasts that failed the quality gate",
			},
			[]string{"model"},
		),
		estimatedSavings: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "enercast_estimated_daily_savings",
				Help: "Latest estimated daily savings per building",
			},
			[]string{"building"},
		),
	}
}

func (r *Recorder) RecordMessageSent(backend, building string) {
	r.messagesSent.WithLabelValues(backend, building).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordForecastGenerated(building, model string) {
	r.forecastsGenerated.WithLabelValues(building, model).Inc()
}

func (r *Recorder) RecordForecastCacheHit(building string) {
	r.forecastCacheHits.WithLabelValues(building).Inc()
}

func (r *Recorder) RecordValidationFailure(model string) {
	r.validationFailures.WithLabelValues(model).Inc()
}

func (r *Recorder) RecordEstimatedSavings(building string, daily float64) {
	r.estimatedSavings.WithLabelValues(building).Set(daily)
}
