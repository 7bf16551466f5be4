package telemetry

import (
	"net/http"

	"github.com/maxpert/reactivator/cfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "reactivator"

var registry *prometheus.Registry

type Histogram interface {
	Observe(float64)
}

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
	SetToCurrentTime()
}

// CounterVec is a counter partitioned by label values
type CounterVec interface {
	With(labels ...string) Counter
}

type NoopStat struct{}

type noopCounterVec struct{}

func (n noopCounterVec) With(labels ...string) Counter { return NoopStat{} }

type prometheusCounterVec struct {
	vec *prometheus.CounterVec
}

func (p *prometheusCounterVec) With(labelValues ...string) Counter {
	return p.vec.WithLabelValues(labelValues...)
}

func (n NoopStat) Observe(float64)   {}
func (n NoopStat) Set(float64)       {}
func (n NoopStat) Dec()              {}
func (n NoopStat) Sub(float64)       {}
func (n NoopStat) SetToCurrentTime() {}
func (n NoopStat) Inc()              {}
func (n NoopStat) Add(float64)       {}

func constLabels() prometheus.Labels {
	return prometheus.Labels{
		"source_id":   cfg.Config.SourceID,
		"instance_id": cfg.Config.InstanceID,
	}
}

func NewCounter(name string, help string) Counter {
	if registry == nil {
		return NoopStat{}
	}

	ret := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: constLabels(),
	})

	registry.MustRegister(ret)
	return ret
}

func NewGauge(name string, help string) Gauge {
	if registry == nil {
		return NoopStat{}
	}

	ret := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: constLabels(),
	})

	registry.MustRegister(ret)
	return ret
}

func NewHistogramWithBuckets(name, help string, buckets []float64) Histogram {
	if registry == nil {
		return NoopStat{}
	}

	ret := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: constLabels(),
	})

	registry.MustRegister(ret)
	return ret
}

func NewCounterVec(name, help string, labels []string) CounterVec {
	if registry == nil {
		return noopCounterVec{}
	}

	ret := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: constLabels(),
	}, labels)

	registry.MustRegister(ret)
	return &prometheusCounterVec{vec: ret}
}

// InitializeTelemetry creates the metrics registry and registers all
// reactivator metrics. Without it every metric is a noop.
func InitializeTelemetry() {
	if !cfg.Config.Prometheus.Enabled {
		return
	}

	registry = prometheus.NewRegistry()

	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	InitMetrics()

	log.Info().Msg("Prometheus metrics enabled at /metrics")
}

// GetMetricsHandler returns the HTTP handler for Prometheus metrics
// Returns nil if Prometheus is not enabled
func GetMetricsHandler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
