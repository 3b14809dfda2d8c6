// Package prom exposes harvest metrics through a Prometheus registry.
package prom

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/harvestd/internal/observability/statsd"
)

// Options configures a Sink.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "harvestd".
	Namespace string
	// Registry receives the collectors. A fresh registry with process and Go
	// collectors is created when nil.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Sink adapts the statsd.Sink calls made by the services to Prometheus collectors.
// Collectors are created on first use; the label set seen first for a metric is kept
// and later tags are mapped onto it.
type Sink struct {
	namespace string
	registry  *prometheus.Registry
	logger    *slog.Logger

	mu         sync.Mutex
	counters   map[string]*vec[*prometheus.CounterVec]
	gauges     map[string]*vec[*prometheus.GaugeVec]
	histograms map[string]*vec[*prometheus.HistogramVec]
}

type vec[T any] struct {
	labels    []string
	collector T
}

var _ statsd.Sink = (*Sink)(nil)

// NewSink builds a Sink.
func NewSink(opts Options) *Sink {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ns := strings.TrimSpace(opts.Namespace)
	if ns == "" {
		ns = "harvestd"
	}
	return &Sink{
		namespace:  metricName(ns),
		registry:   reg,
		logger:     logger.With("component", "prom"),
		counters:   map[string]*vec[*prometheus.CounterVec]{},
		gauges:     map[string]*vec[*prometheus.GaugeVec]{},
		histograms: map[string]*vec[*prometheus.HistogramVec]{},
	}
}

// Registry returns the underlying registry.
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Count implements statsd.Sink.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	if value < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.counters[name]
	if !ok {
		labels := labelNames(tags)
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      metricName(name) + "_total",
			Help:      "Count of " + name + ".",
		}, labels)
		if !s.register(name, c) {
			return
		}
		v = &vec[*prometheus.CounterVec]{labels: labels, collector: c}
		s.counters[name] = v
	}
	v.collector.WithLabelValues(labelValues(v.labels, tags)...).Add(float64(value))
}

// Gauge implements statsd.Sink.
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.gauges[name]
	if !ok {
		labels := labelNames(tags)
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      metricName(name),
			Help:      "Current value of " + name + ".",
		}, labels)
		if !s.register(name, g) {
			return
		}
		v = &vec[*prometheus.GaugeVec]{labels: labels, collector: g}
		s.gauges[name] = v
	}
	v.collector.WithLabelValues(labelValues(v.labels, tags)...).Set(value)
}

// Timing implements statsd.Sink. Durations are observed in seconds.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.histograms[name]
	if !ok {
		labels := labelNames(tags)
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      metricName(name) + "_seconds",
			Help:      "Duration of " + name + ".",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, labels)
		if !s.register(name, h) {
			return
		}
		v = &vec[*prometheus.HistogramVec]{labels: labels, collector: h}
		s.histograms[name] = v
	}
	v.collector.WithLabelValues(labelValues(v.labels, tags)...).Observe(value.Seconds())
}

func (s *Sink) register(name string, c prometheus.Collector) bool {
	if err := s.registry.Register(c); err != nil {
		s.logger.Warn("prometheus register failed", "metric", name, "error", err)
		return false
	}
	return true
}

func metricName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		if n := metricName(k); n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, tags map[string]string) []string {
	byName := make(map[string]string, len(tags))
	for k, v := range tags {
		byName[metricName(k)] = v
	}
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = byName[n]
	}
	return values
}
