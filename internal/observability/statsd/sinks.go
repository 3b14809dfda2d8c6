package statsd

import (
	"sync"
	"time"
)

// Multi fans every metric out to several sinks. Nil sinks are skipped.
type Multi []Sink

var _ Sink = Multi(nil)

// Count implements Sink.
func (m Multi) Count(name string, value int64, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Count(name, value, tags)
		}
	}
}

// Gauge implements Sink.
func (m Multi) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Gauge(name, value, tags)
		}
	}
}

// Timing implements Sink.
func (m Multi) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range m {
		if s != nil {
			s.Timing(name, value, tags)
		}
	}
}

// Recorder keeps metrics in memory. Tests use it to assert on emitted metrics.
type Recorder struct {
	mu      sync.Mutex
	counts  map[string]int64
	gauges  map[string]float64
	timings map[string][]time.Duration
	tags    map[string]map[string]string
}

var _ Sink = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counts:  map[string]int64{},
		gauges:  map[string]float64{},
		timings: map[string][]time.Duration{},
		tags:    map[string]map[string]string{},
	}
}

// Count implements Sink.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += value
	r.tags[name] = tags
}

// Gauge implements Sink.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
	r.tags[name] = tags
}

// Timing implements Sink.
func (r *Recorder) Timing(name string, value time.Duration, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[name] = append(r.timings[name], value)
}

// Counts returns a copy of the accumulated counters.
func (r *Recorder) Counts() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Gauges returns a copy of the latest gauge values.
func (r *Recorder) Gauges() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.gauges))
	for k, v := range r.gauges {
		out[k] = v
	}
	return out
}

// Timings returns the recorded durations for a metric.
func (r *Recorder) Timings(name string) []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.timings[name]...)
}

// Tags returns the tags of the last count or gauge recorded under name.
func (r *Recorder) Tags(name string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags[name]
}
