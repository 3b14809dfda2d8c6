package prom

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns family name -> label-joined key -> metric value.
func gathered(t *testing.T, s *Sink) map[string]map[string]float64 {
	t.Helper()
	families, err := s.Registry().Gather()
	require.NoError(t, err)

	out := map[string]map[string]float64{}
	for _, mf := range families {
		values := map[string]float64{}
		for _, m := range mf.GetMetric() {
			key := ""
			for _, lp := range m.GetLabel() {
				key += lp.GetName() + "=" + lp.GetValue() + ";"
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = values
	}
	return out
}

func TestSinkCounts(t *testing.T) {
	s := NewSink(Options{Registry: prometheus.NewRegistry()})

	s.Count("harvest.pass", 1, map[string]string{"result": "success"})
	s.Count("harvest.pass", 2, map[string]string{"result": "success"})
	s.Count("harvest.pass", 1, map[string]string{"result": "error", "error_class": "timeout"})

	got := gathered(t, s)["harvestd_harvest_pass_total"]
	assert.InDelta(t, 3, got["result=success;"], 0.0001)
	assert.InDelta(t, 1, got["result=error;"], 0.0001)
}

func TestSinkGaugeAndTiming(t *testing.T) {
	s := NewSink(Options{Registry: prometheus.NewRegistry()})

	s.Gauge("harvest.pass.last_success_epoch", 42, nil)
	s.Timing("harvest.step_duration", 250*time.Millisecond, map[string]string{"step": "dispatch"})
	s.Timing("harvest.step_duration", time.Second, map[string]string{"step": "dispatch"})

	got := gathered(t, s)
	assert.InDelta(t, 42, got["harvestd_harvest_pass_last_success_epoch"][""], 0.0001)
	assert.InDelta(t, 2, got["harvestd_harvest_step_duration_seconds"]["step=dispatch;"], 0.0001)
}

func TestSinkIgnoresNegativeCounts(t *testing.T) {
	s := NewSink(Options{Registry: prometheus.NewRegistry()})
	s.Count("harvest.jobs_created", -1, nil)
	assert.NotContains(t, gathered(t, s), "harvestd_harvest_jobs_created_total")
}

func TestHandlerExposesMetrics(t *testing.T) {
	s := NewSink(Options{Namespace: "hv"})
	s.Count("harvest.jobs_created", 2, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hv_harvest_jobs_created_total 2")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "harvest_pass_duration", metricName("harvest.pass-duration"))
	assert.Equal(t, "a_b", metricName(" .a.b. "))
}
