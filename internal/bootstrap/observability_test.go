package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/harvestd/config"
)

func TestBuildObservability_Disabled(t *testing.T) {
	obs := BuildObservability(discardLogger(), config.ObservabilityConfig{}, "")
	assert.Nil(t, obs.Metrics)
	assert.Nil(t, obs.MetricsHandler)
	require.NotNil(t, obs.FailureNotifier)
	assert.False(t, obs.FailureNotifier.Enabled())
	assert.NoError(t, obs.Close())
}

func TestBuildObservability_Prometheus(t *testing.T) {
	cfg := config.ObservabilityConfig{}
	cfg.Metrics.PrometheusEnabled = true
	cfg.Metrics.PrometheusNamespace = "harvestd"

	obs := BuildObservability(discardLogger(), cfg, "")
	require.NotNil(t, obs.Metrics)
	require.NotNil(t, obs.MetricsHandler)

	obs.Metrics.Count("pass.runs", 1, map[string]string{"result": "success"})

	rec := httptest.NewRecorder()
	obs.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvestd_")
}

func TestBuildFailureNotifier_Sinks(t *testing.T) {
	cfg := config.ObservabilityNotificationsConfig{Enabled: true}
	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = "https://hooks.slack.invalid/T000"
	cfg.PagerDuty.Enabled = true
	cfg.PagerDuty.RoutingKey = "routing-key"
	cfg.Sanitize()

	svc := buildFailureNotifier(discardLogger(), cfg, "https://catalog.example.gov")
	assert.True(t, svc.Enabled())

	svc = buildFailureNotifier(discardLogger(), config.ObservabilityNotificationsConfig{}, "")
	assert.False(t, svc.Enabled())
}
