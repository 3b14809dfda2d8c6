package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - runner",
			input:    "runner",
			expected: map[ServiceMode]bool{ServiceModeRunner: true},
		},
		{
			name:  "services with spaces",
			input: " http , runner ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeRunner: true,
			},
		},
		{
			name:  "duplicate services",
			input: "runner,http,runner",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeRunner: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name           string
		services       string
		expectedHTTP   bool
		expectedRunner bool
	}{
		{name: "http only", services: "http", expectedHTTP: true},
		{name: "runner only", services: "runner", expectedRunner: true},
		{name: "both", services: "http,runner", expectedHTTP: true, expectedRunner: true},
		{name: "invalid disables everything", services: "invalid-service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v, got %v", tt.expectedHTTP, cfg.IsHTTPServerEnabled())
			}
			if cfg.IsRunnerEnabled() != tt.expectedRunner {
				t.Errorf("IsRunnerEnabled(): expected %v, got %v", tt.expectedRunner, cfg.IsRunnerEnabled())
			}
		})
	}
}

func TestValidServiceModes(t *testing.T) {
	expected := []ServiceMode{ServiceModeHTTP, ServiceModeRunner}
	if modes := ValidServiceModes(); !reflect.DeepEqual(modes, expected) {
		t.Errorf("expected %v, got %v", expected, modes)
	}
}

func TestAppConfig_ParseDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "http,runner" {
		t.Errorf("expected default services, got %q", cfg.Services)
	}
	if cfg.Postgres.Name != "harvestd" {
		t.Errorf("expected default database name, got %q", cfg.Postgres.Name)
	}
	if cfg.Runner.Interval != 5*time.Minute {
		t.Errorf("expected default runner interval, got %v", cfg.Runner.Interval)
	}
	if cfg.Harvest.SiteID != "default" {
		t.Errorf("expected default site id, got %q", cfg.Harvest.SiteID)
	}
	if cfg.Queue.Backend != QueueBackendRedis {
		t.Errorf("expected redis queue backend, got %q", cfg.Queue.Backend)
	}
	if cfg.Queue.RedisGatherKey != "default:harvest_job_id" {
		t.Errorf("expected gather key derived from site id, got %q", cfg.Queue.RedisGatherKey)
	}
	if cfg.Harvest.ExternalMarkerKey != "metadata-source" || cfg.Harvest.ExternalMarkerValue != "dms" {
		t.Errorf("unexpected external marker %q=%q", cfg.Harvest.ExternalMarkerKey, cfg.Harvest.ExternalMarkerValue)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestAppConfig_ParseHarvestEnv(t *testing.T) {
	t.Setenv("SERVICES", "runner")
	t.Setenv("HARVEST_SITE_ID", "catalog-prod")
	t.Setenv("HARVEST_SITE_URL", "https://catalog.example.gov/")
	t.Setenv("HARVEST_EMAIL_NOTIFICATIONS", "true")
	t.Setenv("HARVEST_FIXED_PACKAGES_EMAIL_TO", " ops@example.gov ")
	t.Setenv("RUNNER_SCHEDULE", "*/15 * * * *")
	t.Setenv("RUNNER_LOCK_TTL", "10m")
	t.Setenv("QUEUE_BACKEND", "NATS")
	t.Setenv("QUEUE_NATS_SUBJECT", "catalog.gather")
	t.Setenv("SEARCH_SOLR_URL", "http://solr:8983/solr/ckan/")
	t.Setenv("MAIL_SMTP_HOST", "smtp.example.gov")
	t.Setenv("MAIL_SMTP_PORT", "587")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.IsHTTPServerEnabled() || !cfg.IsRunnerEnabled() {
		t.Errorf("expected runner only, got %q", cfg.Services)
	}
	if cfg.Harvest.SiteURL != "https://catalog.example.gov" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Harvest.SiteURL)
	}
	if !cfg.Harvest.EmailNotifications {
		t.Errorf("expected email notifications enabled")
	}
	if cfg.Harvest.FixedPackagesEmailTo != "ops@example.gov" {
		t.Errorf("expected trimmed recipient, got %q", cfg.Harvest.FixedPackagesEmailTo)
	}
	if cfg.Queue.Backend != QueueBackendNATS || cfg.Queue.NATSSubject != "catalog.gather" {
		t.Errorf("unexpected queue config %+v", cfg.Queue)
	}
	if cfg.Queue.RedisGatherKey != "catalog-prod:harvest_job_id" {
		t.Errorf("expected gather key derived from site id, got %q", cfg.Queue.RedisGatherKey)
	}
	if cfg.Search.SolrURL != "http://solr:8983/solr/ckan" {
		t.Errorf("expected trimmed solr url, got %q", cfg.Search.SolrURL)
	}
	if !cfg.Mail.Enabled() || cfg.Mail.SMTPPort != 587 {
		t.Errorf("unexpected mail config %+v", cfg.Mail)
	}
}

func TestRunnerConfig_SanitizeAndValidate(t *testing.T) {
	cfg := RunnerConfig{Interval: time.Second, LockTTL: 0, Schedule: "  @hourly "}
	cfg.Sanitize()

	if cfg.Interval != 10*time.Second {
		t.Errorf("expected interval clamp, got %v", cfg.Interval)
	}
	if cfg.LockTTL != time.Minute {
		t.Errorf("expected lock ttl clamp, got %v", cfg.LockTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected descriptor to parse, got %v", err)
	}

	cfg.Schedule = "every tuesday"
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected invalid cron expression to fail")
	}
}

func TestQueueConfig_Validate(t *testing.T) {
	cfg := QueueConfig{Backend: "kafka"}
	cfg.Sanitize("site")
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected unknown backend to fail")
	}

	cfg = QueueConfig{Backend: QueueBackendNATS, NATSURL: " "}
	cfg.Sanitize("site")
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected nats backend without url to fail")
	}

	cfg = QueueConfig{Backend: " ", RedisGatherKey: "custom"}
	cfg.Sanitize("site")
	if cfg.Backend != QueueBackendRedis || cfg.RedisGatherKey != "custom" {
		t.Errorf("unexpected sanitized queue config %+v", cfg)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}
	if cfg.PrometheusNamespace != "harvestd" {
		t.Fatalf("expected default prometheus namespace, got %q", cfg.PrometheusNamespace)
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		StatsdPrefix:  ".harvest.",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.StatsdPrefix != "harvest" {
		t.Fatalf("expected prefix dots trimmed, got %q", cfg.StatsdPrefix)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatalf("expected slack disabled without webhook")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatalf("expected pagerduty disabled without routing key")
	}
	if cfg.Slack.Username != "harvestd" {
		t.Fatalf("expected default slack username, got %q", cfg.Slack.Username)
	}
	if cfg.PagerDuty.Source != "harvestd" || cfg.PagerDuty.Component != "harvest-runner" {
		t.Fatalf("unexpected pagerduty defaults %+v", cfg.PagerDuty)
	}

	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack:   SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.example.com/x"},
	}
	cfg.Sanitize()
	if cfg.Slack.Enabled {
		t.Fatalf("expected sinks disabled when notifications are off")
	}
}
