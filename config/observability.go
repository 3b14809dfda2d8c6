package config

import (
	"strings"
	"time"
)

const (
	defaultObservabilityName  = "harvestd"
	defaultPagerDutyComponent = "harvest-runner"
)

// ObservabilityConfig holds the harvest pass metrics settings and the sinks that
// hear about jobs failing to dispatch or reconcile.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize cleans both halves.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig selects where pass, dispatch and reconcile counters go.
// StatsD and Prometheus can run side by side.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	// StatsdPrefix is prepended to every metric name, without surrounding dots.
	StatsdPrefix string `env:"OBSERVABILITY_METRICS_STATSD_PREFIX" envDefault:"harvestd"`

	// PrometheusEnabled exposes collectors on GET /metrics.
	PrometheusEnabled   bool   `env:"OBSERVABILITY_METRICS_PROMETHEUS_ENABLED"   envDefault:"true"`
	PrometheusNamespace string `env:"OBSERVABILITY_METRICS_PROMETHEUS_NAMESPACE" envDefault:"harvestd"`
}

// Sanitize turns StatsD off when no address is left after trimming.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	c.StatsdPrefix = strings.Trim(strings.TrimSpace(c.StatsdPrefix), ".")
	if c.PrometheusNamespace = strings.TrimSpace(c.PrometheusNamespace); c.PrometheusNamespace == "" {
		c.PrometheusNamespace = defaultObservabilityName
	}
}

// IsEnabled reports whether the StatsD client should be built.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig configures the failure notifier. Each sink
// call gets Timeout and is retried up to RetryLimit times.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                        `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                         `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig     `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty  PagerDutyNotificationConfig `                                                                 envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize drops sinks that cannot deliver: everything when notifications are
// off, Slack without a webhook, PagerDuty without a routing key.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.Enabled && c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// SlackNotificationConfig is the incoming webhook that receives harvest failures.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	// Channel overrides the webhook's default channel.
	Channel  string `env:"CHANNEL"`
	Username string `env:"USERNAME" envDefault:"harvestd"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyNotificationConfig routes harvest failures to an Events API v2 service.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	// Source and Component label the alert; Component defaults to the runner.
	Source    string `env:"SOURCE"    envDefault:"harvestd"`
	Component string `env:"COMPONENT" envDefault:"harvest-runner"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = defaultPagerDutyComponent
	}
}
