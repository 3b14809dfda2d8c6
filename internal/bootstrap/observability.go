package bootstrap

import (
	"log/slog"
	"net/http"

	"github.com/target/harvestd/config"
	"github.com/target/harvestd/internal/observability/notify/pagerduty"
	"github.com/target/harvestd/internal/observability/notify/slack"
	"github.com/target/harvestd/internal/observability/prom"
	"github.com/target/harvestd/internal/observability/statsd"
	"github.com/target/harvestd/internal/service/failurenotifier"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Metrics fans out to every enabled backend. Nil when none is enabled.
	Metrics statsd.Sink
	// MetricsHandler serves the Prometheus registry. Nil when Prometheus is disabled.
	MetricsHandler  http.Handler
	FailureNotifier *failurenotifier.Service

	statsdClient *statsd.Client
}

// Close releases the StatsD connection.
func (o ObservabilityContainer) Close() error {
	if o.statsdClient == nil {
		return nil
	}
	return o.statsdClient.Close()
}

// BuildObservability configures metrics and notification adapters. siteURL links
// failing sources in Slack messages.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, siteURL string) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var (
		out   ObservabilityContainer
		sinks statsd.Multi
	)
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.StatsdPrefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.statsdClient = client
			sinks = append(sinks, client)
		}
	}
	if cfg.Metrics.PrometheusEnabled {
		promSink := prom.NewSink(prom.Options{Namespace: cfg.Metrics.PrometheusNamespace, Logger: obsLogger})
		out.MetricsHandler = promSink.Handler()
		sinks = append(sinks, promSink)
	}
	if len(sinks) > 0 {
		out.Metrics = sinks
	}

	out.FailureNotifier = buildFailureNotifier(obsLogger, cfg.Notifications, siteURL)
	return out
}

func buildFailureNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
	siteURL string,
) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger,
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			SiteURL:    siteURL,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:      baseLogger,
		Sinks:       sinks,
		SendTimeout: cfg.Timeout,
	})
}
