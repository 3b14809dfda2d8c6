// Package config loads harvestd configuration from the environment.
package config

import (
	"errors"
	"fmt"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres and Redis
//   - http.go: ops HTTP server
//   - services.go: service modes and the harvest runner
//   - harvest.go: site identity and reconciliation behaviour
//   - queue.go: gather queue backend
//   - search.go: search index
//   - mail.go: SMTP relay
//   - observability.go: metrics and failure notifications
type AppConfig struct {
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services.
	Services string `env:"SERVICES" envDefault:"http,runner"`

	Runner  RunnerConfig
	Harvest HarvestConfig
	Queue   QueueConfig  `envPrefix:"QUEUE_"`
	Search  SearchConfig `envPrefix:"SEARCH_"`
	Mail    MailConfig   `envPrefix:"MAIL_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Runner.Sanitize()
	c.Harvest.Sanitize()
	c.Queue.Sanitize(c.Harvest.SiteID)
	c.Search.Sanitize()
	c.Mail.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports settings that cannot be corrected by Sanitize.
func (c *AppConfig) Validate() error {
	var errs []error
	if _, err := c.GetEnabledServices(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Runner.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsRunnerEnabled returns true if the periodic harvest runner is enabled.
func (c *AppConfig) IsRunnerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeRunner]
}
