package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the ops HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeRunner runs harvest passes on a timer.
	ServiceModeRunner ServiceMode = "runner"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeRunner}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		switch mode {
		case ServiceModeHTTP, ServiceModeRunner:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, runner)", name)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

// CronParser accepts standard five-field expressions and descriptors such as @hourly.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// RunnerConfig controls the periodic harvest pass.
type RunnerConfig struct {
	// Interval between passes when Schedule is empty.
	Interval time.Duration `env:"RUNNER_INTERVAL" envDefault:"5m"`

	// Schedule is a cron expression. When set it replaces Interval.
	Schedule string `env:"RUNNER_SCHEDULE"`

	// LockTTL bounds how long one pass may hold the deployment-wide pass lock.
	LockTTL time.Duration `env:"RUNNER_LOCK_TTL" envDefault:"30m"`

	// RunOnStart triggers a pass immediately when the runner starts.
	RunOnStart bool `env:"RUNNER_RUN_ON_START" envDefault:"false"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	r.Schedule = strings.TrimSpace(r.Schedule)
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.LockTTL < time.Minute {
		r.LockTTL = time.Minute
	}
}

// Validate checks the cron expression.
func (r *RunnerConfig) Validate() error {
	if r.Schedule == "" {
		return nil
	}
	if _, err := CronParser.Parse(r.Schedule); err != nil {
		return fmt.Errorf("RUNNER_SCHEDULE %q: %w", r.Schedule, err)
	}
	return nil
}
