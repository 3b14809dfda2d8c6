package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/target/harvestd/config"
	"github.com/target/harvestd/internal/adapters/harvestrunner"
	"github.com/target/harvestd/internal/adapters/queue/natsqueue"
	"github.com/target/harvestd/internal/adapters/queue/redisqueue"
	"github.com/target/harvestd/internal/adapters/smtpmail"
	"github.com/target/harvestd/internal/adapters/solr"
	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/data"
	"github.com/target/harvestd/internal/observability/statsd"
)

// BuildQueue returns the gather queue connector for the configured backend.
// The NATS stream is created or updated before the connector is returned.
//
//nolint:ireturn // the backend is chosen at runtime.
func BuildQueue(
	ctx context.Context,
	cfg config.QueueConfig,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
) (core.QueueConnector, error) {
	switch cfg.Backend {
	case config.QueueBackendNATS:
		conn, err := natsqueue.NewConnector(natsqueue.Options{
			URL:     cfg.NATSURL,
			Stream:  cfg.NATSStream,
			Subject: cfg.NATSSubject,
			MaxAge:  cfg.NATSMaxAge,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build nats queue: %w", err)
		}
		if err := conn.EnsureStream(ctx); err != nil {
			return nil, fmt.Errorf("ensure nats stream: %w", err)
		}
		return conn, nil

	case config.QueueBackendRedis, "":
		if redisClient == nil {
			return nil, errors.New("redis queue backend requires a redis client")
		}
		conn, err := redisqueue.NewConnector(redisqueue.Options{Client: redisClient, Key: cfg.RedisGatherKey})
		if err != nil {
			return nil, fmt.Errorf("build redis queue: %w", err)
		}
		return conn, nil

	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}

// BuildSearchIndex returns the Solr client, or a no-op index when search is disabled.
//
//nolint:ireturn // a no-op index stands in when Solr is not configured.
func BuildSearchIndex(cfg config.SearchConfig, siteID string, logger *slog.Logger) (core.SearchIndex, error) {
	if !cfg.Enabled() {
		if logger != nil {
			logger.Warn("search index disabled, index updates are dropped")
		}
		return solr.NopIndex{}, nil
	}
	client, err := solr.NewClient(solr.Options{
		CoreURL: cfg.SolrURL,
		SiteID:  siteID,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build solr client: %w", err)
	}
	return client, nil
}

// BuildMailer returns the SMTP mailer, or a mailer that only logs when no relay is configured.
//
//nolint:ireturn // a logging mailer stands in when SMTP is not configured.
func BuildMailer(cfg config.MailConfig, logger *slog.Logger) (core.Mailer, error) {
	if !cfg.Enabled() {
		return smtpmail.LogMailer{Logger: logger}, nil
	}
	m, err := smtpmail.New(smtpmail.Options{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build smtp mailer: %w", err)
	}
	return m, nil
}

// HarvestRunnerConfig contains dependencies for the periodic harvest runner.
type HarvestRunnerConfig struct {
	Passes      harvestrunner.PassRunner
	RedisClient redis.UniversalClient
	Runner      config.RunnerConfig
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// RunHarvestRunner runs harvest passes until ctx is canceled.
func RunHarvestRunner(ctx context.Context, cfg HarvestRunnerConfig) error {
	opts := harvestrunner.RunnerOptions{
		Passes:     cfg.Passes,
		LockTTL:    cfg.Runner.LockTTL,
		Interval:   cfg.Runner.Interval,
		RunOnStart: cfg.Runner.RunOnStart,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	}
	if cfg.RedisClient != nil {
		opts.Lock = data.NewRedisLockRepo(cfg.RedisClient)
	}
	if cfg.Runner.Schedule != "" {
		schedule, err := parseSchedule(cfg.Runner.Schedule)
		if err != nil {
			return err
		}
		opts.Schedule = schedule
	}

	runner, err := harvestrunner.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create harvest runner: %w", err)
	}
	return runner.Run(ctx)
}

//nolint:ireturn // cron.Schedule is the library's own abstraction.
func parseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := config.CronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse RUNNER_SCHEDULE %q: %w", expr, err)
	}
	return schedule, nil
}
