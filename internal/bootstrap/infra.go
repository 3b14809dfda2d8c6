package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/harvestd/config"
	"github.com/target/harvestd/internal/core"
)

// Infrastructure holds the connections and adapters shared by every entrypoint.
type Infrastructure struct {
	DB            *sql.DB
	Redis         redis.UniversalClient
	Queue         core.QueueConnector
	Index         core.SearchIndex
	Mailer        core.Mailer
	Observability ObservabilityContainer
}

// InfraOptions selects the optional parts of Infrastructure.
type InfraOptions struct {
	// SkipQueue leaves Redis and the gather queue unconnected; maintenance
	// commands that never dispatch jobs use it.
	SkipQueue bool
	// Migrate applies migrations after connecting to Postgres.
	Migrate bool
}

// OpenInfrastructure connects Postgres, Redis and the adapters configured in cfg.
// On error everything opened so far is closed.
func OpenInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	opts InfraOptions,
	logger *slog.Logger,
) (_ *Infrastructure, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	infra := &Infrastructure{}
	defer func() {
		if err != nil {
			if cerr := infra.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}()

	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}
	if infra.DB, err = ConnectDB(dbCfg); err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if opts.Migrate {
		if err = RunMigrations(ctx, infra.DB, logger); err != nil {
			return nil, err
		}
	}

	if !opts.SkipQueue {
		if infra.Redis, err = ConnectRedis(dbCfg); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if infra.Queue, err = BuildQueue(ctx, cfg.Queue, infra.Redis, logger); err != nil {
			return nil, err
		}
	}

	if infra.Index, err = BuildSearchIndex(cfg.Search, cfg.Harvest.SiteID, logger); err != nil {
		return nil, err
	}
	if infra.Mailer, err = BuildMailer(cfg.Mail, logger); err != nil {
		return nil, err
	}
	infra.Observability = BuildObservability(logger, cfg.Observability, cfg.Harvest.SiteURL)
	return infra, nil
}

// Services wires the application services on top of the infrastructure.
func (i *Infrastructure) Services(cfg *config.AppConfig, deps ServiceDeps) (*ServiceContainer, error) {
	deps.Config = cfg
	deps.DB = i.DB
	deps.Queue = i.Queue
	deps.Index = i.Index
	deps.Mailer = i.Mailer
	deps.Observability = i.Observability
	return NewServices(&deps)
}

// Close releases every connection. It is safe on a partially opened Infrastructure.
func (i *Infrastructure) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if err := i.Observability.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close statsd: %w", err))
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
