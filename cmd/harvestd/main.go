package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/harvestd/config"
	"github.com/target/harvestd/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	logStartupInfo(ctx, logger, &cfg)

	infra, err := bootstrap.OpenInfrastructure(ctx, &cfg, bootstrap.InfraOptions{
		Migrate: cfg.Postgres.RunMigrationsOnStart,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()
	if !cfg.Postgres.RunMigrationsOnStart {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := infra.Services(&cfg, bootstrap.ServiceDeps{Logger: logger})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		Infra:    infra,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting harvestd",
		"site_id", cfg.Harvest.SiteID,
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"queue_backend", cfg.Queue.Backend,
		"search_enabled", cfg.Search.Enabled(),
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}
