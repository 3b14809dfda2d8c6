package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/target/harvestd/config"
	"github.com/target/harvestd/internal/bootstrap"
	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/harvester"
	"github.com/target/harvestd/internal/service"
)

type passRunner interface {
	RunPass(ctx context.Context, sourceID string) (service.PassResult, error)
}

type jobCreator interface {
	CreateJob(ctx context.Context, sourceID string) (*model.Job, error)
}

type reindexer interface {
	ReindexSource(ctx context.Context, sourceID string, deferCommit bool) error
	ReindexAllSources(ctx context.Context) (service.ReindexAllResult, error)
}

type sourceAdmin interface {
	ClearSource(ctx context.Context, sourceID string) (core.ClearSourceResult, error)
	ClearSourceIndex(ctx context.Context, sourceID string) error
	ImportObjects(ctx context.Context, req service.ImportRequest) (service.ImportResult, error)
}

type harvesterLister interface {
	List() []harvester.Info
}

// adminServices is what commands operate on.
type adminServices struct {
	Passes     passRunner
	Jobs       jobCreator
	Reindex    reindexer
	Admin      sourceAdmin
	Harvesters harvesterLister
	// Migrate applies schema migrations.
	Migrate func(ctx context.Context) error
}

type openOptions struct {
	// NeedQueue connects Redis and the gather queue.
	NeedQueue bool
	// MigrateOnly skips building services.
	MigrateOnly bool
}

type openFunc func(ctx context.Context, cfg *config.AppConfig, opts openOptions, logger *slog.Logger) (
	*adminServices, func() error, error)

func openInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	opts openOptions,
	logger *slog.Logger,
) (*adminServices, func() error, error) {
	if opts.MigrateOnly {
		db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return &adminServices{
			Migrate: func(ctx context.Context) error { return bootstrap.RunMigrations(ctx, db, logger) },
		}, db.Close, nil
	}

	infra, err := bootstrap.OpenInfrastructure(ctx, cfg, bootstrap.InfraOptions{SkipQueue: !opts.NeedQueue}, logger)
	if err != nil {
		return nil, nil, err
	}
	svcs, err := infra.Services(cfg, bootstrap.ServiceDeps{Logger: logger})
	if err != nil {
		return nil, nil, errors.Join(err, infra.Close())
	}

	out := &adminServices{
		Jobs:       svcs.Jobs,
		Reindex:    svcs.Reindex,
		Admin:      svcs.SourceAdmin,
		Harvesters: svcs.Harvesters,
	}
	if svcs.Passes != nil {
		out.Passes = svcs.Passes
	}
	return out, infra.Close, nil
}

// withServices opens dependencies, runs fn and closes them again.
func withServices(cmdCtx *commandContext, opts openOptions, fn func(*adminServices) error) error {
	svcs, closeFn, err := cmdCtx.open(cmdCtx.Ctx, &cmdCtx.Config, opts, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeFn(); closeErr != nil {
			cmdCtx.Logger.Warn("close failed", "error", closeErr)
		}
	}()
	return fn(svcs)
}
