package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/harvestd/config"
	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/data"
	"github.com/target/harvestd/internal/domain/report"
	"github.com/target/harvestd/internal/harvester"
	"github.com/target/harvestd/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Scheduler     *service.SchedulerService
	Dispatcher    *service.DispatcherService
	Reconciler    *service.ReconcilerService
	Reindex       *service.ReindexService
	SourceAdmin   *service.SourceAdminService
	Passes        *service.HarvestRunService
	Harvesters    *harvester.Registry
	Observability ObservabilityContainer
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig // Required
	DB     *sql.DB           // Required
	Queue  core.QueueConnector
	Index  core.SearchIndex // Required
	Mailer core.Mailer      // Required

	Observability ObservabilityContainer
	// Harvesters are the source-type plug-ins used to reimport objects.
	Harvesters   []harvester.Harvester
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Sources       *data.SourceRepo
	Jobs          *data.JobRepo
	Objects       *data.HarvestObjectRepo
	Datasets      *data.DatasetRepo
	Organizations *data.OrganizationRepo
	Clearer       *data.SourceClearRepo
	SystemInfo    *data.SystemInfoRepo
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, tp data.TimeProvider, logger *slog.Logger) *serviceRepositories {
	return &serviceRepositories{
		Sources:       data.NewSourceRepo(db),
		Jobs:          data.NewJobRepo(db, data.JobRepoOptions{TimeProvider: tp}),
		Objects:       data.NewHarvestObjectRepo(db),
		Datasets:      data.NewDatasetRepo(db),
		Organizations: data.NewOrganizationRepo(db),
		Clearer:       data.NewSourceClearRepo(db),
		SystemInfo:    data.NewSystemInfoRepo(db, logger),
	}
}

// reconcilerConfig maps harvest settings onto the reconciler.
func reconcilerConfig(cfg config.HarvestConfig) service.ReconcilerConfig {
	return service.ReconcilerConfig{
		CollectionKey:        cfg.CollectionKey,
		ExternalMarkerKey:    cfg.ExternalMarkerKey,
		ExternalMarkerValue:  cfg.ExternalMarkerValue,
		FixedPackagesEmailTo: cfg.FixedPackagesEmailTo,
		EmailNotifications:   cfg.EmailNotifications,
	}
}

// failureNotifier keeps a missing notifier a nil interface.
//
//nolint:ireturn // mirrors the service port.
func failureNotifier(obs ObservabilityContainer) service.FailureNotifier {
	if obs.FailureNotifier == nil {
		return nil
	}
	return obs.FailureNotifier
}

// NewServices wires repositories, adapters and services.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	switch {
	case deps == nil || deps.Config == nil:
		return nil, errors.New("service config is required")
	case deps.DB == nil:
		return nil, errors.New("database is required")
	case deps.Index == nil:
		return nil, errors.New("search index is required")
	case deps.Mailer == nil:
		return nil, errors.New("mailer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := deps.TimeProvider
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}
	cfg := deps.Config
	repos := buildRepositories(deps.DB, tp, logger)
	obs := deps.Observability

	registry, err := harvester.NewRegistry(deps.Harvesters...)
	if err != nil {
		return nil, fmt.Errorf("register harvesters: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Sources: repos.Sources,
		Jobs:    repos.Jobs,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("job service: %w", err)
	}

	scheduler, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Sources:      repos.Sources,
		Jobs:         jobs,
		TimeProvider: tp,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler service: %w", err)
	}

	reindex, err := service.NewReindexService(service.ReindexServiceOptions{
		Sources:  repos.Sources,
		Datasets: repos.Datasets,
		Index:    deps.Index,
		SiteID:   cfg.Harvest.SiteID,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("reindex service: %w", err)
	}

	var reports service.JobReporter
	if cfg.Harvest.EmailNotifications {
		notifier, reportErr := service.NewJobReportNotifier(service.JobReportNotifierOptions{
			Jobs:          repos.Jobs,
			Objects:       repos.Objects,
			Organizations: repos.Organizations,
			Mailer:        deps.Mailer,
			Site: report.Site{
				Title:    cfg.Harvest.SiteTitle,
				URL:      cfg.Harvest.SiteURL,
				AdminURL: cfg.Harvest.SiteAdminURL,
			},
			Logger: logger,
		})
		if reportErr != nil {
			return nil, fmt.Errorf("job report notifier: %w", reportErr)
		}
		reports = notifier
	}

	reconciler, err := service.NewReconcilerService(service.ReconcilerServiceOptions{
		Sources:      repos.Sources,
		Jobs:         repos.Jobs,
		Objects:      repos.Objects,
		Datasets:     repos.Datasets,
		Indexer:      reindex,
		Reports:      reports,
		Mailer:       deps.Mailer,
		Failures:     failureNotifier(obs),
		Metrics:      obs.Metrics,
		TimeProvider: tp,
		Config:       reconcilerConfig(cfg.Harvest),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("reconciler service: %w", err)
	}

	admin, err := service.NewSourceAdminService(service.SourceAdminServiceOptions{
		Sources:    repos.Sources,
		Objects:    repos.Objects,
		Clearer:    repos.Clearer,
		Index:      deps.Index,
		Reindexer:  reindex,
		Harvesters: registry,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("source admin service: %w", err)
	}

	out := &ServiceContainer{
		Jobs:          jobs,
		Scheduler:     scheduler,
		Reconciler:    reconciler,
		Reindex:       reindex,
		SourceAdmin:   admin,
		Harvesters:    registry,
		Observability: obs,
	}

	// Without a queue only maintenance commands are available.
	if deps.Queue == nil {
		return out, nil
	}

	out.Dispatcher, err = service.NewDispatcherService(service.DispatcherServiceOptions{
		Sources:  repos.Sources,
		Jobs:     repos.Jobs,
		Queue:    deps.Queue,
		Failures: failureNotifier(obs),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher service: %w", err)
	}

	out.Passes, err = service.NewHarvestRunService(service.HarvestRunServiceOptions{
		Scheduler:    scheduler,
		Reconciler:   reconciler,
		Dispatcher:   out.Dispatcher,
		SystemInfo:   repos.SystemInfo,
		Metrics:      obs.Metrics,
		TimeProvider: tp,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("harvest run service: %w", err)
	}
	return out, nil
}
