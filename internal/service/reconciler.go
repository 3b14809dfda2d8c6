package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/data"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/domain/report"
	"github.com/target/harvestd/internal/observability/metrics"
	"github.com/target/harvestd/internal/observability/notify"
	"github.com/target/harvestd/internal/observability/statsd"
	"github.com/target/harvestd/internal/service/failurenotifier"
)

// Collection marker values stored under ReconcilerConfig.CollectionKey.
const (
	CollectionParentsRun  = "parents_run"
	CollectionChildrenRun = "children_run"
)

// ReconcilerConfig tunes reconciliation. It is built from the harvest configuration at startup.
type ReconcilerConfig struct {
	// CollectionKey is the source config key driving parent/children job chaining.
	CollectionKey string
	// ExternalMarkerKey and ExternalMarkerValue identify datasets that are never orphans.
	ExternalMarkerKey   string
	ExternalMarkerValue string
	// FixedPackagesEmailTo receives the repair summary. Empty disables the mail.
	FixedPackagesEmailTo string
	// EmailNotifications enables per-organization job reports.
	EmailNotifications bool
}

// Indexer rebuilds search documents touched by reconciliation.
type Indexer interface {
	ReindexSource(ctx context.Context, sourceID string, deferCommit bool) error
	ReindexDataset(ctx context.Context, datasetID string) error
	RemoveDataset(ctx context.Context, datasetID string) error
}

// JobReporter sends the summary of a finished job.
type JobReporter interface {
	NotifyJobFinished(ctx context.Context, src *model.Source, job *model.Job) error
}

// ReconcilerServiceOptions groups dependencies for ReconcilerService.
type ReconcilerServiceOptions struct {
	Sources      core.SourceRepository        // Required
	Jobs         core.JobRepository           // Required
	Objects      core.HarvestObjectRepository // Required
	Datasets     core.DatasetRepository       // Required
	Indexer      Indexer                      // Required
	Reports      JobReporter                  // Optional: required when EmailNotifications is set
	Mailer       core.Mailer                  // Optional: required for the fixed packages mail
	Failures     FailureNotifier              // Optional
	Metrics      statsd.Sink                  // Optional
	TimeProvider data.TimeProvider            // Optional
	Config       ReconcilerConfig
	Logger       *slog.Logger // Optional
}

// ReconcilerService finishes Running jobs whose objects have all reached a
// terminal state, repairing current pointers and removing orphaned datasets on the way.
type ReconcilerService struct {
	sources      core.SourceRepository
	jobs         core.JobRepository
	objects      core.HarvestObjectRepository
	datasets     core.DatasetRepository
	indexer      Indexer
	reports      JobReporter
	mailer       core.Mailer
	failures     FailureNotifier
	metrics      statsd.Sink
	timeProvider data.TimeProvider
	cfg          ReconcilerConfig
	logger       *slog.Logger

	steps []reconcileStep
}

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Examined     int `json:"examined"`
	Finished     int `json:"finished"`
	InFlight     int `json:"in_flight"`
	Failed       int `json:"failed"`
	Relinked     int `json:"relinked"`
	RelinkFailed int `json:"relink_failed"`
	Removed      int `json:"removed"`
	DeleteFailed int `json:"delete_failed"`
}

// NewReconcilerService constructs a ReconcilerService.
func NewReconcilerService(opts ReconcilerServiceOptions) (*ReconcilerService, error) {
	switch {
	case opts.Sources == nil:
		return nil, errors.New("SourceRepository is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Objects == nil:
		return nil, errors.New("HarvestObjectRepository is required")
	case opts.Datasets == nil:
		return nil, errors.New("DatasetRepository is required")
	case opts.Indexer == nil:
		return nil, errors.New("Indexer is required")
	case opts.Config.EmailNotifications && opts.Reports == nil:
		return nil, errors.New("JobReporter is required when email notifications are enabled")
	}
	if opts.Config.CollectionKey == "" {
		opts.Config.CollectionKey = "datajson_collection"
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &ReconcilerService{
		sources:      opts.Sources,
		jobs:         opts.Jobs,
		objects:      opts.Objects,
		datasets:     opts.Datasets,
		indexer:      opts.Indexer,
		reports:      opts.Reports,
		mailer:       opts.Mailer,
		failures:     opts.Failures,
		metrics:      opts.Metrics,
		timeProvider: opts.TimeProvider,
		cfg:          opts.Config,
		logger:       logger.With("component", "reconciler"),
	}
	s.steps = s.jobSteps()
	return s, nil
}

// reconcileStep is one stage of finishing a job. Failures of a required step
// leave the job Running for the next pass; optional steps only log.
type reconcileStep struct {
	name     string
	optional bool
	run      func(ctx context.Context, jr *jobRun) error
}

func (s *ReconcilerService) jobSteps() []reconcileStep {
	return []reconcileStep{
		{name: "relink_orphans", run: s.relinkOrphans},
		{name: "remove_orphans", run: s.removeOrphans},
		{name: "fixed_packages_mail", optional: true, run: s.mailFixedPackages},
		{name: "finish", run: s.finishJob},
		{name: "collection_chain", optional: true, run: s.chainCollection},
		{name: "job_report", optional: true, run: s.sendReport},
		{name: "reindex_source", optional: true, run: s.reindexSource},
	}
}

// jobRun carries the state of one job through the steps.
type jobRun struct {
	job     *model.Job
	src     *model.Source
	now     time.Time
	log     *slog.Logger
	summary strings.Builder
	res     ReconcileResult
	// stop ends the step sequence without an error.
	stop bool
}

func (jr *jobRun) note(ctx context.Context, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	jr.summary.WriteString(line)
	jr.summary.WriteByte('\n')
	jr.log.InfoContext(ctx, line)
}

// ReconcileRunningJobs reconciles every Running job whose gather stage has
// finished, optionally restricted to one source. Each job is isolated: an error
// or panic while handling one job is recorded and the next job is processed.
// Only failing to list jobs is returned as an error.
func (s *ReconcilerService) ReconcileRunningJobs(ctx context.Context, sourceID string) (ReconcileResult, error) {
	jobs, err := s.jobs.List(ctx, model.JobListOptions{
		Status:         model.JobStatusRunning,
		SourceID:       sourceID,
		GatherFinished: true,
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list running jobs: %w", err)
	}

	var total ReconcileResult
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		total.Examined++
		res, err := s.reconcileIsolated(ctx, job)
		total.Finished += res.Finished
		total.InFlight += res.InFlight
		total.Relinked += res.Relinked
		total.RelinkFailed += res.RelinkFailed
		total.Removed += res.Removed
		total.DeleteFailed += res.DeleteFailed
		if err != nil {
			total.Failed++
			s.logger.ErrorContext(ctx, "failed to reconcile job",
				"job_id", job.ID, "source_id", job.SourceID, "error", err)
			s.notifyFailure(ctx, job, err)
		}
	}

	if s.metrics != nil {
		if total.Relinked > 0 {
			s.metrics.Count(metrics.DatasetsFixed, int64(total.Relinked), nil)
		}
		if total.Removed > 0 {
			s.metrics.Count(metrics.DatasetsDeleted, int64(total.Removed), nil)
		}
	}
	return total, nil
}

// ReconcileJob reconciles a single job by ID.
func (s *ReconcilerService) ReconcileJob(ctx context.Context, jobID string) (ReconcileResult, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return ReconcileResult{}, err
	}
	return s.reconcileIsolated(ctx, job)
}

func (s *ReconcilerService) reconcileIsolated(ctx context.Context, job *model.Job) (res ReconcileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reconciling job %s: %v", job.ID, r)
		}
	}()
	return s.reconcileJob(ctx, job.ID)
}

func (s *ReconcilerService) reconcileJob(ctx context.Context, jobID string) (ReconcileResult, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if job.Status == model.JobStatusFinished {
		return ReconcileResult{}, nil
	}
	if job.Status != model.JobStatusRunning || !job.IsGatherFinished() {
		return ReconcileResult{}, nil
	}

	pending, err := s.objects.CountNonTerminal(ctx, job.ID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("count unfinished objects: %w", err)
	}
	if pending > 0 {
		s.logger.DebugContext(ctx, "job still has objects in flight", "job_id", job.ID, "pending", pending)
		return ReconcileResult{InFlight: 1}, nil
	}

	src, err := s.sources.GetByID(ctx, job.SourceID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("load source: %w", err)
	}

	jr := &jobRun{
		job: job,
		src: src,
		now: s.timeProvider.Now().UTC(),
		log: s.logger.With("job_id", job.ID, "source_id", src.ID),
	}

	var optionalErrs []error
	for _, step := range s.steps {
		if jr.stop {
			break
		}
		if err := step.run(ctx, jr); err != nil {
			if !step.optional {
				return jr.res, fmt.Errorf("%s: %w", step.name, err)
			}
			jr.log.WarnContext(ctx, "reconcile step failed", "step", step.name, "error", err)
			optionalErrs = append(optionalErrs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	if len(optionalErrs) > 0 {
		s.notifyFailure(ctx, job, errors.Join(optionalErrs...))
	}
	return jr.res, nil
}

func (s *ReconcilerService) relinkOrphans(ctx context.Context, jr *jobRun) error {
	ids, err := s.objects.ListDatasetsWithoutCurrent(ctx, jr.src.ID)
	if err != nil {
		return fmt.Errorf("list datasets without current object: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	jr.note(ctx, "%d packages to be relinked for source %s", len(ids), jr.src.ID)

	for _, id := range ids {
		outcome, err := s.objects.RelinkCurrent(ctx, id)
		if err != nil {
			jr.res.RelinkFailed++
			jr.log.ErrorContext(ctx, "relink failed", "dataset_id", id, "error", err)
			jr.note(ctx, "Error relinking %s", id)
			continue
		}
		switch outcome {
		case core.RelinkUpdated:
			jr.res.Relinked++
			if err := s.indexer.ReindexDataset(ctx, id); err != nil {
				jr.log.WarnContext(ctx, "failed to reindex relinked dataset", "dataset_id", id, "error", err)
			}
			jr.note(ctx, "%s relinked", id)
		case core.RelinkAlreadyLinked:
			jr.log.InfoContext(ctx, "dataset already relinked", "dataset_id", id)
		case core.RelinkNoValidObject:
			jr.note(ctx, "%s has no valid harvest object.", id)
		}
	}
	return nil
}

func (s *ReconcilerService) removeOrphans(ctx context.Context, jr *jobRun) error {
	if jr.src.OwnerOrg == nil || *jr.src.OwnerOrg == "" {
		return nil
	}
	orphans, err := s.datasets.ListOrphans(ctx, model.OrphanQuery{
		OwnerOrg:    *jr.src.OwnerOrg,
		MarkerKey:   s.cfg.ExternalMarkerKey,
		MarkerValue: s.cfg.ExternalMarkerValue,
	})
	if err != nil {
		return fmt.Errorf("list orphaned datasets: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}
	jr.note(ctx, "%d packages to be removed for source %s", len(orphans), jr.src.ID)

	for _, d := range orphans {
		if err := s.deleteDataset(ctx, d.ID); err != nil {
			jr.res.DeleteFailed++
			jr.log.ErrorContext(ctx, "orphan removal failed", "dataset_id", d.ID, "error", err)
			jr.note(ctx, "Error deleting %s", d.ID)
			continue
		}
		jr.res.Removed++
		jr.note(ctx, "%s removed", d.ID)
	}
	return nil
}

func (s *ReconcilerService) deleteDataset(ctx context.Context, id string) error {
	if err := s.datasets.MarkDeleted(ctx, id); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrDeleteFailed, id, err)
	}
	if err := s.indexer.RemoveDataset(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to remove deleted dataset from index", "dataset_id", id, "error", err)
	}
	return nil
}

func (s *ReconcilerService) mailFixedPackages(ctx context.Context, jr *jobRun) error {
	if jr.summary.Len() == 0 || s.cfg.FixedPackagesEmailTo == "" || s.mailer == nil {
		return nil
	}
	msg := core.MailMessage{
		To:      []string{s.cfg.FixedPackagesEmailTo},
		Subject: report.FixedPackagesSubject(jr.now),
		Body:    jr.summary.String(),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		jr.log.ErrorContext(ctx, "failed to mail fixed packages",
			"to", s.cfg.FixedPackagesEmailTo,
			"error", fmt.Errorf("%w: %w", domain.ErrNotificationFailed, err),
		)
	}
	return nil
}

func (s *ReconcilerService) finishJob(ctx context.Context, jr *jobRun) error {
	finished := jr.now
	last, err := s.objects.LatestImportFinished(ctx, jr.job.ID)
	if err != nil {
		return fmt.Errorf("latest import finished: %w", err)
	}
	if last != nil {
		finished = last.UTC()
	}

	ok, err := s.jobs.MarkFinished(ctx, jr.job.ID, finished)
	if err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}
	if !ok {
		jr.log.InfoContext(ctx, "job was finished by another reconciler")
		jr.stop = true
		return nil
	}

	jr.job.Status = model.JobStatusFinished
	jr.job.FinishedAt = &finished
	jr.res.Finished = 1
	jr.log.InfoContext(ctx, "harvest job finished", "finished", finished)
	return nil
}

func (s *ReconcilerService) chainCollection(ctx context.Context, jr *jobRun) error {
	cfg, err := jr.src.ParsedConfig()
	if err != nil {
		return err
	}
	key := s.cfg.CollectionKey
	marker, ok := cfg[key]
	if !ok {
		return nil
	}

	if v, isString := marker.(string); isString && v == CollectionParentsRun {
		child, err := s.jobs.Create(ctx, jr.src.ID)
		switch {
		case err == nil:
			jr.log.InfoContext(ctx, "created child collection job", "child_job_id", child.ID)
		case errors.Is(err, domain.ErrJobAlreadyExists):
			jr.log.InfoContext(ctx, "source already has an active job, not chaining")
		default:
			return fmt.Errorf("create child job: %w", err)
		}
		cfg[key] = CollectionChildrenRun
	} else if model.IsTruthy(marker) {
		delete(cfg, key)
	} else {
		return nil
	}

	raw := cfg.String()
	if err := s.sources.UpdateConfig(ctx, jr.src.ID, raw); err != nil {
		return fmt.Errorf("update source config: %w", err)
	}
	jr.src.Config = raw
	return nil
}

func (s *ReconcilerService) sendReport(ctx context.Context, jr *jobRun) error {
	if !s.cfg.EmailNotifications {
		return nil
	}
	return s.reports.NotifyJobFinished(ctx, jr.src, jr.job)
}

func (s *ReconcilerService) reindexSource(ctx context.Context, jr *jobRun) error {
	return s.indexer.ReindexSource(ctx, jr.src.ID, false)
}

func (s *ReconcilerService) notifyFailure(ctx context.Context, job *model.Job, err error) {
	if s.failures == nil {
		return
	}
	s.failures.NotifyHarvestFailure(ctx,
		failurenotifier.Failure(notify.StageReconcile, job.ID, job.SourceID, "", err))
}
