package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/observability/notify"
	"github.com/target/harvestd/internal/service/failurenotifier"
)

// FailureNotifier reports per-job failures to operators.
type FailureNotifier interface {
	NotifyHarvestFailure(ctx context.Context, payload notify.HarvestFailurePayload)
}

// DispatcherServiceOptions groups dependencies for DispatcherService.
type DispatcherServiceOptions struct {
	Sources  core.SourceRepository // Required
	Jobs     core.JobRepository    // Required
	Queue    core.QueueConnector   // Required
	Failures FailureNotifier       // Optional
	Logger   *slog.Logger          // Optional
}

// DispatcherService moves New jobs to Running and publishes them to the gather queue.
type DispatcherService struct {
	sources  core.SourceRepository
	jobs     core.JobRepository
	queue    core.QueueConnector
	failures FailureNotifier
	logger   *slog.Logger
}

// NewDispatcherService constructs a DispatcherService.
func NewDispatcherService(opts DispatcherServiceOptions) (*DispatcherService, error) {
	if opts.Sources == nil {
		return nil, errors.New("SourceRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("QueueConnector is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatcherService{
		sources:  opts.Sources,
		jobs:     opts.Jobs,
		queue:    opts.Queue,
		failures: opts.Failures,
		logger:   logger.With("component", "dispatcher"),
	}, nil
}

// DispatchQueuedJobs publishes every New job, optionally restricted to one source,
// in creation order. Jobs of inactive sources are left New.
//
// The New to Running transition is the linearization point: a job another
// dispatcher already moved to Running is skipped, so no job is published twice.
// A failed publish is logged and reported, the job goes back to New for the
// next pass, and the rest of the batch continues.
// The returned slice holds the jobs that were published.
func (s *DispatcherService) DispatchQueuedJobs(ctx context.Context, sourceID string) ([]*model.Job, error) {
	jobs, err := s.jobs.List(ctx, model.JobListOptions{Status: model.JobStatusNew, SourceID: sourceID})
	if err != nil {
		return nil, fmt.Errorf("list new jobs: %w", err)
	}
	if len(jobs) == 0 {
		s.logger.InfoContext(ctx, "no new harvest jobs", "source_id", sourceID)
		return nil, nil
	}

	publisher, err := s.queue.GatherPublisher(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gather publisher: %w", err)
	}
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			s.logger.WarnContext(ctx, "failed to close gather publisher", "error", cerr)
		}
	}()

	sent := make([]*model.Job, 0, len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if s.dispatchOne(ctx, publisher, job) {
			sent = append(sent, job)
		}
	}
	return sent, nil
}

func (s *DispatcherService) dispatchOne(ctx context.Context, publisher core.Publisher, job *model.Job) bool {
	log := s.logger.With("job_id", job.ID, "source_id", job.SourceID)

	src, err := s.sources.GetByID(ctx, job.SourceID)
	if err != nil {
		log.ErrorContext(ctx, "failed to load job source", "error", err)
		return false
	}
	if !src.Active {
		log.DebugContext(ctx, "skipping job of inactive source", "error", domain.ErrSourceInactive)
		return false
	}

	ok, err := s.jobs.MarkRunning(ctx, job.ID)
	if err != nil {
		log.ErrorContext(ctx, "failed to mark job running", "error", err)
		return false
	}
	if !ok {
		log.DebugContext(ctx, "job already dispatched elsewhere")
		return false
	}
	job.Status = model.JobStatusRunning

	if err := publisher.Publish(ctx, model.DispatchMessage{HarvestJobID: job.ID}); err != nil {
		log.WarnContext(ctx, "failed to send job to the gather queue", "error", err)
		s.revertUnsent(ctx, log, job)
		if s.failures != nil {
			s.failures.NotifyHarvestFailure(ctx,
				failurenotifier.Failure(notify.StageDispatch, job.ID, src.ID, src.Name, err))
		}
		return false
	}

	log.InfoContext(ctx, "sent job to the gather queue")
	return true
}

// revertUnsent puts a job that never reached the queue back to New so the next pass retries it.
func (s *DispatcherService) revertUnsent(ctx context.Context, log *slog.Logger, job *model.Job) {
	ok, err := s.jobs.RevertToNew(context.WithoutCancel(ctx), job.ID)
	switch {
	case err != nil:
		log.ErrorContext(ctx, "failed to revert unsent job to new", "error", err)
	case ok:
		job.Status = model.JobStatusNew
	default:
		log.InfoContext(ctx, "unsent job was already picked up by a gather worker")
	}
}
