package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/data"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
)

// JobCreator creates a job for a source.
type JobCreator interface {
	CreateJob(ctx context.Context, sourceID string) (*model.Job, error)
}

// SchedulerServiceOptions groups dependencies for SchedulerService.
type SchedulerServiceOptions struct {
	Sources      core.SourceRepository // Required
	Jobs         JobCreator            // Required
	TimeProvider data.TimeProvider     // Optional: defaults to wall clock
	Logger       *slog.Logger          // Optional
}

// SchedulerService creates jobs for sources that are due and advances their next run.
// Safe under concurrent replicas: duplicate jobs are rejected by the job store.
type SchedulerService struct {
	sources      core.SourceRepository
	jobs         JobCreator
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// ScheduleResult summarises one scheduling pass.
type ScheduleResult struct {
	Due     int `json:"due"`
	Created int `json:"created"`
	// Skipped counts sources that already had an active job.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// NewSchedulerService creates a new SchedulerService with the given dependencies.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Sources == nil {
		return nil, errors.New("SourceRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobCreator is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SchedulerService{
		sources:      opts.Sources,
		jobs:         opts.Jobs,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger.With("component", "scheduler"),
	}, nil
}

// RunScheduledJobs creates a job for every due source visible to actor.
//
// Each source's next run is recomputed from the time the pass started, whether
// or not its job was created. Only failing to list due sources aborts the pass.
func (s *SchedulerService) RunScheduledJobs(ctx context.Context, actor model.Actor) (ScheduleResult, error) {
	now := s.timeProvider.Now().UTC()

	due, err := s.sources.ListDue(ctx, model.DueSourcesQuery{Now: now, Actor: actor})
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("list due sources: %w", err)
	}

	res := ScheduleResult{Due: len(due)}
	for _, src := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.scheduleSource(ctx, src, now, &res)
	}

	if res.Due > 0 {
		s.logger.InfoContext(ctx, "scheduled harvest jobs",
			"due", res.Due,
			"created", res.Created,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
	return res, nil
}

func (s *SchedulerService) scheduleSource(ctx context.Context, src *model.Source, now time.Time, res *ScheduleResult) {
	log := s.logger.With("source_id", src.ID, "source_name", src.Name)

	_, err := s.jobs.CreateJob(ctx, src.ID)
	switch {
	case err == nil:
		res.Created++
	case errors.Is(err, domain.ErrJobAlreadyExists):
		res.Skipped++
		log.InfoContext(ctx, "source already has an active job, not creating another")
	default:
		res.Failed++
		log.ErrorContext(ctx, "failed to create harvest job", "error", err)
	}

	next, err := domain.NextRun(src.Frequency, now)
	if err != nil {
		log.ErrorContext(ctx, "cannot compute next run", "frequency", src.Frequency, "error", err)
		return
	}
	if err := s.sources.UpdateNextRun(ctx, src.ID, next); err != nil {
		log.ErrorContext(ctx, "failed to update next run", "next_run", next, "error", err)
	}
}
