// Package service implements the harvest orchestration services: scheduling,
// dispatch, reconciliation, reindexing and source administration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Sources core.SourceRepository // Required
	Jobs    core.JobRepository    // Required
	Logger  *slog.Logger          // Optional
}

// JobService creates harvest jobs.
type JobService struct {
	sources core.SourceRepository
	jobs    core.JobRepository
	logger  *slog.Logger
}

// NewJobService constructs a JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Sources == nil {
		return nil, errors.New("SourceRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		sources: opts.Sources,
		jobs:    opts.Jobs,
		logger:  logger.With("component", "job_service"),
	}, nil
}

// CreateJob creates a New job for an active source.
// It returns domain.ErrSourceNotFound, domain.ErrSourceInactive or
// domain.ErrJobAlreadyExists when the job cannot be created.
func (s *JobService) CreateJob(ctx context.Context, sourceID string) (*model.Job, error) {
	src, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !src.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceInactive, sourceID)
	}

	job, err := s.jobs.Create(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "harvest job created", "job_id", job.ID, "source_id", sourceID)
	return job, nil
}
