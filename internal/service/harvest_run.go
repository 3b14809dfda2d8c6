package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/data"
	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/observability/metrics"
	"github.com/target/harvestd/internal/observability/statsd"
)

// SystemInfoLastRunTime is the system info key stamped at every pass.
const SystemInfoLastRunTime = "last_run_time"

// Scheduler creates jobs for due sources.
type Scheduler interface {
	RunScheduledJobs(ctx context.Context, actor model.Actor) (ScheduleResult, error)
}

// Dispatcher publishes New jobs.
type Dispatcher interface {
	DispatchQueuedJobs(ctx context.Context, sourceID string) ([]*model.Job, error)
}

// Reconciler finishes Running jobs.
type Reconciler interface {
	ReconcileRunningJobs(ctx context.Context, sourceID string) (ReconcileResult, error)
}

// HarvestRunServiceOptions groups dependencies for HarvestRunService.
type HarvestRunServiceOptions struct {
	Scheduler    Scheduler                 // Required
	Reconciler   Reconciler                // Required
	Dispatcher   Dispatcher                // Required
	SystemInfo   core.SystemInfoRepository // Optional
	Metrics      statsd.Sink               // Optional
	TimeProvider data.TimeProvider         // Optional
	Logger       *slog.Logger              // Optional
}

// HarvestRunService runs one harvest pass: schedule due sources, stamp the run
// time, reconcile Running jobs, then dispatch New jobs. Reconciling before
// dispatch lets a child collection job created while finishing its parent go
// out in the same pass.
type HarvestRunService struct {
	scheduler    Scheduler
	reconciler   Reconciler
	dispatcher   Dispatcher
	systemInfo   core.SystemInfoRepository
	metrics      statsd.Sink
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// PassResult summarises one harvest pass.
type PassResult struct {
	SourceID   string          `json:"source_id,omitempty"`
	Schedule   ScheduleResult  `json:"schedule"`
	Reconcile  ReconcileResult `json:"reconcile"`
	Dispatched []string        `json:"dispatched"`
	Duration   time.Duration   `json:"duration"`
}

// NewHarvestRunService constructs a HarvestRunService.
func NewHarvestRunService(opts HarvestRunServiceOptions) (*HarvestRunService, error) {
	switch {
	case opts.Scheduler == nil:
		return nil, errors.New("Scheduler is required")
	case opts.Reconciler == nil:
		return nil, errors.New("Reconciler is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("Dispatcher is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HarvestRunService{
		scheduler:    opts.Scheduler,
		reconciler:   opts.Reconciler,
		dispatcher:   opts.Dispatcher,
		systemInfo:   opts.SystemInfo,
		metrics:      opts.Metrics,
		timeProvider: opts.TimeProvider,
		logger:       logger.With("component", "harvest_run"),
	}, nil
}

type passStep struct {
	name string
	// run returns how much work the step did, for metrics.
	run func(ctx context.Context, res *PassResult) (int, error)
}

// RunPass runs one harvest pass. When sourceID is set, scheduling is skipped
// and reconcile and dispatch only consider that source.
//
// Every step runs even if an earlier one failed; step errors are joined.
func (s *HarvestRunService) RunPass(ctx context.Context, sourceID string) (PassResult, error) {
	start := s.timeProvider.Now()
	res := PassResult{SourceID: sourceID, Dispatched: []string{}}

	steps := make([]passStep, 0, 4)
	if sourceID == "" {
		steps = append(steps, passStep{name: "schedule", run: s.schedule})
	}
	steps = append(steps,
		passStep{name: "last_run_time", run: s.stampLastRun},
		passStep{name: "reconcile", run: s.reconcile},
		passStep{name: "dispatch", run: s.dispatch},
	)

	var (
		errs        []error
		allCanceled = true
	)
	for _, step := range steps {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, ctx.Err()))
			break
		}
		stepStart := time.Now()
		count, err := step.run(ctx, &res)
		metrics.EmitStep(s.metrics, metrics.StepMetric{
			Step:     step.name,
			Result:   metrics.ResultFor(suppressContextCancellation(err), count),
			Duration: time.Since(stepStart),
			Err:      err,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			allCanceled = allCanceled && isContextCancellation(err)
		}
	}
	res.Duration = s.timeProvider.Now().Sub(start)

	var passErr error
	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allCanceled && isContextCancellation(joined) {
			passErr = context.Canceled
		} else {
			passErr = fmt.Errorf("harvest pass failed: %w", joined)
		}
	}

	s.emitPassMetrics(res, passErr)
	s.logger.InfoContext(ctx, "harvest pass complete",
		"source_id", sourceID,
		"created", res.Schedule.Created,
		"finished", res.Reconcile.Finished,
		"dispatched", len(res.Dispatched),
		"duration", res.Duration,
		"error", passErr,
	)
	return res, passErr
}

func (s *HarvestRunService) schedule(ctx context.Context, res *PassResult) (int, error) {
	sr, err := s.scheduler.RunScheduledJobs(ctx, model.SystemActor())
	res.Schedule = sr
	return sr.Created, err
}

func (s *HarvestRunService) stampLastRun(ctx context.Context, _ *PassResult) (int, error) {
	if s.systemInfo == nil {
		return 0, nil
	}
	now := s.timeProvider.Now().UTC().Format(time.RFC3339Nano)
	if err := s.systemInfo.Set(ctx, SystemInfoLastRunTime, now); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *HarvestRunService) reconcile(ctx context.Context, res *PassResult) (int, error) {
	rr, err := s.reconciler.ReconcileRunningJobs(ctx, res.SourceID)
	res.Reconcile = rr
	return rr.Finished, err
}

func (s *HarvestRunService) dispatch(ctx context.Context, res *PassResult) (int, error) {
	jobs, err := s.dispatcher.DispatchQueuedJobs(ctx, res.SourceID)
	for _, j := range jobs {
		res.Dispatched = append(res.Dispatched, j.ID)
	}
	return len(jobs), err
}

func (s *HarvestRunService) emitPassMetrics(res PassResult, err error) {
	work := res.Schedule.Created + res.Reconcile.Finished + len(res.Dispatched)
	metrics.EmitPass(s.metrics, metrics.PassMetric{
		Result:     metrics.ResultFor(suppressContextCancellation(err), work),
		Duration:   res.Duration,
		Created:    res.Schedule.Created,
		Dispatched: len(res.Dispatched),
		Finished:   res.Reconcile.Finished,
		Err:        err,
	})
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
