// Package harvestrunner runs harvest passes on a timer or cron schedule.
package harvestrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/target/harvestd/internal/core"
	obserrors "github.com/target/harvestd/internal/observability/errors"
	"github.com/target/harvestd/internal/observability/metrics"
	"github.com/target/harvestd/internal/observability/statsd"
	"github.com/target/harvestd/internal/service"
)

// PassLockKey is the deployment-wide lock held while a pass runs.
const PassLockKey = "harvest:pass-lock"

// PassRunner runs one harvest pass.
type PassRunner interface {
	RunPass(ctx context.Context, sourceID string) (service.PassResult, error)
}

// Runner triggers harvest passes until its context is cancelled.
type Runner struct {
	passes     PassRunner
	lock       core.LockRepository
	lockTTL    time.Duration
	interval   time.Duration
	schedule   cron.Schedule
	runOnStart bool
	logger     *slog.Logger
	metrics    statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Passes PassRunner // Required

	// Lock keeps passes of several replicas from overlapping. Without it every
	// replica runs every pass.
	Lock    core.LockRepository
	LockTTL time.Duration

	// Schedule takes precedence over Interval when set.
	Schedule   cron.Schedule
	Interval   time.Duration
	RunOnStart bool

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// NewRunner creates a new harvest runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}
	return &Runner{
		passes:     opts.Passes,
		lock:       opts.Lock,
		lockTTL:    opts.LockTTL,
		interval:   opts.Interval,
		schedule:   opts.Schedule,
		runOnStart: opts.RunOnStart,
		logger:     opts.Logger.With("component", "harvest_runner"),
		metrics:    opts.Metrics,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Passes == nil {
		return errors.New("pass runner is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the pass loop and runs until the context is cancelled.
// Pass errors are logged and the loop continues.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting harvest runner",
		"interval", r.interval,
		"cron", r.schedule != nil,
		"run_on_start", r.runOnStart,
	)

	if r.runOnStart {
		r.tick(ctx)
	}

	timer := time.NewTimer(r.wait(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "harvest runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-timer.C:
			r.tick(ctx)
			timer.Reset(r.wait(time.Now()))
		}
	}
}

// wait returns the delay until the next pass.
func (r *Runner) wait(now time.Time) time.Duration {
	if r.schedule == nil {
		return r.interval
	}
	d := r.schedule.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// tick runs one pass under the pass lock. The pass is cut off when the lock
// TTL elapses so it never outlives the lock. It reports whether a pass ran.
func (r *Runner) tick(ctx context.Context) bool {
	release, ok := r.acquire(ctx)
	if !ok {
		r.emitTickMetrics(metrics.ResultSkipped, 0, nil)
		return false
	}
	defer release()

	passCtx, cancel := context.WithTimeout(ctx, r.lockTTL)
	defer cancel()

	start := time.Now()
	res, err := r.passes.RunPass(passCtx, "")
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.emitTickMetrics(metrics.ResultSuccess, elapsed, nil)
		r.logger.DebugContext(ctx, "harvest pass done",
			"created", res.Schedule.Created,
			"finished", res.Reconcile.Finished,
			"dispatched", len(res.Dispatched),
		)
	case errors.Is(err, context.Canceled):
		r.logger.InfoContext(ctx, "harvest pass interrupted")
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		r.emitTickMetrics(metrics.ResultError, elapsed, err)
		r.logger.ErrorContext(ctx, "harvest pass exceeded the pass lock ttl", "ttl", r.lockTTL, "error", err)
	default:
		r.emitTickMetrics(metrics.ResultError, elapsed, err)
		r.logger.ErrorContext(ctx, "harvest pass error", "error", err)
	}
	return true
}

// acquire takes the pass lock. When the lock store is unavailable the pass is skipped.
func (r *Runner) acquire(ctx context.Context) (func(), bool) {
	if r.lock == nil {
		return func() {}, true
	}

	token := uuid.NewString()
	ok, err := r.lock.Acquire(ctx, PassLockKey, token, r.lockTTL)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to acquire harvest pass lock", "error", err)
		return nil, false
	}
	if !ok {
		r.logger.DebugContext(ctx, "harvest pass already running elsewhere")
		return nil, false
	}

	return func() {
		// The pass context may already be cancelled; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		released, err := r.lock.Release(rctx, PassLockKey, token)
		switch {
		case err != nil:
			r.logger.WarnContext(ctx, "failed to release harvest pass lock", "error", err)
		case !released:
			r.logger.WarnContext(ctx, "harvest pass lock expired before release", "ttl", r.lockTTL)
		}
	}, true
}

func (r *Runner) emitTickMetrics(result string, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	tags := map[string]string{
		"result": result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("runner.tick", 1, tags)
	if elapsed > 0 {
		r.metrics.Timing("runner.tick_duration", elapsed, metrics.CloneTags(tags))
	}
}
