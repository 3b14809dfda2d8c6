// Package failurenotifier fans harvest failures out to operator notification sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	obserrors "github.com/target/harvestd/internal/observability/errors"
	"github.com/target/harvestd/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SendTimeout bounds each sink delivery. Defaults to 10s.
	SendTimeout time.Duration
	// Now is used to stamp payloads without an OccurredAt.
	Now func() time.Time
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	timeout time.Duration
	now     func() time.Time
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		logger:  logger.With("component", "failure_notifier"),
		sinks:   sinks,
		timeout: timeout,
		now:     now,
	}
}

// Failure builds a payload for err. The error class is derived from err.
func Failure(stage, jobID, sourceID, sourceName string, err error) notify.HarvestFailurePayload {
	p := notify.HarvestFailurePayload{
		JobID:      jobID,
		SourceID:   sourceID,
		SourceName: sourceName,
		Stage:      stage,
	}
	if err != nil {
		p.Error = err.Error()
		p.ErrorClass = obserrors.Classify(err)
	}
	return p
}

// NotifyHarvestFailure fans the payload out to all sinks and waits for every delivery.
// Delivery errors are logged. Failures caused by cancellation are not reported.
func (s *Service) NotifyHarvestFailure(ctx context.Context, payload notify.HarvestFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	if payload.ErrorClass == "canceled" {
		s.logger.DebugContext(ctx, "skipping notification for canceled operation",
			"job_id", payload.JobID,
			"stage", payload.Stage,
		)
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now().UTC()
	}

	// Deliveries outlive a canceled pass so the failure still reaches operators.
	base := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(base, s.timeout)
			defer cancel()
			if err := entry.Sink.SendHarvestFailure(sendCtx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"source_id", payload.SourceID,
					"stage", payload.Stage,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
