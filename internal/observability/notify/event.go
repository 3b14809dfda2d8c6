// Package notify carries harvest failure notifications to operator channels.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Stages at which a harvest job can fail outside of its own gather workers.
const (
	StageDispatch  = "dispatch"
	StageReconcile = "reconcile"
)

// HarvestFailurePayload is the data emitted when a harvest job cannot make progress.
type HarvestFailurePayload struct {
	JobID      string
	SourceID   string
	SourceName string
	Stage      string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink is a destination for harvest failure notifications.
type Sink interface {
	SendHarvestFailure(ctx context.Context, payload HarvestFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload HarvestFailurePayload) error

// SendHarvestFailure implements Sink.
func (f SinkFunc) SendHarvestFailure(ctx context.Context, payload HarvestFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
