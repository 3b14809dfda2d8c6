// Package metrics standardises the metric names emitted by the harvest services.
package metrics

import (
	"time"

	obserrors "github.com/target/harvestd/internal/observability/errors"
	"github.com/target/harvestd/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultSkipped = "skipped"
)

// Metric names.
const (
	PassRuns        = "harvest.pass"
	PassDuration    = "harvest.pass_duration"
	PassLastSuccess = "harvest.pass.last_success_epoch"
	StepRuns        = "harvest.step"
	StepDuration    = "harvest.step_duration"
	JobsCreated     = "harvest.jobs_created"
	JobsDispatched  = "harvest.jobs_dispatched"
	JobsFinished    = "harvest.jobs_finished"
	DatasetsFixed   = "harvest.datasets_relinked"
	DatasetsDeleted = "harvest.datasets_deleted"
)

// PassMetric describes one harvest pass.
type PassMetric struct {
	Result     string
	Duration   time.Duration
	Created    int
	Dispatched int
	Finished   int
	Err        error
}

// EmitPass records the outcome of a harvest pass.
func EmitPass(sink statsd.Sink, in PassMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(PassRuns, 1, tags)
	if in.Duration > 0 {
		sink.Timing(PassDuration, in.Duration, CloneTags(tags))
	}
	if in.Created > 0 {
		sink.Count(JobsCreated, int64(in.Created), nil)
	}
	if in.Dispatched > 0 {
		sink.Count(JobsDispatched, int64(in.Dispatched), nil)
	}
	if in.Finished > 0 {
		sink.Count(JobsFinished, int64(in.Finished), nil)
	}
	if in.Result == ResultSuccess {
		sink.Gauge(PassLastSuccess, float64(time.Now().Unix()), nil)
	}
}

// StepMetric describes one step of a harvest pass, e.g. "schedule" or "reconcile".
type StepMetric struct {
	Step     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitStep records the outcome of one pass step.
func EmitStep(sink statsd.Sink, in StepMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"step":   in.Step,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(StepRuns, 1, tags)
	if in.Duration > 0 {
		sink.Timing(StepDuration, in.Duration, CloneTags(tags))
	}
}

// ResultFor maps an error and a work count to a result tag.
func ResultFor(err error, count int) string {
	switch {
	case err != nil:
		return ResultError
	case count == 0:
		return ResultNoop
	default:
		return ResultSuccess
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
