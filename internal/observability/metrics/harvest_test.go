package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/observability/statsd"
)

func TestEmitPass(t *testing.T) {
	rec := statsd.NewRecorder()

	EmitPass(rec, PassMetric{
		Result:     ResultError,
		Duration:   time.Second,
		Created:    2,
		Dispatched: 1,
		Err:        fmt.Errorf("list due: %w", domain.ErrSourceNotFound),
	})

	counts := rec.Counts()
	assert.Equal(t, int64(1), counts[PassRuns])
	assert.Equal(t, int64(2), counts[JobsCreated])
	assert.Equal(t, int64(1), counts[JobsDispatched])
	assert.NotContains(t, counts, JobsFinished)

	tags := rec.Tags(PassRuns)
	assert.Equal(t, "error", tags["result"])
	assert.Equal(t, "source_not_found", tags["error_class"])
	assert.NotContains(t, rec.Gauges(), PassLastSuccess)
}

func TestEmitPassSuccessSetsGauge(t *testing.T) {
	rec := statsd.NewRecorder()
	EmitPass(rec, PassMetric{Result: ResultSuccess})
	assert.Contains(t, rec.Gauges(), PassLastSuccess)
}

func TestEmitStep(t *testing.T) {
	rec := statsd.NewRecorder()
	EmitStep(rec, StepMetric{Step: "dispatch", Result: ResultError, Err: errors.New("x"), Duration: time.Millisecond})

	tags := rec.Tags(StepRuns)
	assert.Equal(t, "dispatch", tags["step"])
	assert.Equal(t, "errors_errorstring", tags["error_class"])
	assert.Equal(t, int64(1), rec.Counts()[StepRuns])

	EmitStep(nil, StepMetric{Step: "noop"})
}

func TestResultFor(t *testing.T) {
	assert.Equal(t, ResultError, ResultFor(errors.New("x"), 3))
	assert.Equal(t, ResultNoop, ResultFor(nil, 0))
	assert.Equal(t, ResultSuccess, ResultFor(nil, 1))
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "b"}
	cp := CloneTags(src)
	cp["a"] = "c"
	assert.Equal(t, "b", src["a"])
}
