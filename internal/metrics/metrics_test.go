package metrics

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rumbo-ai/rumbo/internal/store"
)

type captureMetrics struct {
	bucket time.Time
	model  string
	delta  store.MetricDelta
	err    error
	calls  int
}

func (c *captureMetrics) AddToBucket(ctx context.Context, bucketHour time.Time, model string, delta store.MetricDelta) error {
	c.calls++
	c.bucket = bucketHour
	c.model = model
	c.delta = delta
	return c.err
}

func TestEstimateCost(t *testing.T) {
	got := EstimateCost(2000, 1000, 0.01, 0.03)
	if math.Abs(got-0.05) > 1e-9 {
		t.Errorf("EstimateCost = %v, want 0.05", got)
	}
	if got := EstimateCost(0, 0, 0.01, 0.03); got != 0 {
		t.Errorf("zero tokens should cost zero, got %v", got)
	}
}

func TestFinishStampsDuration(t *testing.T) {
	m := Start(uuid.Must(uuid.NewV7()))
	m.StartedAt = time.Now().UTC().Add(-250 * time.Millisecond)
	m.Finish(true, "")

	if !m.Success || m.ErrorKind != "" {
		t.Errorf("unexpected finish state %+v", m)
	}
	if m.DurationMS < 200 {
		t.Errorf("duration should cover elapsed time, got %d", m.DurationMS)
	}
}

func TestRecordAggregatesIntoHourBucket(t *testing.T) {
	capture := &captureMetrics{}
	r := NewRecorder(capture, slog.Default())

	m := Start(uuid.Must(uuid.NewV7()))
	m.Model = "gpt-4o-mini"
	m.InputTokens = 120
	m.OutputTokens = 30
	m.CostUSD = 0.002
	m.Finish(true, "")

	r.Record(context.Background(), m)

	if capture.calls != 1 {
		t.Fatalf("AddToBucket calls = %d", capture.calls)
	}
	if capture.bucket != m.FinishedAt.Truncate(time.Hour) {
		t.Errorf("bucket = %v, want hour of %v", capture.bucket, m.FinishedAt)
	}
	if capture.delta.Success != 1 || capture.delta.Failure != 0 {
		t.Errorf("success delta wrong: %+v", capture.delta)
	}
	if capture.delta.Tokens != 150 {
		t.Errorf("tokens = %d, want 150", capture.delta.Tokens)
	}
}

func TestRecordFailureCountsAsFailure(t *testing.T) {
	capture := &captureMetrics{}
	r := NewRecorder(capture, slog.Default())

	m := Start(uuid.Must(uuid.NewV7()))
	m.Finish(false, "TIMEOUT")
	r.Record(context.Background(), m)

	if capture.delta.Failure != 1 || capture.delta.Success != 0 {
		t.Errorf("failure delta wrong: %+v", capture.delta)
	}
	if capture.model != "none" {
		t.Errorf("missing model should record as none, got %q", capture.model)
	}
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	capture := &captureMetrics{err: errors.New("db down")}
	r := NewRecorder(capture, slog.Default())

	m := Start(uuid.Must(uuid.NewV7()))
	m.Finish(true, "")
	r.Record(context.Background(), m) // must not panic or propagate
	if capture.calls != 1 {
		t.Errorf("store should still be attempted, calls = %d", capture.calls)
	}
}
