// Package metrics tracks per-request query metrics and folds them into
// hourly per-model aggregates.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rumbo-ai/rumbo/internal/store"
)

// QueryMetrics is the per-request trace, created at request start and
// finalized at the end.
type QueryMetrics struct {
	RequestID  uuid.UUID `json:"request_id"`
	SessionID  uuid.UUID `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int       `json:"duration_ms"`

	Intent     string  `json:"intent,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Complexity string  `json:"complexity,omitempty"`
	Model      string  `json:"model,omitempty"`
	Tier       string  `json:"tier,omitempty"`

	ToolCalls      int `json:"tool_calls"`
	ReasoningSteps int `json:"reasoning_steps"`
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`

	CostUSD   float64 `json:"cost_usd"`
	Success   bool    `json:"success"`
	ErrorKind string  `json:"error_kind,omitempty"`
}

// Start opens a metrics trace for a request.
func Start(sessionID uuid.UUID) *QueryMetrics {
	return &QueryMetrics{
		RequestID: uuid.Must(uuid.NewV7()),
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the end of the request.
func (m *QueryMetrics) Finish(success bool, errorKind string) {
	m.FinishedAt = time.Now().UTC()
	m.DurationMS = int(m.FinishedAt.Sub(m.StartedAt).Milliseconds())
	m.Success = success
	m.ErrorKind = errorKind
}

// EstimateCost prices a call from token counts and per-1K rates.
// Provider-reported token counts are preferred by callers; this only
// does the arithmetic.
func EstimateCost(inputTokens, outputTokens int, inputPer1K, outputPer1K float64) float64 {
	return float64(inputTokens)/1000*inputPer1K + float64(outputTokens)/1000*outputPer1K
}

// Recorder writes finished traces into the hourly aggregate buckets.
// Recording failures are logged, never surfaced: metrics must not take
// a successful request down.
type Recorder struct {
	store  store.MetricStore
	logger *slog.Logger
}

func NewRecorder(s store.MetricStore, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, m *QueryMetrics) {
	if r.store == nil {
		return
	}
	delta := store.MetricDelta{
		Queries:    1,
		Tokens:     int64(m.InputTokens + m.OutputTokens),
		CostUSD:    m.CostUSD,
		DurationMS: m.DurationMS,
	}
	if m.Success {
		delta.Success = 1
	} else {
		delta.Failure = 1
	}

	model := m.Model
	if model == "" {
		model = "none"
	}
	if err := r.store.AddToBucket(ctx, m.FinishedAt.Truncate(time.Hour), model, delta); err != nil {
		r.logger.Warn("metrics write failed", "request", m.RequestID, "error", err)
	}
}
