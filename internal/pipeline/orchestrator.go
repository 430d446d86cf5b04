// Package pipeline sequences the request stages: validation, memory,
// context building, classification, routing, the reason-act loop,
// persistence and metrics.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rumbo-ai/rumbo/internal/agent"
	"github.com/rumbo-ai/rumbo/internal/classify"
	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/contextbuild"
	"github.com/rumbo-ai/rumbo/internal/i18n"
	"github.com/rumbo-ai/rumbo/internal/memory"
	"github.com/rumbo-ai/rumbo/internal/metrics"
	"github.com/rumbo-ai/rumbo/internal/providers"
	"github.com/rumbo-ai/rumbo/internal/router"
	"github.com/rumbo-ai/rumbo/internal/store"
	"github.com/rumbo-ai/rumbo/internal/tools"
	"github.com/rumbo-ai/rumbo/internal/validate"
)

// Response is the assembled result for one user turn.
type Response struct {
	SessionID         string           `json:"session_id"`
	Response          string           `json:"response_text"`
	Intent            string           `json:"intention"`
	Confidence        float64          `json:"confidence"`
	Complexity        string           `json:"complexity"`
	Model             string           `json:"model_used"`
	ProcessingTimeMS  int              `json:"processing_time_ms"`
	DetectedEmotion   string           `json:"detected_emotion,omitempty"`
	EmotionConfidence float64          `json:"emotion_confidence,omitempty"`
	Places            []store.Place    `json:"places,omitempty"`
	Itinerary         *tools.Itinerary `json:"itinerary,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}

// Orchestrator wires every stage together.
type Orchestrator struct {
	cfg        *config.Config
	validator  *validate.Validator
	buffer     *memory.Buffer
	builder    *contextbuild.Builder
	classifier *classify.Classifier
	router     *router.Router
	registry   *providers.Registry
	executor   *agent.Executor
	recorder   *metrics.Recorder
	turns      store.TurnStore
	translator *i18n.Translator
	limiter    *Limiter
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Config     *config.Config
	Validator  *validate.Validator
	Buffer     *memory.Buffer
	Builder    *contextbuild.Builder
	Classifier *classify.Classifier
	Router     *router.Router
	Registry   *providers.Registry
	Executor   *agent.Executor
	Recorder   *metrics.Recorder
	Turns      store.TurnStore
	Translator *i18n.Translator
	Limiter    *Limiter
	Logger     *slog.Logger
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:        d.Config,
		validator:  d.Validator,
		buffer:     d.Buffer,
		builder:    d.Builder,
		classifier: d.Classifier,
		router:     d.Router,
		registry:   d.Registry,
		executor:   d.Executor,
		recorder:   d.Recorder,
		turns:      d.Turns,
		translator: d.Translator,
		limiter:    d.Limiter,
		logger:     d.Logger,
		tracer:     otel.Tracer("rumbo/pipeline"),
	}
}

// Handle runs one request through the pipeline. The returned *Error is
// nil on success; metrics are recorded on every path.
func (o *Orchestrator) Handle(ctx context.Context, req validate.Request) (*Response, *Error) {
	if o.limiter != nil {
		if !o.limiter.Admit() {
			return nil, newError(KindOverloaded, fmt.Errorf("admission queue full"))
		}
		defer o.limiter.Leave()
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadlines.PerRequest())
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "pipeline.handle")
	defer span.End()

	m := metrics.Start(uuid.Nil) // session stamped after validation
	resp, perr := o.handle(ctx, req, m)

	if perr != nil {
		m.Finish(false, string(perr.Kind))
		span.SetAttributes(attribute.String("error.kind", string(perr.Kind)))
	} else if m.ErrorKind != "" {
		// soft failure (e.g. persistence) already stamped
		m.Finish(true, m.ErrorKind)
	} else {
		m.Finish(true, "")
	}
	o.recorder.Record(context.WithoutCancel(ctx), m)

	if perr != nil {
		o.logger.Warn("request failed", "kind", perr.Kind, "error", perr.Err)
		return nil, perr
	}
	resp.ProcessingTimeMS = m.DurationMS
	return resp, nil
}

func (o *Orchestrator) handle(ctx context.Context, req validate.Request, m *metrics.QueryMetrics) (*Response, *Error) {
	// 1. validate and merge preferences
	vc, err := o.validator.Validate(ctx, req)
	if err != nil {
		return nil, newError(validationKind(err), err)
	}
	m.SessionID = vc.SessionID
	log := o.logger.With("session", vc.SessionID, "user", vc.UserID)

	// 2. load memory window
	window, err := o.buffer.LoadWindow(ctx, vc.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(contextKind(ctx.Err()), err)
		}
		return nil, newError(KindMemoryUnavailable, err)
	}

	// 3. classify intent (soft on failure)
	decision, clsErr := o.classifier.Classify(ctx, vc.Query, vc.Language, window.Summary)
	if clsErr != nil {
		log.Warn("classification degraded", "error", clsErr)
	}
	m.Intent = decision.Intent
	m.Confidence = decision.Confidence
	m.Complexity = decision.Complexity

	// 4. route model
	budgetMode := vc.BudgetMode || o.cfg.Models.BudgetMode
	modelDecision, err := o.router.RouteWithPreference(decision.Intent, decision.Complexity, budgetMode, vc.PreferredModel)
	if err != nil {
		return nil, newError(KindInternal, err)
	}
	m.Model = modelDecision.Model
	m.Tier = modelDecision.Tier

	// 5. build agent context
	ac := o.builder.Build(vc, window, modelDecision.MaxContextTokens)
	emotion := classify.DetectEmotion(vc.Query)

	resp := &Response{
		SessionID:         vc.SessionID.String(),
		Intent:            decision.Intent,
		Confidence:        decision.Confidence,
		Complexity:        decision.Complexity,
		Model:             modelDecision.Model,
		DetectedEmotion:   emotion.Label,
		EmotionConfidence: emotion.Confidence,
	}

	// 6. plan slot filling: an unready plan asks for what's missing
	// instead of burning a model call.
	if decision.Intent == classify.IntentPlan && !ac.Plan.Ready() {
		resp.Response = contextbuild.MissingPrompt(o.translator, vc.Language, ac.Plan.Missing())
		resp.Metadata = map[string]any{
			"plan_ready":         false,
			"missing":            ac.Plan.Missing(),
			"tool_calls":         0,
			"reasoning_steps":    0,
			"estimated_cost_usd": 0.0,
		}
		o.persistTurn(ctx, vc, resp, ac, nil, m, log)
		return resp, nil
	}

	// 7. run the reason-act loop
	provider, err := o.registry.Get(modelDecision.Provider)
	if err != nil {
		return nil, newError(KindInternal, err)
	}
	if o.limiter != nil {
		provider = LimitProvider(provider, o.limiter)
	}
	provider = ModelDeadline(provider, o.cfg.Deadlines.ModelCall())

	outcome, err := o.executor.Run(ctx, provider, agent.Params{
		Model:              modelDecision.Model,
		MaxTokens:          modelDecision.MaxTokens,
		Temperature:        modelDecision.Temperature,
		MaxIterations:      o.cfg.Agent.MaxReasoningIterations,
		ArgDefaults:        o.toolArgDefaults(vc, ac.Plan),
		TruncationFallback: o.translator.Translate("agent.truncated", vc.Language),
	}, ac.Messages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(contextKind(ctx.Err()), err)
		}
		return nil, newError(KindModelError, err)
	}

	m.ReasoningSteps = outcome.Iterations
	m.ToolCalls = len(outcome.ToolTraces)
	m.InputTokens = outcome.Usage.PromptTokens
	m.OutputTokens = outcome.Usage.CompletionTokens
	if m.InputTokens == 0 && m.OutputTokens == 0 {
		// provider did not report usage; fall back to estimation
		for _, msg := range ac.Messages {
			m.InputTokens += memory.EstimateTokens(msg.Content)
		}
		m.OutputTokens = memory.EstimateTokens(outcome.Response)
	}
	m.CostUSD = metrics.EstimateCost(m.InputTokens, m.OutputTokens, modelDecision.InputCostPer1K, modelDecision.OutputCostPer1K)

	resp.Response = outcome.Response
	resp.Places = outcome.Places
	resp.Itinerary = outcome.Itinerary
	resp.Metadata = map[string]any{
		"tool_calls":         len(outcome.ToolTraces),
		"reasoning_steps":    outcome.Iterations,
		"estimated_cost_usd": m.CostUSD,
		"truncated":          outcome.Truncated,
	}

	// 8. persist and invalidate
	o.persistTurn(ctx, vc, resp, ac, outcome, m, log)
	return resp, nil
}

// toolArgDefaults seeds tool arguments the model tends to omit: the
// user's coordinates and the accumulated plan slots.
func (o *Orchestrator) toolArgDefaults(vc *validate.Context, plan contextbuild.PlanParams) map[string]map[string]any {
	itinerary := map[string]any{}
	if vc.Location != nil {
		itinerary["lat"] = vc.Location.Lat
		itinerary["lon"] = vc.Location.Lon
	}
	if plan.DurationMinutes > 0 {
		itinerary["duration"] = strconv.Itoa(plan.DurationMinutes)
	}
	if plan.NumPeople > 0 {
		itinerary["num_people"] = plan.NumPeople
	}
	if len(plan.Cities) > 0 {
		itinerary["city"] = plan.Cities[0]
	}
	if plan.Vibe != "" {
		itinerary["vibe"] = plan.Vibe
	}
	if plan.Budget != "" {
		itinerary["budget"] = plan.Budget
	}
	if plan.Transport != "" {
		itinerary["transport"] = plan.Transport
	}
	return map[string]map[string]any{"create_itinerary": itinerary}
}

// persistTurn appends the conversation turn and invalidates the cached
// memory window. Persistence failures are soft: the user still gets
// the response, the metrics trace records PERSISTENCE_FAILED.
func (o *Orchestrator) persistTurn(ctx context.Context, vc *validate.Context, resp *Response, ac *contextbuild.AgentContext, outcome *agent.Outcome, m *metrics.QueryMetrics, log *slog.Logger) {
	extra := map[string]any{}
	if !ac.Plan.IsZero() {
		extra[store.ExtraPlanParams] = ac.Plan
	}
	if outcome != nil {
		if len(outcome.Places) > 0 {
			extra[store.ExtraPlacesFound] = outcome.Places
		}
		if outcome.Itinerary != nil {
			extra[store.ExtraTitle] = outcome.Itinerary.Title
		}
	}
	if resp.DetectedEmotion != "" && resp.DetectedEmotion != "neutral" {
		extra[store.ExtraEmotion] = map[string]any{
			"label":      resp.DetectedEmotion,
			"confidence": resp.EmotionConfidence,
		}
	}

	turn := &store.ConversationTurn{
		SessionID:    vc.SessionID,
		UserID:       vc.UserID,
		Query:        vc.Query,
		Response:     resp.Response,
		Intent:       resp.Intent,
		Model:        resp.Model,
		InputTokens:  m.InputTokens,
		OutputTokens: m.OutputTokens,
		CostUSD:      m.CostUSD,
		DurationMS:   int(time.Since(m.StartedAt).Milliseconds()),
		Extra:        extra,
	}

	// The write must survive a client that has already disconnected.
	persistCtx := context.WithoutCancel(ctx)
	if err := o.turns.AppendTurn(persistCtx, turn); err != nil {
		log.Error("turn persistence failed", "error", err)
		m.ErrorKind = string(KindPersistenceFailed)
		return
	}
	o.buffer.Invalidate(persistCtx, vc.SessionID)
}
