package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/providers"
	"github.com/rumbo-ai/rumbo/internal/tools"
)

// Limiter bounds in-process concurrency: active model calls, active
// tool calls, and a bounded admission queue beyond which requests fail
// fast with OVERLOADED.
type Limiter struct {
	modelSem *semaphore.Weighted
	toolSem  *semaphore.Weighted
	queue    chan struct{}
}

func NewLimiter(cfg config.LimitsConfig) *Limiter {
	maxModel := int64(cfg.MaxModelCalls)
	if maxModel <= 0 {
		maxModel = 32
	}
	maxTool := int64(cfg.MaxToolCalls)
	if maxTool <= 0 {
		maxTool = 64
	}
	queueLen := cfg.QueueLength
	if queueLen <= 0 {
		queueLen = 128
	}
	return &Limiter{
		modelSem: semaphore.NewWeighted(maxModel),
		toolSem:  semaphore.NewWeighted(maxTool),
		queue:    make(chan struct{}, queueLen),
	}
}

// Admit claims a queue slot without blocking. False means the queue is
// full and the caller must reject with OVERLOADED.
func (l *Limiter) Admit() bool {
	select {
	case l.queue <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *Limiter) Leave() {
	<-l.queue
}

func (l *Limiter) AcquireModel(ctx context.Context) error { return l.modelSem.Acquire(ctx, 1) }
func (l *Limiter) ReleaseModel()                          { l.modelSem.Release(1) }
func (l *Limiter) AcquireTool(ctx context.Context) error  { return l.toolSem.Acquire(ctx, 1) }
func (l *Limiter) ReleaseTool()                           { l.toolSem.Release(1) }

// limitedProvider holds a model-call slot across each Chat call.
type limitedProvider struct {
	providers.Provider
	limiter *Limiter
}

func (p *limitedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if err := p.limiter.AcquireModel(ctx); err != nil {
		return nil, err
	}
	defer p.limiter.ReleaseModel()
	return p.Provider.Chat(ctx, req)
}

// limitedTool holds a tool-call slot across each invocation.
type limitedTool struct {
	tools.Tool
	limiter *Limiter
}

func (t *limitedTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	if err := t.limiter.AcquireTool(ctx); err != nil {
		return nil, err
	}
	defer t.limiter.ReleaseTool()
	return t.Tool.Execute(ctx, args)
}

// LimitTool wraps a tool so its executions count against the limiter.
func LimitTool(t tools.Tool, l *Limiter) tools.Tool {
	return &limitedTool{Tool: t, limiter: l}
}

// LimitProvider wraps a provider so its calls count against the limiter.
func LimitProvider(p providers.Provider, l *Limiter) providers.Provider {
	return &limitedProvider{Provider: p, limiter: l}
}

// deadlineProvider caps each Chat call with its own timeout, tighter
// than the per-request deadline.
type deadlineProvider struct {
	providers.Provider
	timeout time.Duration
}

func (p *deadlineProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Provider.Chat(ctx, req)
}

// ModelDeadline wraps a provider so each call gets its own timeout.
func ModelDeadline(p providers.Provider, d time.Duration) providers.Provider {
	if d <= 0 {
		return p
	}
	return &deadlineProvider{Provider: p, timeout: d}
}
