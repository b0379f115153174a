package resilience

import (
	"context"

	"github.com/attercap/sennet/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Generate sends the exchange to the first healthy provider and returns its
// reply. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (string, error) {
		return p.Generate(ctx, req)
	})
}

// Ping probes the first healthy provider. A reachable fallback counts as
// reachable; the voice loop only cares whether some model will answer.
func (f *LLMFallback) Ping(ctx context.Context) error {
	return f.group.Execute(func(p llm.Provider) error {
		return p.Ping(ctx)
	})
}
