// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify prompt construction and to feed
// controlled replies without a live model backend. All fields are safe to set
// before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{Reply: "simple"}
//	out, err := p.Generate(ctx, llm.GenerateRequest{Prompt: "Classify this."})
package mock

import (
	"context"
	"sync"

	"github.com/attercap/sennet/pkg/provider/llm"
)

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the GenerateRequest passed to Generate.
	Req llm.GenerateRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause methods to return empty replies and nil errors.
type Provider struct {
	mu sync.Mutex

	// Replies are returned by successive Generate calls in order. When the
	// script is exhausted (or empty), Generate returns Reply.
	Replies []string

	// Reply is the fallback return value of Generate.
	Reply string

	// GenerateErr, if non-nil, is returned by every Generate call.
	GenerateErr error

	// PingErr, if non-nil, is returned by every Ping call.
	PingErr error

	// --- Call records (read after test) ---

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall

	// PingCallCount is the number of times Ping was called.
	PingCallCount int

	next int
}

// Generate records the call and returns the next scripted reply.
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	if p.GenerateErr != nil {
		return "", p.GenerateErr
	}
	if p.next < len(p.Replies) {
		reply := p.Replies[p.next]
		p.next++
		return reply, nil
	}
	return p.Reply, nil
}

// Ping records the call and returns PingErr.
func (p *Provider) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PingCallCount++
	return p.PingErr
}

// ResetCalls clears all recorded calls and rewinds the reply script.
// Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
	p.PingCallCount = 0
	p.next = 0
}
