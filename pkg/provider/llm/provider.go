// Package llm defines the Provider interface for language model backends.
//
// An LLM provider wraps a local or hosted model API (e.g. an Ollama instance,
// OpenAI, or any backend reachable through any-llm) and exposes a uniform
// single-exchange interface. The voice loop only ever needs one prompt in and
// one short reply out: classify an utterance's intent, or produce a spoken
// answer. Conversation history is folded into the prompt text by the caller,
// so Provider carries no message list or streaming surface.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// GenerateRequest carries one prompt exchange.
type GenerateRequest struct {
	// Prompt is the user-facing prompt text and must not be empty.
	Prompt string

	// System is an optional instruction injected ahead of the prompt. Backends
	// with a dedicated system channel use it; others prepend it to the prompt.
	System string

	// MaxTokens caps the completion length. Zero means use the backend default.
	MaxTokens int

	// Temperature controls output randomness. Zero requests the backend
	// default; implementations only forward non-zero values.
	Temperature float64
}

// Provider is the abstraction over any single-exchange LLM backend.
type Provider interface {
	// Generate sends one exchange and returns the full reply text, trimmed of
	// surrounding whitespace. An empty reply with a nil error means the model
	// genuinely produced nothing; callers decide how to phrase that failure.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Ping reports whether the backend is currently reachable. Callers probe
	// with short timeouts before routing a request, so implementations must
	// keep this cheap and honor ctx deadlines.
	Ping(ctx context.Context) error
}
