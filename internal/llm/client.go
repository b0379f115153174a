// Package llm gives the routing tiers their view of the local language
// model: a fast intent classifier, a short conversational answer path, and
// a breaker-guarded availability probe. The heavyweight reasoning path
// lives in internal/brain; this client only ever makes small, tightly
// time-boxed calls.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/attercap/sennet/internal/resilience"
	"github.com/attercap/sennet/pkg/provider/llm"
)

// Intent is the coarse category the classifier assigns to an utterance.
type Intent string

const (
	IntentSimple    Intent = "simple"
	IntentComplex   Intent = "complex"
	IntentAction    Intent = "action"
	IntentTmux      Intent = "tmux"
	IntentKnowledge Intent = "knowledge"
)

// intents in the order the parser probes for them.
var intents = []Intent{IntentSimple, IntentComplex, IntentAction, IntentTmux, IntentKnowledge}

// Per-call deadlines. The voice loop cannot wait on a wedged model, so
// every call carries its own short timeout regardless of the caller's ctx.
const (
	DefaultIntentTimeout = 5 * time.Second
	DefaultAnswerTimeout = 8 * time.Second
	DefaultPingTimeout   = 2 * time.Second
)

const classifySystem = `You classify a voice command for a developer workstation into exactly one category.
Categories:
  simple - small talk, greetings, quick factual questions
  complex - multi-step reasoning, coding, anything needing tools
  action - operate the desktop: click, type, open applications
  tmux - terminal windows: send, check, switch, cancel, list
  knowledge - questions about the user's own notes, tasks, or past work
Reply with the single category word and nothing else.`

const answerSystem = `You are a voice assistant on a developer workstation.
Answer in one or two short spoken sentences. No markdown, no lists.`

// Client wraps the local LLM provider with the derived helpers the
// orchestrator routes through. A circuit breaker around Ping keeps a down
// server from costing a probe timeout on every single turn.
type Client struct {
	provider llm.Provider
	breaker  *resilience.CircuitBreaker

	intentTimeout time.Duration
	answerTimeout time.Duration
	pingTimeout   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts overrides the per-call deadlines. Zero values keep the
// defaults.
func WithTimeouts(intent, answer, ping time.Duration) Option {
	return func(c *Client) {
		if intent > 0 {
			c.intentTimeout = intent
		}
		if answer > 0 {
			c.answerTimeout = answer
		}
		if ping > 0 {
			c.pingTimeout = ping
		}
	}
}

// WithBreaker replaces the availability breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// NewClient creates a client over the given provider.
func NewClient(provider llm.Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "local-llm",
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		}),
		intentTimeout: DefaultIntentTimeout,
		answerTimeout: DefaultAnswerTimeout,
		pingTimeout:   DefaultPingTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether the local model answers its health probe. The
// probe runs through the breaker, so after repeated failures it returns
// false immediately without touching the network.
func (c *Client) Available(ctx context.Context) bool {
	err := c.breaker.Execute(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
		defer cancel()
		return c.provider.Ping(pingCtx)
	})
	if err != nil {
		slog.Debug("local llm unavailable", "err", err)
		return false
	}
	return true
}

// ClassifyIntent assigns text one of the five intent categories. Any
// failure, including output that does not parse as a category, falls back
// to [IntentComplex] so the utterance still reaches the heavyweight path.
func (c *Client) ClassifyIntent(ctx context.Context, text string) Intent {
	callCtx, cancel := context.WithTimeout(ctx, c.intentTimeout)
	defer cancel()

	out, err := c.provider.Generate(callCtx, llm.GenerateRequest{
		Prompt:    text,
		System:    classifySystem,
		MaxTokens: 8,
	})
	if err != nil {
		slog.Debug("intent classification failed", "err", err)
		return IntentComplex
	}
	return parseIntent(out)
}

// parseIntent extracts a category from model output. Exact match on the
// first word wins; otherwise the first category mentioned anywhere wins;
// otherwise complex.
func parseIntent(out string) Intent {
	cleaned := strings.ToLower(strings.TrimSpace(out))
	cleaned = strings.Trim(cleaned, ".,!\"'`")
	if cleaned == "" {
		return IntentComplex
	}
	first := strings.Fields(cleaned)[0]
	for _, it := range intents {
		if first == string(it) {
			return it
		}
	}
	for _, it := range intents {
		if strings.Contains(cleaned, string(it)) {
			return it
		}
	}
	return IntentComplex
}

// QuickAnswer asks the model for a short spoken reply. It reports false
// when the model fails, times out, or produces nothing, in which case the
// caller escalates.
func (c *Client) QuickAnswer(ctx context.Context, text string) (string, bool) {
	callCtx, cancel := context.WithTimeout(ctx, c.answerTimeout)
	defer cancel()

	out, err := c.provider.Generate(callCtx, llm.GenerateRequest{
		Prompt:      text,
		System:      answerSystem,
		MaxTokens:   120,
		Temperature: 0.4,
	})
	if err != nil {
		slog.Debug("quick answer failed", "err", err)
		return "", false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", false
	}
	return out, true
}

// AnswerOver asks the model to answer a question grounded on retrieved
// snippets. Same contract as [Client.QuickAnswer].
func (c *Client) AnswerOver(ctx context.Context, question string, snippets []string) (string, bool) {
	if len(snippets) == 0 {
		return c.QuickAnswer(ctx, question)
	}

	var b strings.Builder
	b.WriteString("Use the following notes to answer the question.\n\n")
	for i, s := range snippets {
		fmt.Fprintf(&b, "Note %d: %s\n", i+1, strings.TrimSpace(s))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	return c.QuickAnswer(ctx, b.String())
}
