package anyllm

import (
	"context"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/attercap/sennet/pkg/provider/llm"
)

// ── buildParams ───────────────────────────────────────────────────────────────

// TestBuildParams_SystemFirst checks that a system instruction becomes the
// leading message, ahead of the user prompt.
func TestBuildParams_SystemFirst(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.GenerateRequest{
		Prompt: "What is on my screen?",
		System: "You are a terse voice assistant.",
	})

	if params.Model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("expected first role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[0].ContentString() != "You are a terse voice assistant." {
		t.Errorf("unexpected system content: %q", params.Messages[0].ContentString())
	}
	if params.Messages[1].Role != anyllmlib.RoleUser {
		t.Errorf("expected second role user, got %q", params.Messages[1].Role)
	}
	if params.Messages[1].ContentString() != "What is on my screen?" {
		t.Errorf("unexpected user content: %q", params.Messages[1].ContentString())
	}
}

// TestBuildParams_NoSystem checks that an empty system instruction yields a
// single user message.
func TestBuildParams_NoSystem(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.GenerateRequest{Prompt: "Hello!"})

	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleUser {
		t.Errorf("expected role user, got %q", params.Messages[0].Role)
	}
}

// TestBuildParams_Temperature checks that only non-zero temperatures are forwarded.
func TestBuildParams_Temperature(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	params := p.buildParams(llm.GenerateRequest{Prompt: "Hi", Temperature: 0.3})
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", params.Temperature)
	}

	params = p.buildParams(llm.GenerateRequest{Prompt: "Hi"})
	if params.Temperature != nil {
		t.Errorf("expected nil temperature for zero value, got %v", *params.Temperature)
	}
}

// TestBuildParams_MaxTokens checks that only positive token caps are forwarded.
func TestBuildParams_MaxTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	params := p.buildParams(llm.GenerateRequest{Prompt: "Hi", MaxTokens: 80})
	if params.MaxTokens == nil || *params.MaxTokens != 80 {
		t.Errorf("expected max tokens 80, got %v", params.MaxTokens)
	}

	params = p.buildParams(llm.GenerateRequest{Prompt: "Hi"})
	if params.MaxTokens != nil {
		t.Errorf("expected nil max tokens for zero value, got %v", *params.MaxTokens)
	}
}

// ── Ping ──────────────────────────────────────────────────────────────────────

// TestPing_HealthyByDefault checks that Ping reports healthy without a live backend.
func TestPing_HealthyByDefault(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestPing_CancelledContext checks that Ping surfaces context cancellation.
func TestPing_CancelledContext(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Ping(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that the OpenAI backend constructs with an API key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", p.model)
	}
}

// TestNew_OpenAI_MissingAPIKey checks that OpenAI returns an error when no API key is available.
// This relies on OPENAI_API_KEY not being set in the test environment.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "") // Ensure env var is clear.
	_, err := New("openai", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := NewOllama("llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestConvenienceConstructors checks all convenience constructors delegate correctly.
func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"NewOpenAI", func() (*Provider, error) { return NewOpenAI("gpt-4o-mini", anyllmlib.WithAPIKey("sk-test")) }},
		{"NewAnthropic", func() (*Provider, error) {
			return NewAnthropic("claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-test"))
		}},
		{"NewOllama", func() (*Provider, error) { return NewOllama("llama3") }},
		{"NewLlamaCpp", func() (*Provider, error) { return NewLlamaCpp("llama3") }},
		{"NewLlamaFile", func() (*Provider, error) { return NewLlamaFile("llama3") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			if p == nil {
				t.Fatalf("%s: expected non-nil provider", tt.name)
			}
		})
	}
}
