// Package ollama provides an LLM provider backed by a local Ollama server.
//
// Ollama (https://ollama.com) hosts local language models behind a plain HTTP
// API. This package speaks the native /api/generate endpoint directly with
// streaming disabled, which is all the single-exchange Provider contract
// needs: intent classification and short spoken answers.
//
// Example usage:
//
//	p, err := ollama.New("", "llama3.2:3b") // connects to http://localhost:11434
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reply, err := p.Generate(ctx, llm.GenerateRequest{Prompt: "Say hello."})
//
// Only standard library packages are used — no additional dependencies are
// required beyond Go's net/http and encoding/json.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/attercap/sennet/pkg/provider/llm"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// Ensure Provider implements the llm.Provider interface at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using a local Ollama server.
//
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default). Callers typically
// pass tighter per-call context deadlines on top of this outer bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new Ollama Provider.
//
// baseURL is the base URL of the Ollama server (e.g., "http://localhost:11434").
// If empty, DefaultBaseURL is used. A trailing slash is stripped automatically.
//
// model is the Ollama model name to generate with (e.g., "llama3.2:3b"). It
// must not be empty and must already be pulled into the server.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	// Strip trailing slash for consistent URL construction.
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Provider{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}, nil
}

// generateRequest is the JSON request body sent to Ollama's /api/generate endpoint.
type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	System  string           `json:"system,omitempty"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

// generateOptions carries the per-request model options Ollama understands.
type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// generateResponse is the JSON response body for a non-streaming generate.
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate implements llm.Provider by sending a single non-streaming generate
// request and returning the reply text trimmed of surrounding whitespace.
//
// Returns an error if the HTTP request fails, the server returns a non-200
// status, the response cannot be decoded, or ctx is cancelled.
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("ollama: generate: prompt must not be empty")
	}

	payload := generateRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}
	if req.MaxTokens > 0 || req.Temperature != 0 {
		payload.Options = &generateOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
		}
	}

	result, err := p.callGenerate(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}

// Ping implements llm.Provider by probing the /api/tags endpoint, which
// answers quickly whether or not a model is currently loaded into memory.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: ping: build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// callGenerate is the internal helper that sends a POST /api/generate request
// to the Ollama server and decodes the response.
//
// It respects context cancellation via http.NewRequestWithContext.
func (p *Provider) callGenerate(ctx context.Context, payload generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
