// Package brain runs the heavyweight reasoning agent as a subprocess. It
// decides quick versus full mode from the utterance, assembles the prompt
// (preamble, screen context, retrieved snippets, recent turns), invokes
// the configured agent argv with a hard deadline, and post-processes the
// reply into something speakable.
package brain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel failures the orchestrator maps to canned spoken phrases.
var (
	ErrBrainTimeout = errors.New("brain: agent timed out")
	ErrBrainEmpty   = errors.New("brain: agent produced no reply")
)

// Mode is the invocation depth.
type Mode string

const (
	ModeQuick Mode = "quick"
	ModeFull  Mode = "full"
)

// Defaults mirroring the config schema.
const (
	DefaultQuickTimeout = 15 * time.Second
	DefaultFullTimeout  = 60 * time.Second
	DefaultHistorySize  = 10
	DefaultQuickWordMax = 12
)

// Argv placeholders replaced at invocation time.
const (
	placeholderPrompt = "{prompt}"
	placeholderOutput = "{output}"
)

const preamble = `You are a spoken assistant on a developer's workstation.
You can reason about code, the visible screen, and the user's notes.
Reply with plain prose suitable for reading aloud. Keep it brief.`

// ContextSource provides the screen-context block for full-mode prompts.
// internal/screen's Context satisfies it.
type ContextSource interface {
	Gather(ctx context.Context, withVision bool) string
}

// Snippet is one retrieved knowledge-base passage.
type Snippet struct {
	Document string
	Distance float64
}

// Retriever fetches knowledge snippets for the prompt. Optional.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Snippet, error)
}

// snippetMaxDistance drops retrieved passages too far from the query to
// help.
const snippetMaxDistance = 1.5

// snippetTopK is how many passages a prompt carries at most.
const snippetTopK = 3

// Config describes the agent subprocess.
type Config struct {
	// Command is the argv template. {prompt} and {output} are replaced per
	// invocation.
	Command []string

	// ScratchDir holds per-invocation output files.
	ScratchDir string

	QuickTimeout time.Duration
	FullTimeout  time.Duration
	HistorySize  int
	QuickWordMax int
}

func (c *Config) applyDefaults() {
	if c.QuickTimeout <= 0 {
		c.QuickTimeout = DefaultQuickTimeout
	}
	if c.FullTimeout <= 0 {
		c.FullTimeout = DefaultFullTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.QuickWordMax <= 0 {
		c.QuickWordMax = DefaultQuickWordMax
	}
	if c.ScratchDir == "" {
		c.ScratchDir = os.TempDir()
	}
}

// Client invokes the reasoning agent. Safe for concurrent use, though the
// orchestrator's single-flight turn worker means calls do not overlap in
// practice.
type Client struct {
	cfg       Config
	screen    ContextSource
	retriever Retriever
	history   *History
}

// Option configures a Client.
type Option func(*Client)

// WithScreen attaches the screen-context source used by full mode.
func WithScreen(src ContextSource) Option {
	return func(c *Client) { c.screen = src }
}

// WithRetriever attaches the knowledge retriever.
func WithRetriever(r Retriever) Option {
	return func(c *Client) { c.retriever = r }
}

// NewClient creates a brain client. cfg.Command must be non-empty.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("brain: empty agent command")
	}
	cfg.applyDefaults()
	c := &Client{
		cfg:     cfg,
		history: NewHistory(cfg.HistorySize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// History exposes the conversation ring so the orchestrator can clear it
// when a conversation ends.
func (c *Client) History() *History {
	return c.history
}

// ClearHistory forgets the recorded turns.
func (c *Client) ClearHistory() {
	c.history.Clear()
}

// ModeFor picks the invocation depth for an utterance: any action keyword
// forces full; otherwise short requests go quick.
func (c *Client) ModeFor(utterance string) Mode {
	if containsActionKeyword(utterance) {
		return ModeFull
	}
	if len(strings.Fields(utterance)) <= c.cfg.QuickWordMax {
		return ModeQuick
	}
	return ModeFull
}

// Ask runs one utterance through the agent and returns the speakable
// reply. The turn is recorded in history on success.
func (c *Client) Ask(ctx context.Context, utterance string) (string, error) {
	mode := c.ModeFor(utterance)
	prompt := c.buildPrompt(ctx, utterance, mode)

	timeout := c.cfg.QuickTimeout
	if mode == ModeFull {
		timeout = c.cfg.FullTimeout
	}

	reply, err := c.invoke(ctx, prompt, timeout)
	if err != nil {
		return "", err
	}

	reply = Speakable(reply)
	if reply == "" {
		return "", ErrBrainEmpty
	}
	c.history.Record(utterance, reply)
	return reply, nil
}

// buildPrompt assembles the agent prompt. Quick mode omits screen context.
func (c *Client) buildPrompt(ctx context.Context, utterance string, mode Mode) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")

	if mode == ModeFull && c.screen != nil {
		withVision := containsScreenKeyword(utterance)
		if sc := c.screen.Gather(ctx, withVision); sc != "" {
			b.WriteString("Current desktop:\n")
			b.WriteString(sc)
			b.WriteString("\n\n")
		}
	}

	if c.retriever != nil {
		snippets, err := c.retriever.Retrieve(ctx, utterance, snippetTopK)
		if err != nil {
			slog.Debug("snippet retrieval failed", "err", err)
		} else {
			wrote := false
			for _, s := range snippets {
				if s.Distance >= snippetMaxDistance {
					continue
				}
				if !wrote {
					b.WriteString("Possibly relevant notes:\n")
					wrote = true
				}
				b.WriteString("- ")
				b.WriteString(strings.TrimSpace(s.Document))
				b.WriteString("\n")
			}
			if wrote {
				b.WriteString("\n")
			}
		}
	}

	if turns := c.history.Turns(); len(turns) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "User: %s\nYou: %s\n", t.User, t.Assistant)
		}
		b.WriteString("\n")
	}

	b.WriteString("User request: ")
	b.WriteString(utterance)
	return b.String()
}

// invoke runs the agent argv with prompt and returns the raw reply text:
// the output file when written, otherwise the trailing non-echo stdout.
func (c *Client) invoke(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if err := os.MkdirAll(c.cfg.ScratchDir, 0o755); err != nil {
		return "", fmt.Errorf("brain: scratch dir: %w", err)
	}
	outputPath := filepath.Join(c.cfg.ScratchDir, "brain-"+uuid.NewString()+".txt")
	defer os.Remove(outputPath)

	argv := make([]string, len(c.cfg.Command))
	for i, arg := range c.cfg.Command {
		arg = strings.ReplaceAll(arg, placeholderPrompt, prompt)
		arg = strings.ReplaceAll(arg, placeholderOutput, outputPath)
		argv[i] = arg
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	start := time.Now()
	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		slog.Warn("brain agent killed on timeout", "timeout", timeout)
		return "", ErrBrainTimeout
	}
	if err != nil {
		// A non-zero exit can still have written a usable reply; fall
		// through to the output scan and let emptiness decide.
		slog.Debug("brain agent exited with error", "err", err, "elapsed", time.Since(start))
	}

	if data, err := os.ReadFile(outputPath); err == nil {
		if reply := strings.TrimSpace(string(data)); reply != "" {
			return reply, nil
		}
	}
	return stdoutTail(stdout.String(), prompt), nil
}
