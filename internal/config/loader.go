package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio":      {"malgo"},
	"wake":       {"openwakeword"},
	"stt":        {"whisper"},
	"tts":        {"edge", "coqui"},
	"llm":        {"ollama", "anyllm", "openai"},
	"embeddings": {"ollama", "openai"},
	"voiceid":    {"onnx"},
	"vision":     {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued tunables with their documented defaults.
// Paths left empty are resolved against the user cache directory by the caller
// (see [CacheRoot]).
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogText
	}
	if cfg.Wake.Name == "" {
		cfg.Wake.Name = "jarvis"
	}
	if cfg.Wake.Threshold == 0 {
		cfg.Wake.Threshold = 0.35
	}
	if cfg.Wake.Cooldown == 0 {
		cfg.Wake.Cooldown = 2 * time.Second
	}
	if cfg.Listen.WaitTimeout == 0 {
		cfg.Listen.WaitTimeout = 5 * time.Second
	}
	if cfg.Listen.PhraseLimit == 0 {
		cfg.Listen.PhraseLimit = 15 * time.Second
	}
	if cfg.Listen.Pause == 0 {
		cfg.Listen.Pause = time.Second
	}
	if cfg.Speaker.Threshold == 0 {
		cfg.Speaker.Threshold = 0.65
	}
	if len(cfg.Speech.Player) == 0 {
		cfg.Speech.Player = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}
	}
	if cfg.Panes.PollInterval == 0 {
		cfg.Panes.PollInterval = 2500 * time.Millisecond
	}
	if cfg.Panes.CaptureLines == 0 {
		cfg.Panes.CaptureLines = 30
	}
	if cfg.Panes.StalledFactor == 0 {
		cfg.Panes.StalledFactor = 2
	}
	if cfg.Panes.CompletionWindow == 0 {
		cfg.Panes.CompletionWindow = 30 * time.Second
	}
	if cfg.Panes.ErrorWindow == 0 {
		cfg.Panes.ErrorWindow = time.Minute
	}
	if len(cfg.Router.Agents) == 0 {
		cfg.Router.Agents = []string{"claude", "gemini", "codex", "opencode"}
	}
	if cfg.Brain.QuickTimeout == 0 {
		cfg.Brain.QuickTimeout = 15 * time.Second
	}
	if cfg.Brain.FullTimeout == 0 {
		cfg.Brain.FullTimeout = 60 * time.Second
	}
	if cfg.Brain.HistorySize == 0 {
		cfg.Brain.HistorySize = 10
	}
	if cfg.Brain.QuickWordMax == 0 {
		cfg.Brain.QuickWordMax = 12
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = 4
	}
	if cfg.Knowledge.MaxDistance == 0 {
		cfg.Knowledge.MaxDistance = 1.5
	}
	if cfg.TaskState.InstanceID == "" {
		cfg.TaskState.InstanceID = "voice-orchestrator"
	}
	if cfg.Hotkey.PollInterval == 0 {
		cfg.Hotkey.PollInterval = 500 * time.Millisecond
	}
}

// CacheRoot returns the sennet directory under the user cache directory,
// creating it if needed. Default profile, phrase cache, scratch, and sentinel
// paths all live beneath it.
func CacheRoot() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: user cache dir: %w", err)
	}
	root := filepath.Join(base, "sennet")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("config: create cache root: %w", err)
	}
	return root, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("audio", cfg.Providers.Audio.Name)
	validateProviderName("wake", cfg.Providers.Wake.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if fb := cfg.Providers.STT.Fallback; fb != nil {
		validateProviderName("stt", fb.Name)
	}
	if fb := cfg.Providers.TTS.Fallback; fb != nil {
		validateProviderName("tts", fb.Name)
	}
	if fb := cfg.Providers.LLM.Fallback; fb != nil {
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("voiceid", cfg.Providers.VoiceID.Name)
	validateProviderName("vision", cfg.Providers.Vision.Name)

	// Wake tuning
	if cfg.Wake.Threshold < 0 || cfg.Wake.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %.2f is out of range [0, 1]", cfg.Wake.Threshold))
	}
	if cfg.Wake.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("wake.cooldown must not be negative"))
	}

	// Listen tuning
	if cfg.Listen.Pause >= cfg.Listen.PhraseLimit {
		errs = append(errs, fmt.Errorf("listen.pause %s must be shorter than listen.phrase_limit %s", cfg.Listen.Pause, cfg.Listen.PhraseLimit))
	}

	// Speaker verification
	if cfg.Speaker.Threshold < 0 || cfg.Speaker.Threshold > 1 {
		errs = append(errs, fmt.Errorf("speaker.threshold %.2f is out of range [0, 1]", cfg.Speaker.Threshold))
	}

	// Panes
	seen := make(map[int]int, len(cfg.Panes.Watch))
	for i, w := range cfg.Panes.Watch {
		if w < 0 {
			errs = append(errs, fmt.Errorf("panes.watch[%d] is negative; tmux window indexes start at 0", i))
			continue
		}
		if prev, ok := seen[w]; ok {
			errs = append(errs, fmt.Errorf("panes.watch[%d] window %d is a duplicate of panes.watch[%d]", i, w, prev))
		}
		seen[w] = i
	}
	if cfg.Panes.StalledFactor < 1 {
		errs = append(errs, fmt.Errorf("panes.stalled_factor must be at least 1"))
	}

	// Router agents
	for i, a := range cfg.Router.Agents {
		if strings.TrimSpace(a) == "" {
			errs = append(errs, fmt.Errorf("router.agents[%d] is empty", i))
		}
	}

	// Brain command template
	if len(cfg.Brain.Command) > 0 && !slices.ContainsFunc(cfg.Brain.Command, func(arg string) bool {
		return strings.Contains(arg, "{prompt}")
	}) {
		errs = append(errs, fmt.Errorf("brain.command must contain a {prompt} placeholder"))
	}

	// Provider availability warnings. The daemon degrades rather than refusing
	// to start, and the peripheral CLIs share this config.
	if cfg.Providers.STT.Name == "" || cfg.Providers.TTS.Name == "" {
		slog.Warn("stt or tts provider is not configured; voice conversations will not work")
	}
	if cfg.Providers.Wake.Name == "" {
		slog.Warn("wake provider is not configured; only the hotkey can start a conversation")
	}
	if cfg.Knowledge.PostgresDSN != "" && cfg.Knowledge.EmbeddingDimensions <= 0 {
		slog.Warn("knowledge.postgres_dsn is set but knowledge.embedding_dimensions is not; defaulting to 768")
	}
	if cfg.Knowledge.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, fmt.Errorf("knowledge.postgres_dsn is set but providers.embeddings is not configured"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
