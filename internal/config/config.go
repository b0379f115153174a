// Package config provides the configuration schema, loader, and provider registry
// for the sennet voice orchestrator.
package config

import "time"

// LogLevel controls log verbosity for the orchestrator daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler used by the daemon.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Config is the root configuration structure for sennet.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Wake      WakeConfig      `yaml:"wake"`
	Listen    ListenConfig    `yaml:"listen"`
	Speaker   SpeakerConfig   `yaml:"speaker"`
	Speech    SpeechConfig    `yaml:"speech"`
	Panes     PanesConfig     `yaml:"panes"`
	Router    RouterConfig    `yaml:"router"`
	Brain     BrainConfig     `yaml:"brain"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	TaskState TaskStateConfig `yaml:"task_state"`
	Hotkey    HotkeyConfig    `yaml:"hotkey"`
}

// ServerConfig holds logging, metrics, and scratch-space settings for the daemon.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format"`

	// MetricsAddr is the TCP address the metrics/health HTTP server listens on
	// (e.g., ":9109"). Empty disables the server.
	MetricsAddr string `yaml:"metrics_addr"`

	// ScratchDir holds transient artifacts: synthesized audio awaiting playback,
	// screenshots, agent output files. Defaults under the user cache directory.
	ScratchDir string `yaml:"scratch_dir"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	Audio      ProviderEntry `yaml:"audio"`
	Wake       ProviderEntry `yaml:"wake"`
	STT        ProviderEntry `yaml:"stt"`
	TTS        ProviderEntry `yaml:"tts"`
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`
	VoiceID    ProviderEntry `yaml:"voiceid"`

	// Vision selects the multimodal model used to describe screenshots.
	// Consumed directly by the screen-context layer rather than the registry.
	Vision ProviderEntry `yaml:"vision"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "edge").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider. For TTS providers
	// this is the voice identifier (e.g., "en-US-AriaNeural").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallback optionally names a secondary provider used when this one fails
	// repeatedly. Honoured for the stt, tts and llm slots; ignored elsewhere.
	Fallback *ProviderEntry `yaml:"fallback"`
}

// WakeConfig tunes wake-word detection.
type WakeConfig struct {
	// Name is the spoken wake name (e.g., "jarvis"). It is substituted into
	// the end-of-conversation phrase list and used in log lines.
	Name string `yaml:"name"`

	// Threshold is the detector score above which a wake event fires.
	Threshold float32 `yaml:"threshold"`

	// Cooldown suppresses further wake events for this long after one fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// ListenConfig tunes utterance capture during a conversation.
type ListenConfig struct {
	// WaitTimeout is how long to wait for speech to begin before the listen
	// attempt is abandoned.
	WaitTimeout time.Duration `yaml:"wait_timeout"`

	// PhraseLimit caps the length of a single utterance.
	PhraseLimit time.Duration `yaml:"phrase_limit"`

	// Pause is the silence duration that ends an utterance.
	Pause time.Duration `yaml:"pause"`
}

// SpeakerConfig tunes optional speaker verification.
type SpeakerConfig struct {
	// ProfilePath is the enrolled voiceprint location. Empty means the default
	// under the user cache directory. A missing file disables verification.
	ProfilePath string `yaml:"profile_path"`

	// Threshold is the minimum cosine similarity to accept an utterance.
	Threshold float64 `yaml:"threshold"`
}

// SpeechConfig tunes audio playback and the phrase cache.
type SpeechConfig struct {
	// Player is the audio player argv; the file path is appended.
	Player []string `yaml:"player"`

	// CacheDir holds pre-synthesized canned phrases. Empty means the default
	// under the user cache directory.
	CacheDir string `yaml:"cache_dir"`
}

// PanesConfig tunes tmux pane monitoring and spoken alerts.
type PanesConfig struct {
	// Watch lists the tmux window indexes to monitor at startup.
	Watch []int `yaml:"watch"`

	// PollInterval is the pane sampling period.
	PollInterval time.Duration `yaml:"poll_interval"`

	// CaptureLines is how many trailing lines each sample captures.
	CaptureLines int `yaml:"capture_lines"`

	// StalledFactor multiplies PollInterval to decide when an unchanged
	// working pane is re-examined for a missed completion.
	StalledFactor int `yaml:"stalled_factor"`

	// CompletionWindow deduplicates completion alerts per window.
	CompletionWindow time.Duration `yaml:"completion_window"`

	// ErrorWindow deduplicates error alerts per window.
	ErrorWindow time.Duration `yaml:"error_window"`

	// StatusBar enables the tmux status-right conversation indicator.
	StatusBar bool `yaml:"status_bar"`
}

// RouterConfig tunes voice command routing.
type RouterConfig struct {
	// Agents lists coding-agent names recognised in "tell <agent> to ..."
	// commands and matched against tmux window names.
	Agents []string `yaml:"agents"`
}

// BrainConfig describes the heavyweight agent subprocess.
type BrainConfig struct {
	// Command is the agent argv. The placeholders {prompt} and {output} are
	// replaced with the assembled prompt and the reply file path.
	Command []string `yaml:"command"`

	// QuickTimeout bounds short factual requests.
	QuickTimeout time.Duration `yaml:"quick_timeout"`

	// FullTimeout bounds requests that carry screen context and conversation
	// history.
	FullTimeout time.Duration `yaml:"full_timeout"`

	// HistorySize is how many recent exchanges are kept for prompt assembly.
	HistorySize int `yaml:"history_size"`

	// QuickWordMax is the word count at or below which a request without
	// action keywords takes the quick path.
	QuickWordMax int `yaml:"quick_word_max"`
}

// KnowledgeConfig holds settings for the semantic retrieval layer.
type KnowledgeConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the pgvector store.
	// Empty disables the knowledge base.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension of the embeddings column.
	// Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// TopK is how many results a retrieval query returns.
	TopK int `yaml:"top_k"`

	// MaxDistance is the cosine distance above which a result is considered
	// irrelevant and discarded by the answer tier.
	MaxDistance float64 `yaml:"max_distance"`
}

// TaskStateConfig connects the daemon to the task-state service.
type TaskStateConfig struct {
	// PostgresDSN backs the task-state store when this process serves it.
	PostgresDSN string `yaml:"postgres_dsn"`

	// InstanceID is the identity the daemon heartbeats under.
	InstanceID string `yaml:"instance_id"`

	// Command is the argv used to spawn the task-state MCP server for the
	// daemon's own client connection. Empty disables the client.
	Command []string `yaml:"command"`
}

// HotkeyConfig tunes the push-to-talk sentinel file watcher.
type HotkeyConfig struct {
	// SignalPath is the sentinel file an external hotkey binding touches.
	// Empty means the default under the user cache directory.
	SignalPath string `yaml:"signal_path"`

	// PollInterval is how often the sentinel path is checked.
	PollInterval time.Duration `yaml:"poll_interval"`
}
