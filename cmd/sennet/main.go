// Command sennet is the hands-free voice orchestrator daemon for a tmux
// developer workstation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/attercap/sennet/internal/app"
	"github.com/attercap/sennet/internal/config"
	"github.com/attercap/sennet/internal/observe"
	"github.com/attercap/sennet/internal/resilience"
	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/audio/miniaudio"
	"github.com/attercap/sennet/pkg/provider/embeddings"
	ollamaembed "github.com/attercap/sennet/pkg/provider/embeddings/ollama"
	oaembed "github.com/attercap/sennet/pkg/provider/embeddings/openai"
	"github.com/attercap/sennet/pkg/provider/llm"
	"github.com/attercap/sennet/pkg/provider/llm/anyllm"
	ollamallm "github.com/attercap/sennet/pkg/provider/llm/ollama"
	oallm "github.com/attercap/sennet/pkg/provider/llm/openai"
	"github.com/attercap/sennet/pkg/provider/stt"
	"github.com/attercap/sennet/pkg/provider/stt/whisper"
	"github.com/attercap/sennet/pkg/provider/tts"
	"github.com/attercap/sennet/pkg/provider/tts/coqui"
	"github.com/attercap/sennet/pkg/provider/tts/edge"
	"github.com/attercap/sennet/pkg/provider/voiceid"
	"github.com/attercap/sennet/pkg/provider/voiceid/onnx"
	wakeprov "github.com/attercap/sennet/pkg/provider/wake"
	"github.com/attercap/sennet/pkg/provider/wake/openwake"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "sennet.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sennet: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sennet: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat))

	slog.Info("sennet starting",
		"version", version,
		"config", *configPath,
		"wake_name", cfg.Wake.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithConfigFile(*configPath))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("daemon ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Audio capture ─────────────────────────────────────────────────────────

	reg.RegisterAudio("malgo", func(entry config.ProviderEntry) (audio.Source, error) {
		return miniaudio.New()
	})

	// ── Wake word ─────────────────────────────────────────────────────────────

	reg.RegisterWake("openwakeword", func(entry config.ProviderEntry) (wakeprov.Detector, error) {
		var opts []openwake.Option
		if entry.Model != "" {
			opts = append(opts, openwake.WithWakeModel(entry.Model))
		}
		if dir := optString(entry.Options, "model_dir"); dir != "" {
			opts = append(opts, openwake.WithModelDir(dir))
		}
		if lib := optString(entry.Options, "shared_library"); lib != "" {
			opts = append(opts, openwake.WithSharedLibrary(lib))
		}
		return openwake.New(opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if threads := optInt(entry.Options, "threads"); threads > 0 {
			opts = append(opts, whisper.WithThreads(threads))
		}
		return whisper.New(entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("edge", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []edge.Option
		if entry.Model != "" {
			opts = append(opts, edge.WithVoice(entry.Model))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, edge.WithOutputFormat(format))
		}
		return edge.New(opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		return ollamallm.New(entry.BaseURL, entry.Model)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// anyllm fans out to whichever backend the "provider" option names
	// (anthropic, gemini, groq, mistral, ...).
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := optString(entry.Options, "provider")
		if backend == "" {
			return nil, errors.New(`anyllm requires options.provider (e.g. "anthropic")`)
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Speaker verification ──────────────────────────────────────────────────

	reg.RegisterVoiceID("onnx", func(entry config.ProviderEntry) (voiceid.Embedder, error) {
		var opts []onnx.Option
		if lib := optString(entry.Options, "shared_library"); lib != "" {
			opts = append(opts, onnx.WithSharedLibrary(lib))
		}
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, onnx.WithDimensions(dims))
		}
		return onnx.New(entry.Model, opts...)
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Audio.Name; name != "" {
		p, err := reg.CreateAudio(cfg.Providers.Audio)
		if err != nil {
			return nil, fmt.Errorf("create audio provider %q: %w", name, err)
		}
		ps.Audio = p
		slog.Info("provider created", "kind", "audio", "name", name)
	}

	if name := cfg.Providers.Wake.Name; name != "" {
		p, err := reg.CreateWake(cfg.Providers.Wake)
		if err != nil {
			return nil, fmt.Errorf("create wake provider %q: %w", name, err)
		}
		ps.Wake = p
		slog.Info("provider created", "kind", "wake", "name", name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		if fb := cfg.Providers.STT.Fallback; fb != nil {
			secondary, err := reg.CreateSTT(*fb)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback provider %q: %w", fb.Name, err)
			}
			group := resilience.NewSTTFallback(p, name, resilience.FallbackConfig{})
			group.AddFallback(fb.Name, secondary)
			ps.STT = group
			slog.Info("stt fallback chain enabled", "primary", name, "fallback", fb.Name)
		}
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = p
		if fb := cfg.Providers.TTS.Fallback; fb != nil {
			secondary, err := reg.CreateTTS(*fb)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback provider %q: %w", fb.Name, err)
			}
			group := resilience.NewTTSFallback(p, name, resilience.FallbackConfig{})
			group.AddFallback(fb.Name, secondary)
			ps.TTS = group
			slog.Info("tts fallback chain enabled", "primary", name, "fallback", fb.Name)
		}
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		if fb := cfg.Providers.LLM.Fallback; fb != nil {
			secondary, err := reg.CreateLLM(*fb)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback provider %q: %w", fb.Name, err)
			}
			group := resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
			group.AddFallback(fb.Name, secondary)
			ps.LLM = group
			slog.Info("llm fallback chain enabled", "primary", name, "fallback", fb.Name)
		}
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	if name := cfg.Providers.VoiceID.Name; name != "" {
		p, err := reg.CreateVoiceID(cfg.Providers.VoiceID)
		if err != nil {
			return nil, fmt.Errorf("create voiceid provider %q: %w", name, err)
		}
		ps.VoiceID = p
		slog.Info("provider created", "kind", "voiceid", "name", name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          sennet — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Audio", cfg.Providers.Audio.Name, "")
	printProvider("Wake", cfg.Providers.Wake.Name, cfg.Wake.Name)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("VoiceID", cfg.Providers.VoiceID.Name, "")
	printProvider("Vision", cfg.Providers.Vision.Name, cfg.Providers.Vision.Model)
	fmt.Printf("║  Watched windows : %-19d ║\n", len(cfg.Panes.Watch))
	if len(cfg.Brain.Command) > 0 {
		fmt.Printf("║  Brain           : %-19s ║\n", trim19(cfg.Brain.Command[0]))
	} else {
		fmt.Printf("║  Brain           : %-19s ║\n", "(disabled)")
	}
	if cfg.Knowledge.PostgresDSN != "" {
		fmt.Printf("║  Knowledge base  : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Knowledge base  : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics         : %-19s ║\n", trim19(cfg.Server.MetricsAddr))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, trim19(value))
}

func trim19(s string) string {
	if len(s) > 19 {
		return s[:16] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a provider Options map. YAML decodes
// whole numbers as int; returns 0 for anything else.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
