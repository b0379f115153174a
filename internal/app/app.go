// Package app wires all sennet subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the wake loop, pane monitor, and supporting
// goroutines, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithKnowledgeStore,
// WithStateReporter, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/attercap/sennet/internal/brain"
	"github.com/attercap/sennet/internal/config"
	"github.com/attercap/sennet/internal/health"
	assist "github.com/attercap/sennet/internal/llm"
	"github.com/attercap/sennet/internal/observe"
	"github.com/attercap/sennet/internal/orchestrator"
	"github.com/attercap/sennet/internal/panes"
	"github.com/attercap/sennet/internal/route"
	"github.com/attercap/sennet/internal/screen"
	"github.com/attercap/sennet/internal/speech"
	"github.com/attercap/sennet/internal/taskstate"
	"github.com/attercap/sennet/internal/transcript"
	"github.com/attercap/sennet/internal/transcript/llmcorrect"
	"github.com/attercap/sennet/internal/transcript/phonetic"
	"github.com/attercap/sennet/internal/wake"
	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/knowledge"
	knowpg "github.com/attercap/sennet/pkg/knowledge/postgres"
	"github.com/attercap/sennet/pkg/provider/embeddings"
	llmprov "github.com/attercap/sennet/pkg/provider/llm"
	"github.com/attercap/sennet/pkg/provider/stt"
	"github.com/attercap/sennet/pkg/provider/tts"
	"github.com/attercap/sennet/pkg/provider/voiceid"
	wakeprov "github.com/attercap/sennet/pkg/provider/wake"
)

// heartbeatInterval is how often the daemon reports itself to the
// task-state service.
const heartbeatInterval = 30 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Audio      audio.Source
	Wake       wakeprov.Detector
	STT        stt.Transcriber
	TTS        tts.Synthesizer
	LLM        llmprov.Provider
	Embeddings embeddings.Provider
	VoiceID    voiceid.Embedder
}

// StateReporter is the slice of the task-state client the daemon uses to
// report its own liveness. *taskstate.Client satisfies it.
type StateReporter interface {
	Heartbeat(ctx context.Context, instanceID string) error
	SetInstanceState(ctx context.Context, state taskstate.InstanceState) error
	Close() error
}

// App owns all subsystem lifetimes and orchestrates the sennet voice pipeline.
type App struct {
	cfg       *config.Config
	cfgPath   string
	providers *Providers

	// Subsystems. Initialised in New, torn down in Shutdown.
	engine      *speech.Engine
	transcriber *speech.Transcriber
	verifier    *speech.Verifier
	gate        *wake.Gate
	tmux        *panes.Tmux
	monitor     *panes.Monitor
	statusBar   *panes.StatusBar
	taskRouter  *route.TaskRouter
	fastRouter  *route.FastRouter
	assistant   *assist.Client
	corrector   *transcript.CorrectionPipeline
	know        knowledge.Store
	brain       *brain.Client
	state       StateReporter
	orch        *orchestrator.Orchestrator
	health      *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithKnowledgeStore injects a knowledge store instead of connecting to
// PostgreSQL from config.
func WithKnowledgeStore(s knowledge.Store) Option {
	return func(a *App) { a.know = s }
}

// WithStateReporter injects a task-state reporter instead of spawning the
// configured server command.
func WithStateReporter(r StateReporter) Option {
	return func(a *App) { a.state = r }
}

// WithTmux injects a tmux wrapper, typically one with a stubbed runner.
func WithTmux(t *panes.Tmux) Option {
	return func(a *App) { a.tmux = t }
}

// WithConfigFile tells Run to watch path for hot-reloadable changes.
func WithConfigFile(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
//
// Audio, Wake, STT, and TTS providers are required; everything else degrades
// to a smaller assistant when absent.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Audio == nil || providers.Wake == nil ||
		providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: audio, wake, stt and tts providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Speech engine + transcription ─────────────────────────────────
	a.initSpeech()

	// ── 2. Wake gate ─────────────────────────────────────────────────────
	a.gate = wake.NewGate(providers.Wake, cfg.Wake.Threshold, wake.WithCooldown(cfg.Wake.Cooldown))

	// ── 3. Pane monitoring ───────────────────────────────────────────────
	a.initPanes(ctx)

	// ── 4. Command routing ───────────────────────────────────────────────
	a.taskRouter = route.NewTaskRouter(a.tmux)
	a.fastRouter = route.NewFastRouter(a.taskRouter, cfg.Router.Agents)

	// ── 5. Local assistant + transcript correction ───────────────────────
	a.initAssistant()

	// ── 6. Knowledge base ────────────────────────────────────────────────
	if err := a.initKnowledge(ctx); err != nil {
		return nil, fmt.Errorf("app: init knowledge: %w", err)
	}

	// ── 7. Brain subprocess ──────────────────────────────────────────────
	if err := a.initBrain(); err != nil {
		return nil, fmt.Errorf("app: init brain: %w", err)
	}

	// ── 8. Task-state client ─────────────────────────────────────────────
	if err := a.initState(ctx); err != nil {
		return nil, fmt.Errorf("app: init task state: %w", err)
	}

	// ── 9. Orchestrator ──────────────────────────────────────────────────
	if err := a.initOrchestrator(); err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}

	// ── 10. Health checks ────────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSpeech builds the playback engine, the transcription wrapper, and the
// optional speaker verifier.
func (a *App) initSpeech() {
	engineOpts := []speech.EngineOption{}
	if voice := a.cfg.Providers.TTS.Model; voice != "" {
		engineOpts = append(engineOpts, speech.WithVoice(voice))
	}
	if len(a.cfg.Speech.Player) > 0 {
		engineOpts = append(engineOpts, speech.WithPlayer(a.cfg.Speech.Player))
	}
	if a.cfg.Speech.CacheDir != "" {
		engineOpts = append(engineOpts, speech.WithCacheDir(a.cfg.Speech.CacheDir))
	}
	engineOpts = append(engineOpts, speech.WithCaptureGate(a.providers.Audio))
	a.engine = speech.NewEngine(a.providers.TTS, engineOpts...)
	a.closers = append(a.closers, func() error {
		a.engine.Stop()
		return nil
	})

	a.transcriber = speech.NewTranscriber(a.providers.STT)

	if a.providers.VoiceID != nil {
		path := a.cfg.Speaker.ProfilePath
		if path == "" {
			if root, err := config.CacheRoot(); err == nil {
				path = filepath.Join(root, speech.DefaultProfileName)
			} else {
				slog.Warn("no cache root; speaker verification disabled", "err", err)
			}
		}
		if path != "" {
			a.verifier = speech.NewVerifier(a.providers.VoiceID, path,
				speech.WithThreshold(a.cfg.Speaker.Threshold))
		}
	}
}

// initPanes builds the tmux wrapper, the pane monitor, and the status bar,
// then registers the configured initial watch list.
func (a *App) initPanes(ctx context.Context) {
	if a.tmux == nil {
		a.tmux = panes.NewTmux()
	}
	a.monitor = panes.NewMonitor(a.tmux,
		panes.WithPollInterval(a.cfg.Panes.PollInterval),
		panes.WithCaptureLines(a.cfg.Panes.CaptureLines),
		panes.WithStalledFactor(a.cfg.Panes.StalledFactor),
	)
	a.statusBar = panes.NewStatusBar(a.tmux, a.cfg.Panes.StatusBar)

	for _, w := range a.cfg.Panes.Watch {
		if err := a.monitor.Watch(ctx, w); err != nil {
			slog.Warn("cannot watch window", "window", w, "err", err)
		}
	}
}

// initAssistant creates the local-model tier and the transcript correction
// pipeline when an LLM provider is configured.
func (a *App) initAssistant() {
	matcher := phonetic.New()
	pipelineOpts := []transcript.PipelineOption{transcript.WithPhoneticMatcher(matcher)}

	if a.providers.LLM != nil {
		a.assistant = assist.NewClient(a.providers.LLM)
		pipelineOpts = append(pipelineOpts, transcript.WithLLMCorrector(llmcorrect.New(a.providers.LLM)))
	}

	a.corrector = transcript.NewPipeline(pipelineOpts...)
}

// initKnowledge connects the pgvector store when a DSN is configured and no
// store was injected.
func (a *App) initKnowledge(ctx context.Context) error {
	if a.know != nil {
		return nil
	}
	dsn := a.cfg.Knowledge.PostgresDSN
	if dsn == "" {
		slog.Info("knowledge base disabled; no postgres dsn")
		return nil
	}
	if a.providers.Embeddings == nil {
		return errors.New("knowledge.postgres_dsn set but no embeddings provider configured")
	}

	store, err := knowpg.NewStore(ctx, dsn, a.providers.Embeddings)
	if err != nil {
		return err
	}
	a.know = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initBrain builds the heavyweight agent client with screen context and
// knowledge retrieval attached.
func (a *App) initBrain() error {
	if len(a.cfg.Brain.Command) == 0 {
		slog.Info("brain disabled; no command configured")
		return nil
	}

	desktop := screen.NewDesktop(screen.WithScratchDir(a.cfg.Server.ScratchDir))
	var vision screen.Describer
	if v := a.cfg.Providers.Vision; v.Name != "" {
		vision = screen.NewVision(v.APIKey, v.Model, v.BaseURL)
	}

	brainOpts := []brain.Option{
		brain.WithScreen(screen.NewContext(desktop, vision)),
	}
	if a.know != nil {
		brainOpts = append(brainOpts, brain.WithRetriever(knowledgeRetriever{a.know}))
	}

	client, err := brain.NewClient(brain.Config{
		Command:      a.cfg.Brain.Command,
		ScratchDir:   a.cfg.Server.ScratchDir,
		QuickTimeout: a.cfg.Brain.QuickTimeout,
		FullTimeout:  a.cfg.Brain.FullTimeout,
		HistorySize:  a.cfg.Brain.HistorySize,
		QuickWordMax: a.cfg.Brain.QuickWordMax,
	}, brainOpts...)
	if err != nil {
		return err
	}
	a.brain = client
	return nil
}

// initState dials the task-state server so the daemon can heartbeat.
func (a *App) initState(ctx context.Context) error {
	if a.state != nil {
		return nil
	}
	if len(a.cfg.TaskState.Command) == 0 {
		slog.Info("task-state reporting disabled; no server command")
		return nil
	}

	client, err := taskstate.Dial(ctx, a.cfg.TaskState.Command)
	if err != nil {
		return err
	}
	a.state = client
	a.closers = append(a.closers, client.Close)
	return nil
}

// initOrchestrator assembles the conversation state machine from the
// subsystems built so far. Optional deps are only assigned when their
// concrete value exists so nil checks inside the orchestrator stay honest.
func (a *App) initOrchestrator() error {
	deps := orchestrator.Deps{
		Speaker:     a.engine,
		Listener:    audio.NewSegmenter(a.providers.Audio),
		Transcriber: a.transcriber,
		Router:      a.fastRouter,
		Marker:      a.taskRouter,
		Status:      a.statusBar,
		Knowledge:   a.know,
		ResumeWake:  a.gate.Reset,
	}
	if a.verifier != nil {
		deps.Verifier = a.verifier
	}
	if a.corrector != nil {
		deps.Corrector = a.corrector
	}
	if a.assistant != nil {
		deps.Assistant = a.assistant
	}
	if a.brain != nil {
		deps.Brain = a.brain
	}

	names := append([]string{a.cfg.Wake.Name}, a.cfg.Router.Agents...)
	orch, err := orchestrator.New(deps,
		orchestrator.WithWakeName(a.cfg.Wake.Name),
		orchestrator.WithListenParams(audio.ClipParams{
			WaitTimeout: a.cfg.Listen.WaitTimeout,
			PhraseLimit: a.cfg.Listen.PhraseLimit,
			Pause:       a.cfg.Listen.Pause,
		}),
		orchestrator.WithKnowledgePolicy(a.cfg.Knowledge.TopK, a.cfg.Knowledge.MaxDistance),
		orchestrator.WithAlertWindows(a.cfg.Panes.CompletionWindow, a.cfg.Panes.ErrorWindow),
		orchestrator.WithCorrectionNames(names),
	)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

// initHealth registers readiness checks for every external dependency the
// configuration enables.
func (a *App) initHealth() {
	checkers := []health.Checker{health.TmuxChecker(a.tmux)}
	if a.providers.LLM != nil {
		checkers = append(checkers, health.LLMChecker(a.providers.LLM))
	}
	if pg, ok := a.know.(*knowpg.Store); ok {
		checkers = append(checkers, health.DatabaseChecker("knowledge", pg))
	}
	if len(a.cfg.Brain.Command) > 0 {
		checkers = append(checkers, health.BinaryChecker("brain", a.cfg.Brain.Command[0]))
	}
	a.health = health.New(checkers...)
}

// Orchestrator exposes the conversation state machine, mainly for tests.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the daemon's goroutines and blocks until ctx is cancelled or a
// loop fails: the wake loop, the pane monitor and its alert consumer, the
// hotkey watcher, the heartbeat reporter, the metrics/health HTTP server,
// and the config hot-reload watcher.
func (a *App) Run(ctx context.Context) error {
	a.engine.Precache(ctx, speech.CannedPhrases)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.orch.RunWakeLoop(ctx, a.providers.Audio, a.gate)
		if errors.Is(err, audio.ErrSourceClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		a.monitor.Start(ctx)
		return nil
	})

	g.Go(func() error {
		a.orch.ConsumeEvents(ctx, a.monitor.Events())
		return nil
	})

	g.Go(func() error {
		a.orch.WatchHotkey(ctx, a.hotkeyPath(), a.cfg.Hotkey.PollInterval)
		return nil
	})

	if a.state != nil {
		g.Go(func() error {
			a.heartbeatLoop(ctx)
			return nil
		})
	}

	if addr := a.cfg.Server.MetricsAddr; addr != "" {
		g.Go(func() error {
			return a.serveMetrics(ctx, addr)
		})
	}

	if a.cfgPath != "" {
		watcher, err := config.NewWatcher(a.cfgPath, a.applyConfigChange)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("sennet running",
		"wake_name", a.cfg.Wake.Name,
		"watched_windows", a.monitor.Watched(),
		"brain", len(a.cfg.Brain.Command) > 0,
		"knowledge", a.know != nil,
	)
	return g.Wait()
}

// hotkeyPath resolves the push-to-talk sentinel location.
func (a *App) hotkeyPath() string {
	if a.cfg.Hotkey.SignalPath != "" {
		return a.cfg.Hotkey.SignalPath
	}
	root, err := config.CacheRoot()
	if err != nil {
		slog.Warn("no cache root; hotkey disabled", "err", err)
		return ""
	}
	return filepath.Join(root, "wake-signal")
}

// heartbeatLoop reports the daemon's own instance state so it appears next
// to the agent instances it supervises.
func (a *App) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	report := func() {
		status := taskstate.InstanceIdle
		if a.orch.State() != orchestrator.StateIdle {
			status = taskstate.InstanceBusy
		}
		err := a.state.SetInstanceState(ctx, taskstate.InstanceState{
			InstanceID: a.cfg.TaskState.InstanceID,
			Status:     status,
			Metadata:   map[string]any{"role": "voice-orchestrator"},
		})
		if err != nil {
			slog.Warn("heartbeat failed", "err", err)
		}
	}

	report()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report()
		}
	}
}

// serveMetrics runs the metrics and health HTTP server until ctx is done.
func (a *App) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.health.Register(mux)

	srv := &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: metrics server: %w", err)
	}
}

// applyConfigChange applies the hot-reloadable subset of a config edit.
// Provider or pipeline changes require a restart and are only logged.
func (a *App) applyConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	for _, w := range d.PanesAdded {
		if err := a.monitor.Watch(context.Background(), w); err != nil {
			slog.Warn("reload: cannot watch window", "window", w, "err", err)
		} else {
			slog.Info("reload: watching window", "window", w)
		}
	}
	for _, w := range d.PanesRemoved {
		a.monitor.Unwatch(w)
		slog.Info("reload: unwatched window", "window", w)
	}

	if d.WakeThresholdChanged {
		a.gate.SetThreshold(d.NewWakeThreshold)
		slog.Info("reload: wake threshold", "threshold", d.NewWakeThreshold)
	}

	if d.AlertWindowsChanged {
		a.orch.SetAlertWindows(d.NewCompletionWindow, d.NewErrorWindow)
		slog.Info("reload: alert windows",
			"completion", d.NewCompletionWindow, "error", d.NewErrorWindow)
	}

	if d.LogLevelChanged {
		slog.Info("reload: log level change requires restart", "level", d.NewLogLevel)
	}
	if d.RestartRequired {
		slog.Warn("reload: provider or pipeline changes require a restart")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// knowledgeRetriever adapts the knowledge store to the brain's snippet
// interface.
type knowledgeRetriever struct {
	store knowledge.Store
}

func (r knowledgeRetriever) Retrieve(ctx context.Context, query string, k int) ([]brain.Snippet, error) {
	results, err := r.store.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	snippets := make([]brain.Snippet, 0, len(results))
	for _, res := range results {
		snippets = append(snippets, brain.Snippet{Document: res.Document, Distance: res.Distance})
	}
	return snippets, nil
}
