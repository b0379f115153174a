// Package orchestrator drives the wake-to-speech conversation loop. A wake
// event opens a turn; the turn listens, verifies the speaker, routes the
// utterance through the tiered thinking path, and speaks the reply, looping
// until an end phrase or two consecutive empty listens close it. Pane
// alerts interleave between turns but never interrupt one.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/attercap/sennet/internal/brain"
	"github.com/attercap/sennet/internal/llm"
	"github.com/attercap/sennet/internal/route"
	"github.com/attercap/sennet/internal/speech"
	"github.com/attercap/sennet/internal/transcript"
	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/knowledge"
)

// State is the conversation phase. Transitions are linear within a turn:
// IDLE -> LISTENING -> THINKING -> SPEAKING -> LISTENING, back to IDLE when
// the turn ends.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// Default listen window per spoken exchange.
var defaultListen = audio.ClipParams{
	WaitTimeout: 5 * time.Second,
	PhraseLimit: 15 * time.Second,
	Pause:       time.Second,
}

// Alert dedup buckets. Repeated identical transitions inside a bucket are
// spoken once.
const (
	completionDedup = 30 * time.Second
	errorDedup      = 60 * time.Second
)

// Knowledge retrieval defaults for the answer-over-notes tier.
const (
	defaultKnowledgeTopK    = 3
	defaultKnowledgeMaxDist = 1.5
)

// Speaker plays replies and canned phrases. internal/speech's Engine
// satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	PlayCached(key string)
	Stop()
}

// Listener records one utterance clip.
type Listener interface {
	ReadClip(ctx context.Context, p audio.ClipParams) (audio.Clip, error)
}

// Transcriber turns a clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}

// Verifier screens clips against the enrolled speaker profile. Optional;
// when nil every clip is accepted.
type Verifier interface {
	Verify(ctx context.Context, clip audio.Clip) (bool, float64, error)
	Enrolled() bool
}

// Corrector fixes transcription mishears of known names. Optional;
// internal/transcript's CorrectionPipeline satisfies it.
type Corrector interface {
	Correct(ctx context.Context, text string, names []string) (*transcript.CorrectedTranscript, error)
}

// Assistant is the local-model tier. *llm.Client satisfies it.
type Assistant interface {
	Available(ctx context.Context) bool
	ClassifyIntent(ctx context.Context, text string) llm.Intent
	QuickAnswer(ctx context.Context, text string) (string, bool)
	AnswerOver(ctx context.Context, question string, snippets []string) (string, bool)
}

// Router is the fast pattern tier. *route.FastRouter satisfies it.
type Router interface {
	Route(ctx context.Context, text string) (route.Result, error)
}

// Brain is the heavyweight tier. *brain.Client satisfies it.
type Brain interface {
	Ask(ctx context.Context, utterance string) (string, error)
	ClearHistory()
}

// Marker resolves pane transitions against recorded assignments.
// *route.TaskRouter satisfies it.
type Marker interface {
	MarkCompleted(window int) (route.Assignment, bool)
	MarkErrored(window int) (route.Assignment, bool)
}

// Status mirrors the conversation state into the tmux status bar.
// *panes.StatusBar satisfies it.
type Status interface {
	Show(ctx context.Context, state string)
	Clear(ctx context.Context)
}

// Deps collects the orchestrator's collaborators. Speaker, Listener and
// Transcriber are required; everything else degrades gracefully when nil.
type Deps struct {
	Speaker     Speaker
	Listener    Listener
	Transcriber Transcriber
	Verifier    Verifier
	Corrector   Corrector
	Assistant   Assistant
	Router      Router
	Brain       Brain
	Marker      Marker
	Status      Status
	Knowledge   knowledge.Store

	// ResumeWake rearms the wake gate when a conversation ends. Called
	// exactly once per turn.
	ResumeWake func()
}

// Orchestrator owns the conversation state machine. One turn runs at a
// time; wake events during a turn play the busy phrase and return.
type Orchestrator struct {
	deps Deps

	wakeName     string
	listen       audio.ClipParams
	knowTopK     int
	knowMaxDist  float64
	correctNames []string
	now          func() time.Time

	// Alert dedup spans. Guarded by mu so hot reload can adjust them.
	completionSpan time.Duration
	errorSpan      time.Duration

	mu       sync.Mutex
	state    State
	inTurn   bool
	lastSaid map[alertKey]int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWakeName sets the assistant name used in end-phrase matching.
func WithWakeName(name string) Option {
	return func(o *Orchestrator) { o.wakeName = name }
}

// WithListenParams overrides the per-exchange listen window.
func WithListenParams(p audio.ClipParams) Option {
	return func(o *Orchestrator) { o.listen = p }
}

// WithKnowledgePolicy tunes retrieval for the answer-over-notes tier.
func WithKnowledgePolicy(topK int, maxDistance float64) Option {
	return func(o *Orchestrator) {
		if topK > 0 {
			o.knowTopK = topK
		}
		if maxDistance > 0 {
			o.knowMaxDist = maxDistance
		}
	}
}

// WithCorrectionNames sets the vocabulary the transcript corrector snaps
// mishears onto.
func WithCorrectionNames(names []string) Option {
	return func(o *Orchestrator) { o.correctNames = names }
}

// WithAlertWindows overrides the per-window alert dedup spans.
func WithAlertWindows(completion, errored time.Duration) Option {
	return func(o *Orchestrator) {
		if completion > 0 {
			o.completionSpan = completion
		}
		if errored > 0 {
			o.errorSpan = errored
		}
	}
}

// WithClock injects a clock for alert dedup tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator. The required deps are checked up front so a
// miswired daemon fails at startup rather than on the first wake.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Speaker == nil || deps.Listener == nil || deps.Transcriber == nil {
		return nil, errors.New("orchestrator: speaker, listener and transcriber are required")
	}
	o := &Orchestrator{
		deps:           deps,
		wakeName:       "sennet",
		listen:         defaultListen,
		knowTopK:       defaultKnowledgeTopK,
		knowMaxDist:    defaultKnowledgeMaxDist,
		completionSpan: completionDedup,
		errorSpan:      errorDedup,
		now:            time.Now,
		lastSaid:       map[alertKey]int64{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the current conversation phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(ctx context.Context, s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.deps.Status != nil {
		if s == StateIdle {
			o.deps.Status.Clear(ctx)
		} else {
			o.deps.Status.Show(ctx, s.String())
		}
	}
}

// HandleWake reacts to a wake event. If a turn is already running it plays
// the busy phrase and returns immediately; otherwise it runs the full
// conversation to completion on the calling goroutine.
func (o *Orchestrator) HandleWake(ctx context.Context) {
	o.mu.Lock()
	if o.inTurn {
		o.mu.Unlock()
		o.deps.Speaker.PlayCached(speech.KeyBusy)
		return
	}
	o.inTurn = true
	o.mu.Unlock()

	o.runTurn(ctx)
}

// runTurn is one complete conversation: listen, think, speak, repeat.
func (o *Orchestrator) runTurn(ctx context.Context) {
	var exchanges []exchange
	start := o.now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("conversation turn panicked", "panic", r)
		}
		o.endTurn(ctx, exchanges, start)
	}()

	o.setState(ctx, StateListening)
	o.deps.Speaker.PlayCached(speech.KeyListening)

	emptyListens := 0
	for ctx.Err() == nil {
		text, outcome := o.listenOnce(ctx)
		switch outcome {
		case listenEmpty:
			emptyListens++
			if emptyListens >= 2 {
				slog.Info("conversation ended on silence")
				return
			}
			continue
		case listenRejected:
			// An unenrolled voice in range. Discard without burning one of
			// the silence strikes.
			continue
		case listenFatal:
			return
		}
		emptyListens = 0

		if isEndPhrase(text, o.wakeName) {
			slog.Info("conversation ended on phrase", "text", text)
			return
		}

		o.setState(ctx, StateThinking)
		reply := o.think(ctx, text)
		exchanges = append(exchanges, exchange{user: text, reply: reply})

		if reply != "" {
			o.setState(ctx, StateSpeaking)
			if err := o.deps.Speaker.Speak(ctx, reply); err != nil {
				slog.Warn("speaking reply failed", "err", err)
			}
		}
		o.setState(ctx, StateListening)
	}
}

// endTurn releases the turn: status cleared, wake rearmed, brain history
// dropped, and the conversation summarised into the knowledge base. Every
// step is best effort.
func (o *Orchestrator) endTurn(ctx context.Context, exchanges []exchange, start time.Time) {
	o.setState(ctx, StateIdle)

	if o.deps.Brain != nil {
		o.deps.Brain.ClearHistory()
	}
	if o.deps.ResumeWake != nil {
		o.deps.ResumeWake()
	}

	o.mu.Lock()
	o.inTurn = false
	o.mu.Unlock()

	slog.Info("conversation closed", "exchanges", len(exchanges), "elapsed", o.now().Sub(start))

	if len(exchanges) > 0 && o.deps.Knowledge != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := o.deps.Knowledge.SaveConversation(saveCtx, o.summarize(saveCtx, exchanges), ""); err != nil {
			slog.Warn("saving conversation failed", "err", err)
		}
	}
}

type exchange struct {
	user  string
	reply string
}

// summarize condenses the turn for storage. The local model writes the
// summary when it is up; otherwise the raw transcript is stored.
func (o *Orchestrator) summarize(ctx context.Context, exchanges []exchange) string {
	var b strings.Builder
	for _, ex := range exchanges {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.user, ex.reply)
	}
	transcript := b.String()

	if o.deps.Assistant != nil && o.deps.Assistant.Available(ctx) {
		prompt := "Summarize this conversation in two sentences, noting any tasks assigned or decisions made:\n\n" + transcript
		if summary, ok := o.deps.Assistant.QuickAnswer(ctx, prompt); ok {
			return summary
		}
	}
	return strings.TrimSpace(transcript)
}

type listenOutcome int

const (
	listenOK listenOutcome = iota
	listenEmpty
	listenRejected
	listenFatal
)

// listenOnce records and transcribes one utterance. Timeouts and noise
// count as empty; a failed speaker check is rejected; audio-device errors
// are fatal to the turn.
func (o *Orchestrator) listenOnce(ctx context.Context) (string, listenOutcome) {
	clip, err := o.deps.Listener.ReadClip(ctx, o.listen)
	switch {
	case errors.Is(err, audio.ErrListenTimeout):
		return "", listenEmpty
	case err != nil:
		slog.Error("listen failed", "err", err)
		return "", listenFatal
	}

	if o.deps.Verifier != nil && o.deps.Verifier.Enrolled() {
		ok, score, err := o.deps.Verifier.Verify(ctx, clip)
		if err != nil {
			slog.Warn("speaker check errored, accepting clip", "err", err)
		} else if !ok {
			slog.Info("speaker rejected", "score", score)
			return "", listenRejected
		}
	}

	text, err := o.deps.Transcriber.Transcribe(ctx, clip)
	if err != nil {
		slog.Warn("transcription failed", "err", err)
		return "", listenEmpty
	}
	text = strings.TrimSpace(text)
	if text == "" || speech.IsNoise(text) {
		return "", listenEmpty
	}

	if o.deps.Corrector != nil {
		if corrected, err := o.deps.Corrector.Correct(ctx, text, o.correctNames); err == nil && corrected != nil {
			text = corrected.Corrected
		}
	}
	return text, listenOK
}

// think routes an utterance through the tiers: local-model quick paths
// first, then fast patterns, then the heavyweight brain.
func (o *Orchestrator) think(ctx context.Context, text string) string {
	if o.deps.Assistant != nil && o.deps.Assistant.Available(ctx) {
		switch o.deps.Assistant.ClassifyIntent(ctx, text) {
		case llm.IntentSimple:
			if reply, ok := o.deps.Assistant.QuickAnswer(ctx, text); ok {
				return reply
			}
		case llm.IntentKnowledge:
			if reply, ok := o.answerFromKnowledge(ctx, text); ok {
				return reply
			}
		}
	}

	if o.deps.Router != nil {
		result, err := o.deps.Router.Route(ctx, text)
		switch {
		case err == nil:
			return result.Reply
		case !errors.Is(err, route.ErrNoRoute):
			slog.Warn("fast route failed", "err", err)
			return replyTmuxFailed
		}
	}

	if o.deps.Brain == nil {
		return replyNoTier
	}
	reply, err := o.deps.Brain.Ask(ctx, text)
	switch {
	case errors.Is(err, brain.ErrBrainTimeout):
		return replyBrainTimeout
	case err != nil:
		slog.Error("brain failed", "err", err)
		return replyBrainFailed
	}
	return reply
}

// answerFromKnowledge grounds the reply on retrieved notes. It reports
// false when nothing close enough was found, letting the utterance fall
// through to the next tier.
func (o *Orchestrator) answerFromKnowledge(ctx context.Context, question string) (string, bool) {
	if o.deps.Knowledge == nil {
		return "", false
	}
	results, err := o.deps.Knowledge.Search(ctx, question, o.knowTopK)
	if err != nil {
		slog.Warn("knowledge search failed", "err", err)
		return "", false
	}
	if len(results) == 0 || results[0].Distance >= o.knowMaxDist {
		return "", false
	}

	snippets := make([]string, 0, len(results))
	for _, r := range results {
		if r.Distance < o.knowMaxDist {
			snippets = append(snippets, r.Document)
		}
	}
	return o.deps.Assistant.AnswerOver(ctx, question, snippets)
}
