package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/attercap/sennet/internal/brain"
	"github.com/attercap/sennet/internal/llm"
	"github.com/attercap/sennet/internal/route"
	"github.com/attercap/sennet/internal/speech"
	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/knowledge"
	knowmock "github.com/attercap/sennet/pkg/knowledge/mock"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	cached []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *fakeSpeaker) PlayCached(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = append(s.cached, key)
}

func (s *fakeSpeaker) Stop() {}

func (s *fakeSpeaker) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// fakeListener returns one scripted outcome per ReadClip call, then
// timeouts forever so turns always terminate.
type fakeListener struct {
	errs []error
	n    int
}

func (l *fakeListener) ReadClip(context.Context, audio.ClipParams) (audio.Clip, error) {
	if l.n >= len(l.errs) {
		return audio.Clip{}, audio.ErrListenTimeout
	}
	err := l.errs[l.n]
	l.n++
	return audio.Clip{Samples: []int16{1}, Rate: 16000}, err
}

// fakeTranscriber returns scripted texts in order.
type fakeTranscriber struct {
	texts []string
	n     int
}

func (t *fakeTranscriber) Transcribe(context.Context, audio.Clip) (string, error) {
	if t.n >= len(t.texts) {
		return "", nil
	}
	text := t.texts[t.n]
	t.n++
	return text, nil
}

type fakeVerifier struct {
	accept []bool
	n      int
}

func (v *fakeVerifier) Enrolled() bool { return true }

func (v *fakeVerifier) Verify(context.Context, audio.Clip) (bool, float64, error) {
	if v.n >= len(v.accept) {
		return true, 0.9, nil
	}
	ok := v.accept[v.n]
	v.n++
	if ok {
		return true, 0.9, nil
	}
	return false, 0.2, nil
}

type fakeAssistant struct {
	up      bool
	intents map[string]llm.Intent
	answers map[string]string
}

func (a *fakeAssistant) Available(context.Context) bool { return a.up }

func (a *fakeAssistant) ClassifyIntent(_ context.Context, text string) llm.Intent {
	if it, ok := a.intents[text]; ok {
		return it
	}
	return llm.IntentComplex
}

func (a *fakeAssistant) QuickAnswer(_ context.Context, text string) (string, bool) {
	if ans, ok := a.answers[text]; ok {
		return ans, true
	}
	if strings.HasPrefix(text, "Summarize") {
		return "A short summary.", true
	}
	return "", false
}

func (a *fakeAssistant) AnswerOver(_ context.Context, question string, snippets []string) (string, bool) {
	return "From your notes: " + question, len(snippets) > 0
}

type fakeRouter struct {
	results map[string]route.Result
}

func (r *fakeRouter) Route(_ context.Context, text string) (route.Result, error) {
	if res, ok := r.results[text]; ok {
		return res, nil
	}
	return route.Result{}, route.ErrNoRoute
}

type fakeBrain struct {
	reply   string
	err     error
	asked   []string
	cleared int
}

func (b *fakeBrain) Ask(_ context.Context, utterance string) (string, error) {
	b.asked = append(b.asked, utterance)
	return b.reply, b.err
}

func (b *fakeBrain) ClearHistory() { b.cleared++ }

type fakeMarker struct {
	completed []int
	errored   []int
	prompt    string
}

func (m *fakeMarker) MarkCompleted(window int) (route.Assignment, bool) {
	m.completed = append(m.completed, window)
	if m.prompt == "" {
		return route.Assignment{}, false
	}
	return route.Assignment{Window: window, Prompt: m.prompt}, true
}

func (m *fakeMarker) MarkErrored(window int) (route.Assignment, bool) {
	m.errored = append(m.errored, window)
	return route.Assignment{Window: window}, m.prompt != ""
}

// turnDeps builds an orchestrator whose turn hears the given utterances and
// then falls silent.
func turnDeps(t *testing.T, utterances []string) (*Orchestrator, *fakeSpeaker, *fakeBrain) {
	t.Helper()
	speaker := &fakeSpeaker{}
	brainStub := &fakeBrain{reply: "done thinking"}
	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{errs: make([]error, len(utterances))},
		Transcriber: &fakeTranscriber{texts: utterances},
		Brain:       brainStub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, speaker, brainStub
}

func TestTurn_QuickAnswerTier(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	brainStub := &fakeBrain{reply: "should not reach"}
	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{errs: []error{nil}},
		Transcriber: &fakeTranscriber{texts: []string{"what time is it"}},
		Assistant: &fakeAssistant{
			up:      true,
			intents: map[string]llm.Intent{"what time is it": llm.IntentSimple},
			answers: map[string]string{"what time is it": "It is noon."},
		},
		Brain: brainStub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.HandleWake(context.Background())

	said := speaker.said()
	if len(said) != 1 || said[0] != "It is noon." {
		t.Fatalf("spoken = %v, want the quick answer", said)
	}
	if len(brainStub.asked) != 0 {
		t.Fatalf("brain consulted for a simple question: %v", brainStub.asked)
	}
	if o.State() != StateIdle {
		t.Fatalf("state after turn = %s, want IDLE", o.State())
	}
}

func TestTurn_KnowledgeTier(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	store := &knowmock.Store{Results: []knowledge.Result{
		{ID: "k1", Document: "notes about the deploy script", Collection: knowledge.CollectionDocs, Distance: 0.4},
		{ID: "k2", Document: "unrelated", Collection: knowledge.CollectionDocs, Distance: 1.8},
	}}

	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{errs: []error{nil}},
		Transcriber: &fakeTranscriber{texts: []string{"what did I decide about the deploy script"}},
		Assistant: &fakeAssistant{
			up:      true,
			intents: map[string]llm.Intent{"what did I decide about the deploy script": llm.IntentKnowledge},
		},
		Knowledge: store,
		Brain:     &fakeBrain{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.HandleWake(context.Background())

	said := speaker.said()
	if len(said) != 1 || !strings.HasPrefix(said[0], "From your notes:") {
		t.Fatalf("spoken = %v, want a grounded answer", said)
	}
}

func TestTurn_KnowledgeTooDistantFallsThrough(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	store := &knowmock.Store{Results: []knowledge.Result{
		{ID: "k1", Document: "far away", Collection: knowledge.CollectionDocs, Distance: 1.9},
	}}
	brainStub := &fakeBrain{reply: "brain answer"}

	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{errs: []error{nil}},
		Transcriber: &fakeTranscriber{texts: []string{"question"}},
		Assistant: &fakeAssistant{
			up:      true,
			intents: map[string]llm.Intent{"question": llm.IntentKnowledge},
		},
		Knowledge: store,
		Brain:     brainStub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.HandleWake(context.Background())

	if len(brainStub.asked) != 1 {
		t.Fatalf("distant match should escalate to the brain, asked = %v", brainStub.asked)
	}
	said := speaker.said()
	if len(said) != 1 || said[0] != "brain answer" {
		t.Fatalf("spoken = %v", said)
	}
}

func TestTurn_FastRouteTier(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	brainStub := &fakeBrain{}
	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{errs: []error{nil}},
		Transcriber: &fakeTranscriber{texts: []string{"tell window two to run the tests"}},
		Router: &fakeRouter{results: map[string]route.Result{
			"tell window two to run the tests": {Action: route.ActionAssign, Window: 2, Reply: "Sent to window 2."},
		}},
		Brain: brainStub,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.HandleWake(context.Background())

	said := speaker.said()
	if len(said) != 1 || said[0] != "Sent to window 2." {
		t.Fatalf("spoken = %v, want the route reply", said)
	}
	if len(brainStub.asked) != 0 {
		t.Fatalf("brain consulted despite a fast route: %v", brainStub.asked)
	}
}

func TestTurn_BrainTimeoutSpeaksCannedReply(t *testing.T) {
	t.Parallel()

	o, speaker, brainStub := turnDeps(t, []string{"write a novel"})
	brainStub.err = brain.ErrBrainTimeout
	brainStub.reply = ""

	o.HandleWake(context.Background())

	said := speaker.said()
	if len(said) != 1 || said[0] != replyBrainTimeout {
		t.Fatalf("spoken = %v, want the timeout phrase", said)
	}
}

func TestTurn_BrainErrorSpeaksCannedReply(t *testing.T) {
	t.Parallel()

	o, speaker, brainStub := turnDeps(t, []string{"do a thing"})
	brainStub.err = errors.New("boom")
	brainStub.reply = ""

	o.HandleWake(context.Background())

	said := speaker.said()
	if len(said) != 1 || said[0] != replyBrainFailed {
		t.Fatalf("spoken = %v, want the failure phrase", said)
	}
}

func TestTurn_TwoEmptyListensEndSilently(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	brainStub := &fakeBrain{}
	resumed := 0
	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{}, // timeouts from the first call
		Transcriber: &fakeTranscriber{},
		Brain:       brainStub,
		ResumeWake:  func() { resumed++ },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.HandleWake(context.Background())

	if said := speaker.said(); len(said) != 0 {
		t.Fatalf("silent end spoke %v", said)
	}
	if resumed != 1 {
		t.Fatalf("wake resumed %d times, want exactly once", resumed)
	}
	if brainStub.cleared != 1 {
		t.Fatalf("brain history cleared %d times, want once", brainStub.cleared)
	}
}

func TestTurn_OneEmptyListenRetries(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	o, err := New(Deps{
		Speaker: speaker,
		// timeout, then a real clip, then timeouts end the turn
		Listener:    &fakeListener{errs: []error{audio.ErrListenTimeout, nil}},
		Transcriber: &fakeTranscriber{texts: []string{"hello there"}},
		Brain:       &fakeBrain{reply: "hi"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.HandleWake(context.Background())

	said := speaker.said()
	if len(said) != 1 || said[0] != "hi" {
		t.Fatalf("spoken = %v, want a reply after the silence retry", said)
	}
}

func TestTurn_SpeakerRejectionDoesNotCountAsEmpty(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	o, err := New(Deps{
		Speaker:     speaker,
		// First clip is rejected before transcription and must not count
		// as an empty listen; the second carries the real command.
		Listener:    &fakeListener{errs: []error{nil, nil}},
		Transcriber: &fakeTranscriber{texts: []string{"real command"}},
		Verifier:    &fakeVerifier{accept: []bool{false, true}},
		Brain:       &fakeBrain{reply: "acknowledged"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.HandleWake(context.Background())

	said := speaker.said()
	if len(said) != 1 || said[0] != "acknowledged" {
		t.Fatalf("spoken = %v, want only the verified command's reply", said)
	}
}

func TestTurn_EndPhraseClosesAndSavesConversation(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	store := &knowmock.Store{}
	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{errs: []error{nil, nil}},
		Transcriber: &fakeTranscriber{texts: []string{"hello", "that's all"}},
		Brain:       &fakeBrain{reply: "hi"},
		Knowledge:   store,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.HandleWake(context.Background())

	if len(store.Conversations) != 1 {
		t.Fatalf("conversations saved = %d, want 1", len(store.Conversations))
	}
	if !strings.Contains(store.Conversations[0], "hello") {
		t.Fatalf("summary %q lost the transcript", store.Conversations[0])
	}
}

func TestHandleWake_BusyPlaysCannedPhrase(t *testing.T) {
	t.Parallel()

	speaker := &fakeSpeaker{}
	o, err := New(Deps{
		Speaker:     speaker,
		Listener:    &fakeListener{},
		Transcriber: &fakeTranscriber{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	o.mu.Lock()
	o.inTurn = true
	o.mu.Unlock()

	o.HandleWake(context.Background())

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	if len(speaker.cached) != 1 || speaker.cached[0] != speech.KeyBusy {
		t.Fatalf("cached plays = %v, want [%s]", speaker.cached, speech.KeyBusy)
	}
}

func TestThink_NoTiersAvailable(t *testing.T) {
	t.Parallel()

	o, err := New(Deps{
		Speaker:     &fakeSpeaker{},
		Listener:    &fakeListener{},
		Transcriber: &fakeTranscriber{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := o.think(context.Background(), "anything"); got != replyNoTier {
		t.Fatalf("think = %q, want the no-tier phrase", got)
	}
}

func TestNew_RequiresCoreDeps(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}); err == nil {
		t.Fatal("missing deps accepted")
	}
}
