package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/attercap/sennet/pkg/audio"
	"github.com/attercap/sennet/pkg/provider/embeddings"
	"github.com/attercap/sennet/pkg/provider/llm"
	"github.com/attercap/sennet/pkg/provider/stt"
	"github.com/attercap/sennet/pkg/provider/tts"
	"github.com/attercap/sennet/pkg/provider/voiceid"
	"github.com/attercap/sennet/pkg/provider/wake"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	audio      map[string]func(ProviderEntry) (audio.Source, error)
	wake       map[string]func(ProviderEntry) (wake.Detector, error)
	stt        map[string]func(ProviderEntry) (stt.Transcriber, error)
	tts        map[string]func(ProviderEntry) (tts.Synthesizer, error)
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
	voiceid    map[string]func(ProviderEntry) (voiceid.Embedder, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		audio:      make(map[string]func(ProviderEntry) (audio.Source, error)),
		wake:       make(map[string]func(ProviderEntry) (wake.Detector, error)),
		stt:        make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		tts:        make(map[string]func(ProviderEntry) (tts.Synthesizer, error)),
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
		voiceid:    make(map[string]func(ProviderEntry) (voiceid.Embedder, error)),
	}
}

// RegisterAudio registers an audio source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterWake registers a wake-word detector factory under name.
func (r *Registry) RegisterWake(name string, factory func(ProviderEntry) (wake.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wake[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterVoiceID registers a speaker-embedding factory under name.
func (r *Registry) RegisterVoiceID(name string, factory func(ProviderEntry) (voiceid.Embedder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voiceid[name] = factory
}

// CreateAudio instantiates an audio source using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateWake instantiates a wake-word detector using the factory registered under entry.Name.
func (r *Registry) CreateWake(entry ProviderEntry) (wake.Detector, error) {
	r.mu.RLock()
	factory, ok := r.wake[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wake/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates a transcriber using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a synthesizer using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVoiceID instantiates a speaker embedder using the factory registered under entry.Name.
func (r *Registry) CreateVoiceID(entry ProviderEntry) (voiceid.Embedder, error) {
	r.mu.RLock()
	factory, ok := r.voiceid[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: voiceid/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
