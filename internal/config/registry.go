package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/provider/embeddings"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// pipeline stage. It decouples config parsing from provider construction so
// cmd/auricle can register exactly the backends it links in (the whisper CGO
// transcriber, for instance, is only available in builds with libwhisper).
// Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	transcriber map[string]func(TranscriberConfig) (stt.Transcriber, error)
	answerer    map[string]func(AnswererConfig) (llm.Provider, error)
	embeddings  map[string]func(EmbeddingsConfig) (embeddings.Provider, error)
	audio       map[string]func(AudioConfig) (audio.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcriber: make(map[string]func(TranscriberConfig) (stt.Transcriber, error)),
		answerer:    make(map[string]func(AnswererConfig) (llm.Provider, error)),
		embeddings:  make(map[string]func(EmbeddingsConfig) (embeddings.Provider, error)),
		audio:       make(map[string]func(AudioConfig) (audio.Source, error)),
	}
}

// RegisterTranscriber registers a transcriber factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscriber(name string, factory func(TranscriberConfig) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber[name] = factory
}

// RegisterAnswerer registers an LLM provider factory under name.
func (r *Registry) RegisterAnswerer(name string, factory func(AnswererConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answerer[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(EmbeddingsConfig) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterAudio registers an audio source factory under name.
func (r *Registry) RegisterAudio(name string, factory func(AudioConfig) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateTranscriber instantiates the transcriber registered under
// cfg.Provider. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateTranscriber(cfg TranscriberConfig) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.transcriber[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcriber/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateAnswerer instantiates the LLM provider registered under cfg.Provider.
func (r *Registry) CreateAnswerer(cfg AnswererConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.answerer[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: answerer/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateEmbeddings instantiates the embeddings provider registered under
// cfg.Provider.
func (r *Registry) CreateEmbeddings(cfg EmbeddingsConfig) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateAudio instantiates the audio source registered under name.
func (r *Registry) CreateAudio(name string, cfg AudioConfig) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.audio[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}
