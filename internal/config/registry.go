package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/friday/pkg/provider/llm"
	"github.com/MrWong99/friday/pkg/provider/stt"
	"github.com/MrWong99/friday/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a provider entry names a backend
// no factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is the table for one provider kind.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

// create looks up the factory under mu and runs it after releasing the lock.
func create[T any](mu *sync.RWMutex, f factories[T], entry ProviderEntry) (T, error) {
	mu.RLock()
	fn, ok := f.m[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return fn(entry)
}

// Registry maps backend names to factories for each provider kind. It is
// safe for concurrent use. Registering a name twice replaces the factory.
type Registry struct {
	mu      sync.RWMutex
	llm     factories[llm.Provider]
	stt     factories[stt.Provider]
	tts     factories[tts.Provider]
	speaker factories[tts.Speaker]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:     newFactories[llm.Provider]("llm"),
		stt:     newFactories[stt.Provider]("stt"),
		tts:     newFactories[tts.Provider]("tts"),
		speaker: newFactories[tts.Speaker]("native"),
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { r.put(func() { r.llm.m[name] = f }) }
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) { r.put(func() { r.stt.m[name] = f }) }
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) { r.put(func() { r.tts.m[name] = f }) }

// RegisterSpeaker registers a native speech engine.
func (r *Registry) RegisterSpeaker(name string, f Factory[tts.Speaker]) {
	r.put(func() { r.speaker.m[name] = f })
}

func (r *Registry) put(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// CreateLLM builds the responder backend named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(&r.mu, r.llm, entry)
}

// CreateSTT builds the transcriber named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(&r.mu, r.stt, entry)
}

// CreateTTS builds the synthesis backend named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(&r.mu, r.tts, entry)
}

// CreateSpeaker builds the native speech engine named by entry.Name.
func (r *Registry) CreateSpeaker(entry ProviderEntry) (tts.Speaker, error) {
	return create(&r.mu, r.speaker, entry)
}

// Names returns the sorted names registered for kind ("stt", "llm", "tts"
// or "native").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return slices.Sorted(maps.Keys(r.stt.m))
	case "llm":
		return slices.Sorted(maps.Keys(r.llm.m))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts.m))
	case "native":
		return slices.Sorted(maps.Keys(r.speaker.m))
	}
	return nil
}
