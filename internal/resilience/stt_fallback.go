package resilience

import (
	"context"

	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
//
// [stt.ErrNoSpeech] is an answer, not a fault: it neither trips a breaker nor
// moves on to the next backend.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = func(err error) bool { return !stt.IsNoSpeech(err) }
	}
	if cfg.Stop == nil {
		cfg.Stop = stt.IsNoSpeech
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// Transcribe sends buf to the first healthy backend. If it fails, subsequent
// fallbacks are tried with the same audio.
func (f *STTFallback) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	return Call(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, buf)
	})
}
