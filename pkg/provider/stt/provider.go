// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider turns one finished utterance (an [audio.Buffer] produced by the
// recorder or the wake listener) into text. Providers are batch oriented: the
// whole utterance is submitted at once and a single transcript comes back.
//
// Implementations must be safe for concurrent use; the wake listener runs one
// recognition worker per captured utterance.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/friday/pkg/audio"
)

var (
	// ErrNoSpeech is returned when the audio contained nothing recognisable.
	// It is an expected outcome, not a service failure.
	ErrNoSpeech = errors.New("stt: no speech detected")

	// ErrEmptyAudio is returned when the buffer holds no PCM data at all.
	ErrEmptyAudio = errors.New("stt: empty audio buffer")
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in buf.
	//
	// Returns [ErrNoSpeech] when the service heard nothing; any other error is
	// a service error (network, authentication, decoding).
	Transcribe(ctx context.Context, buf *audio.Buffer) (string, error)
}

// IsNoSpeech reports whether err means the audio simply contained no speech.
func IsNoSpeech(err error) bool {
	return errors.Is(err, ErrNoSpeech) || errors.Is(err, ErrEmptyAudio)
}
