// Package tts defines the interfaces for Text-to-Speech backends.
//
// A [Provider] turns one finished reply into a playable audio container
// (WAV, MP3 or AIFF bytes). Engines that render speech directly to the
// speakers implement [Speaker] instead and return no audio at all.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by providers whose backend answered without audio.
var ErrEmptyAudio = errors.New("tts: backend returned no audio")

// VoiceProfile describes the voice a reply should be spoken in.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (ElevenLabs voice ID,
	// OpenAI voice name, Coqui speaker ID, native voice name).
	ID string

	// Name is a human-readable label.
	Name string

	// Provider names the backend the voice belongs to.
	Provider string

	// SpeedFactor scales speaking rate; 1.0 (or 0) is the engine default.
	SpeedFactor float64

	// PitchShift in semitones; not every engine honours it.
	PitchShift float64

	// Metadata carries provider-specific extras (labels, language).
	Metadata map[string]string
}

// Provider synthesises text into audio bytes.
type Provider interface {
	// Synthesize returns the spoken form of text as a complete audio
	// container. An empty or undersized result must be reported as an error
	// by the caller's size check, not treated as success.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// Speaker speaks text through the platform's own speech output. Speak
// returns once the utterance has been rendered.
type Speaker interface {
	Speak(ctx context.Context, text string, voice VoiceProfile) error
}
