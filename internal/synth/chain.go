// Package synth turns reply text into speech through an ordered chain of
// text-to-speech providers.
//
// The chain starts at the most preferred configured [Mode]. When the provider
// at the current mode fails, the chain demotes to the next configured mode for
// the rest of the process and retries once. A single call never demotes more
// than once, and the mode never moves back up.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/friday/internal/observe"
	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/provider/tts"
)

var (
	// ErrEmptyText is returned when the text has nothing speakable.
	ErrEmptyText = errors.New("synth: empty text")

	// ErrAllProvidersExhausted is returned when no provider produced speech.
	ErrAllProvidersExhausted = errors.New("synth: all providers exhausted")

	// ErrClipTooSmall is returned when a provider answered with fewer bytes
	// than the configured floor.
	ErrClipTooSmall = errors.New("synth: audio below minimum size")
)

// Mode is a position in the fallback order. Lower values are preferred.
type Mode int32

const (
	PrimaryCloud Mode = iota
	SecondaryCloud
	LocalEngine
	SystemNative

	modeCount
)

// Modes lists every mode in fallback order.
var Modes = []Mode{PrimaryCloud, SecondaryCloud, LocalEngine, SystemNative}

func (m Mode) String() string {
	switch m {
	case PrimaryCloud:
		return "primary_cloud"
	case SecondaryCloud:
		return "secondary_cloud"
	case LocalEngine:
		return "local"
	case SystemNative:
		return "native"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

// ParseMode returns the mode named by s, as printed by [Mode.String].
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("synth: unknown mode %q", s)
}

// Error reports a synthesis call that produced no speech. It matches
// [ErrAllProvidersExhausted] and the last provider error with [errors.Is].
type Error struct {
	// Modes are the modes attempted by the call, in order.
	Modes []Mode

	// Last is the error of the final attempt.
	Last error
}

func (e *Error) Error() string {
	names := make([]string, len(e.Modes))
	for i, m := range e.Modes {
		names[i] = m.String()
	}
	return fmt.Sprintf("%v (tried %s): %v", ErrAllProvidersExhausted, strings.Join(names, ", "), e.Last)
}

func (e *Error) Unwrap() []error {
	return []error{ErrAllProvidersExhausted, e.Last}
}

const (
	defaultMinAudioBytes = 1000
	probeText            = "Systems online."
)

// Option is a functional option for [New].
type Option func(*Chain)

// WithSpeaker sets the native speech engine used in [SystemNative] mode.
func WithSpeaker(s tts.Speaker) Option {
	return func(c *Chain) {
		c.speaker = s
	}
}

// WithModeVoice overrides the voice for one mode, for providers whose voice
// identifiers differ from the default voice's.
func WithModeVoice(m Mode, v tts.VoiceProfile) Option {
	return func(c *Chain) {
		c.voices[m] = v
	}
}

// WithMinAudioBytes sets the smallest response accepted as a clip.
// Default: 1000.
func WithMinAudioBytes(n int) Option {
	return func(c *Chain) {
		c.minAudioBytes = n
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Chain) {
		c.metrics = m
	}
}

// Chain is the synthesis fallback chain. It is safe for concurrent use.
type Chain struct {
	providers     map[Mode]tts.Provider
	speaker       tts.Speaker
	voice         tts.VoiceProfile
	voices        map[Mode]tts.VoiceProfile
	minAudioBytes int
	metrics       *observe.Metrics

	mode      atomic.Int32
	exhausted atomic.Bool
}

// New builds a chain over providers. Nil providers are ignored; the chain
// starts at the most preferred mode that has a provider (or the native
// speaker). With nothing configured every call fails with
// [ErrAllProvidersExhausted].
func New(providers map[Mode]tts.Provider, voice tts.VoiceProfile, opts ...Option) *Chain {
	c := &Chain{
		providers:     make(map[Mode]tts.Provider, len(providers)),
		voice:         voice,
		voices:        make(map[Mode]tts.VoiceProfile),
		minAudioBytes: defaultMinAudioBytes,
	}
	for m, p := range providers {
		if p != nil && m != SystemNative {
			c.providers[m] = p
		}
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	start, ok := c.next(-1)
	if !ok {
		start = modeCount
	}
	c.mode.Store(int32(start))
	return c
}

// Mode returns the current mode. After the last configured mode has failed
// Mode still reports it; see [Chain.Exhausted].
func (c *Chain) Mode() Mode {
	m := Mode(c.mode.Load())
	if m >= modeCount {
		return SystemNative
	}
	return m
}

// Exhausted reports whether the most recent call failed on every mode it
// was allowed to try.
func (c *Chain) Exhausted() bool {
	return c.exhausted.Load()
}

// Synthesize normalises text and speaks it through the current mode,
// demoting and retrying once on failure. The returned clip is [audio.Played]
// when the native engine already spoke the text.
func (c *Chain) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	norm := Normalize(text)
	if norm == "" {
		return audio.Clip{}, ErrEmptyText
	}

	mode := Mode(c.mode.Load())
	if mode >= modeCount {
		c.exhausted.Store(true)
		return audio.Clip{}, &Error{Last: errors.New("synth: no providers configured")}
	}

	start := time.Now()
	defer func() { c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds()) }()

	clip, err := c.attempt(ctx, mode, norm)
	if err == nil {
		c.exhausted.Store(false)
		return clip, nil
	}
	if ctx.Err() != nil {
		return audio.Clip{}, fmt.Errorf("synth: %w", ctx.Err())
	}

	next, ok := c.demote(ctx, mode, err)
	if !ok {
		c.exhausted.Store(true)
		return audio.Clip{}, &Error{Modes: []Mode{mode}, Last: err}
	}

	clip, err = c.attempt(ctx, next, norm)
	if err == nil {
		c.exhausted.Store(false)
		return clip, nil
	}
	if ctx.Err() != nil {
		return audio.Clip{}, fmt.Errorf("synth: %w", ctx.Err())
	}
	c.exhausted.Store(true)
	return audio.Clip{}, &Error{Modes: []Mode{mode, next}, Last: err}
}

// Probe checks the current cloud or local mode with a short phrase and
// demotes once if it fails. The native engine is never probed because it
// would speak aloud.
func (c *Chain) Probe(ctx context.Context) error {
	mode := Mode(c.mode.Load())
	if mode >= SystemNative {
		return nil
	}
	if _, err := c.attempt(ctx, mode, probeText); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		next, ok := c.demote(ctx, mode, err)
		if !ok {
			return &Error{Modes: []Mode{mode}, Last: err}
		}
		slog.Warn("synth: probe failed, starting on fallback", "mode", next.String(), "err", err)
		return nil
	}
	slog.Info("synth: probe ok", "mode", mode.String())
	return nil
}

func (c *Chain) attempt(ctx context.Context, m Mode, text string) (audio.Clip, error) {
	if m == SystemNative {
		if c.speaker == nil {
			return audio.Clip{}, errors.New("synth: native speaker not configured")
		}
		if err := c.speaker.Speak(ctx, text, c.voiceFor(m)); err != nil {
			c.metrics.RecordProviderRequest(ctx, m.String(), "tts", "error")
			return audio.Clip{}, fmt.Errorf("synth: %s: %w", m, err)
		}
		c.metrics.RecordProviderRequest(ctx, m.String(), "tts", "ok")
		return audio.Played, nil
	}

	p, ok := c.providers[m]
	if !ok {
		return audio.Clip{}, fmt.Errorf("synth: %s: no provider configured", m)
	}
	data, err := p.Synthesize(ctx, text, c.voiceFor(m))
	if err == nil && len(data) < c.minAudioBytes {
		err = fmt.Errorf("%w: got %d bytes, want at least %d", ErrClipTooSmall, len(data), c.minAudioBytes)
	}
	if err != nil {
		c.metrics.RecordProviderRequest(ctx, m.String(), "tts", "error")
		c.metrics.RecordProviderError(ctx, m.String(), "tts")
		return audio.Clip{}, fmt.Errorf("synth: %s: %w", m, err)
	}
	c.metrics.RecordProviderRequest(ctx, m.String(), "tts", "ok")
	slog.Debug("synth: generated audio", "mode", m.String(), "bytes", len(data))
	return audio.NewClip(data, ""), nil
}

// demote moves the chain from failed to the next configured mode. When
// another call already demoted past failed, the chain keeps that later mode
// and it is used for the retry instead.
func (c *Chain) demote(ctx context.Context, failed Mode, cause error) (Mode, bool) {
	next, ok := c.next(failed)
	if !ok {
		return 0, false
	}
	if c.mode.CompareAndSwap(int32(failed), int32(next)) {
		slog.Warn("synth: demoting", "from", failed.String(), "mode", next.String(), "err", cause)
		c.metrics.RecordDemotion(ctx, failed.String(), next.String())
		return next, true
	}
	cur := Mode(c.mode.Load())
	if cur >= modeCount {
		return 0, false
	}
	return cur, true
}

// next returns the first configured mode after m.
func (c *Chain) next(m Mode) (Mode, bool) {
	for n := m + 1; n < modeCount; n++ {
		if n == SystemNative {
			if c.speaker != nil {
				return n, true
			}
			continue
		}
		if _, ok := c.providers[n]; ok {
			return n, true
		}
	}
	return 0, false
}

func (c *Chain) voiceFor(m Mode) tts.VoiceProfile {
	if v, ok := c.voices[m]; ok {
		return v
	}
	return c.voice
}
