// Package mock provides test doubles for the tts.Provider, tts.VoiceLister
// and tts.Speaker interfaces.
//
// Use Provider to return controlled audio for each synthesis call and to
// verify the text and VoiceProfile passed to the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Audio:            audio.EncodeWAV(make([]byte, 4000), format),
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/friday/pkg/provider/tts"
)

// Result is one scripted answer to Synthesize.
type Result struct {
	Audio []byte
	Err   error
}

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider and tts.VoiceLister.
type Provider struct {
	mu sync.Mutex

	// Results are consumed in order, one per call. Once exhausted, Audio and
	// Err are returned.
	Results []Result

	// Audio is returned by Synthesize when Results is exhausted.
	Audio []byte

	// Err, if non-nil, is returned by Synthesize when Results is exhausted.
	Err error

	// Delay blocks each call for the given duration or until ctx is done.
	Delay time.Duration

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the next scripted result.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	var res Result
	if len(p.Results) > 0 {
		res = p.Results[0]
		p.Results = p.Results[1:]
	} else {
		res = Result{Audio: p.Audio, Err: p.Err}
	}
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return res.Audio, res.Err
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// ListVoices returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListVoicesResult, p.ListVoicesErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Speaker is a mock implementation of tts.Speaker.
type Speaker struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by Speak.
	Err error

	// Spoken records every text passed to Speak.
	Spoken []string
}

// Speak records text and returns Err.
func (s *Speaker) Speak(_ context.Context, text string, _ tts.VoiceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spoken = append(s.Spoken, text)
	return s.Err
}

// Calls returns a copy of the spoken texts. Thread-safe.
func (s *Speaker) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Spoken))
	copy(out, s.Spoken)
	return out
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
	_ tts.Speaker     = (*Speaker)(nil)
)
