// Package mock provides a test double for the stt package.
//
// Provider returns scripted results in order (Results), falling back to
// Text / Err once the script is exhausted, and records every call.
//
//	p := &mock.Provider{Results: []mock.Result{{Err: stt.ErrNoSpeech}, {Text: "hey friday"}}}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/provider/stt"
)

// Result is one scripted Transcribe outcome.
type Result struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Bytes is the length of the submitted buffer.
	Bytes int
	// Frames is the number of frames in the submitted buffer.
	Frames int
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order, one per call.
	Results []Result

	// Text and Err are returned once Results is exhausted.
	Text string
	Err  error

	// Delay is slept (honouring ctx) before each call returns.
	Delay time.Duration

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, buf *audio.Buffer) (string, error) {
	p.mu.Lock()
	call := TranscribeCall{Bytes: buf.Len()}
	if buf != nil {
		call.Frames = buf.Frames
	}
	p.Calls = append(p.Calls, call)
	res := Result{Text: p.Text, Err: p.Err}
	if len(p.Results) > 0 {
		res = p.Results[0]
		p.Results = p.Results[1:]
	}
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return res.Text, res.Err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Recorded returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Recorded() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.Calls))
	copy(out, p.Calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
