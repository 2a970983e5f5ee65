// Package recorder captures one spoken utterance from an open capture stream
// and decides when it has ended.
//
// Endpointing uses the per-frame peak amplitude against a fixed threshold.
// Quiet frames are only counted once the minimum utterance length has been
// captured; a run of SilenceFrames quiet frames after that ends the
// recording. Independently, the recording never exceeds MaxDuration of audio
// and can be stopped from another goroutine with [Recorder.Stop] or through
// the stop channel given to [Recorder.RecordUntil].
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/audio/capture"
)

// ErrNoAudioCaptured is returned when a recording ended before any frame was read.
var ErrNoAudioCaptured = errors.New("recorder: no audio captured")

// Reason says why a recording ended.
type Reason string

const (
	ReasonSilence     Reason = "silence"
	ReasonMaxDuration Reason = "max_duration"
	ReasonStopped     Reason = "stopped"
	ReasonDeviceError Reason = "device_error"
)

// Config holds the endpointing parameters.
type Config struct {
	// MaxDuration caps the captured audio. Default: 10s.
	MaxDuration time.Duration

	// MinFrames is the minimum utterance length in frames before silence can
	// end the recording. Default: 10.
	MinFrames int

	// SilenceFrames is the number of consecutive quiet frames, counted after
	// MinFrames, that ends the recording. Default: 30.
	SilenceFrames int

	// EnergyThreshold is the peak amplitude at or above which a frame counts
	// as voice. Default: 500.
	EnergyThreshold int

	// ReadTimeout bounds a single frame read. Default: 1s.
	ReadTimeout time.Duration
}

// DefaultConfig returns the stock endpointing parameters.
func DefaultConfig() Config {
	return Config{
		MaxDuration:     10 * time.Second,
		MinFrames:       10,
		SilenceFrames:   30,
		EnergyThreshold: 500,
		ReadTimeout:     time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.MinFrames < 0 {
		c.MinFrames = 0
	}
	if c.SilenceFrames <= 0 {
		c.SilenceFrames = d.SilenceFrames
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	return c
}

// Result is a finished recording.
type Result struct {
	Buffer *audio.Buffer
	Reason Reason

	// Elapsed is the wall-clock time spent recording.
	Elapsed time.Duration
}

// Recorder records endpointed utterances. A Recorder runs one recording at a
// time; Stop may be called concurrently with Record.
type Recorder struct {
	cfg Config

	mu   sync.Mutex
	stop chan struct{} // non-nil while a recording runs
}

// New returns a Recorder. Zero fields in cfg take their defaults; a zero
// MinFrames is kept.
func New(cfg Config) *Recorder {
	return &Recorder{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (r *Recorder) Config() Config { return r.cfg }

// Recording reports whether Record is currently running.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

// Stop asks the running recording to finish after the current frame. The
// audio captured so far is returned with [ReasonStopped]. Stop is a no-op
// while nothing records; callers that must also cover the time before
// recording starts pass their own channel to [Recorder.RecordUntil].
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil && !isClosed(r.stop) {
		close(r.stop)
	}
}

// Record reads frames from stream until the utterance ends. The stream is
// not closed.
//
// Read timeouts are tolerated until MaxDuration plus one ReadTimeout of wall
// clock has passed. A device error before the first frame is returned; after
// it, the partial buffer is returned with [ReasonDeviceError]. A cancelled
// ctx returns ctx.Err().
func (r *Recorder) Record(ctx context.Context, stream capture.Stream) (Result, error) {
	return r.RecordUntil(ctx, stream, nil)
}

// RecordUntil is [Recorder.Record] that also ends with [ReasonStopped] once
// stop is closed. A stop closed before the call ends the recording before
// the first read, which yields [ErrNoAudioCaptured]. A nil stop never fires.
func (r *Recorder) RecordUntil(ctx context.Context, stream capture.Stream, stop <-chan struct{}) (Result, error) {
	own := make(chan struct{})
	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return Result{}, errors.New("recorder: already recording")
	}
	r.stop = own
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.stop = nil
		r.mu.Unlock()
	}()

	var (
		buf      *audio.Buffer
		maxBytes int
		silence  int
		reason   Reason
		start    = time.Now()
		deadline = start.Add(r.cfg.MaxDuration + r.cfg.ReadTimeout)
	)

loop:
	for {
		switch {
		case isClosed(own) || isClosed(stop):
			reason = ReasonStopped
			break loop
		case ctx.Err() != nil:
			return Result{}, fmt.Errorf("recorder: %w", ctx.Err())
		case time.Now().After(deadline):
			slog.Warn("recorder: wall-clock limit reached", "elapsed", time.Since(start))
			reason = ReasonMaxDuration
			break loop
		}

		frame, err := stream.ReadFrame(ctx, r.cfg.ReadTimeout)
		if err != nil {
			if errors.Is(err, capture.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("recorder: %w", ctx.Err())
			}
			if buf.Len() == 0 {
				return Result{}, fmt.Errorf("recorder: read: %w", err)
			}
			slog.Warn("recorder: device error, keeping partial recording", "err", err, "bytes", buf.Len())
			reason = ReasonDeviceError
			break loop
		}

		if buf == nil {
			buf = audio.NewBuffer(frame.Format)
			maxBytes = maxBufferBytes(frame.Format, r.cfg.MaxDuration)
		}
		data := frame.Data
		if room := maxBytes - buf.Len(); len(data) > room {
			data = data[:room]
		}
		buf.Append(audio.Frame{Data: data, Format: frame.Format, Timestamp: frame.Timestamp})
		if buf.Len() >= maxBytes {
			reason = ReasonMaxDuration
			break
		}

		if audio.Peak(frame.Data) >= r.cfg.EnergyThreshold {
			silence = 0
		} else if buf.Frames > r.cfg.MinFrames {
			silence++
		}
		if silence >= r.cfg.SilenceFrames {
			reason = ReasonSilence
			break
		}
	}

	elapsed := time.Since(start)
	if buf.Len() == 0 {
		return Result{Reason: reason, Elapsed: elapsed}, ErrNoAudioCaptured
	}
	slog.Debug("recorder: finished",
		"reason", reason,
		"frames", buf.Frames,
		"audio", buf.Duration(),
		"elapsed", elapsed,
	)
	return Result{Buffer: buf, Reason: reason, Elapsed: elapsed}, nil
}

// isClosed reports whether ch is closed. A nil ch is never closed.
func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// maxBufferBytes is the byte length of d of audio, aligned to whole samples.
func maxBufferBytes(f audio.Format, d time.Duration) int {
	block := f.Channels * audio.BitsPerSample / 8
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%block
}
