// Package capture defines the microphone contract used by the wake listener
// and the recorder, plus [Gate], which enforces exclusive ownership of the
// input device.
//
// A [Device] is opened into a [Stream]; the stream yields fixed-size frames
// until it is closed. Backends report their failures with the sentinel
// errors below so callers can tell a missing microphone from a slow one.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/friday/pkg/audio"
)

var (
	// ErrDeviceUnavailable is returned when the input device cannot be opened.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrDeviceBusy is returned by [Gate.Open] while another stream holds the device.
	ErrDeviceBusy = errors.New("capture: device busy")

	// ErrTimeout is returned by ReadFrame when no frame arrived in time.
	ErrTimeout = errors.New("capture: read timeout")

	// ErrDeviceError is returned by ReadFrame when the device failed mid-stream.
	ErrDeviceError = errors.New("capture: device error")

	// ErrClosed is returned by ReadFrame after the stream was closed.
	ErrClosed = errors.New("capture: stream closed")
)

// Device opens capture streams on an audio input.
type Device interface {
	// Open starts capturing in the given format, delivering frames of
	// frameSize samples per channel.
	Open(ctx context.Context, format audio.Format, frameSize int) (Stream, error)
}

// Stream is an open capture session.
//
// ReadFrame blocks until the next frame is available, the timeout elapses
// ([ErrTimeout]) or ctx is cancelled. Close releases the device; it is safe
// to call more than once.
type Stream interface {
	ReadFrame(ctx context.Context, timeout time.Duration) (audio.Frame, error)
	Close() error
}

const defaultRetryDelay = 250 * time.Millisecond

// GateOption configures a [Gate].
type GateOption func(*Gate)

// WithRetryDelay sets the pause before the single retry of a failed open.
func WithRetryDelay(d time.Duration) GateOption {
	return func(g *Gate) {
		g.retryDelay = d
	}
}

// Gate wraps a [Device] so that at most one stream is open at a time.
// A failed open is retried exactly once before [ErrDeviceUnavailable] is
// reported.
type Gate struct {
	dev        Device
	retryDelay time.Duration

	mu    sync.Mutex
	held  bool
	owner string
}

var _ Device = (*Gate)(nil)

// NewGate returns a gate around dev.
func NewGate(dev Device, opts ...GateOption) *Gate {
	g := &Gate{dev: dev, retryDelay: defaultRetryDelay}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Open implements [Device]. It is equivalent to OpenAs with an empty owner.
func (g *Gate) Open(ctx context.Context, format audio.Format, frameSize int) (Stream, error) {
	return g.OpenAs(ctx, "", format, frameSize)
}

// OpenAs opens the device on behalf of owner, which is reported in logs and
// by [Gate.Owner] while the stream is held.
func (g *Gate) OpenAs(ctx context.Context, owner string, format audio.Format, frameSize int) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("capture: frame size must be positive, got %d", frameSize)
	}

	g.mu.Lock()
	if g.held {
		current := g.owner
		g.mu.Unlock()
		return nil, fmt.Errorf("%w (held by %q)", ErrDeviceBusy, current)
	}
	g.held = true
	g.owner = owner
	g.mu.Unlock()

	s, err := g.dev.Open(ctx, format, frameSize)
	if err != nil {
		slog.Warn("capture: open failed, retrying once", "owner", owner, "err", err)
		select {
		case <-ctx.Done():
			g.release()
			return nil, ctx.Err()
		case <-time.After(g.retryDelay):
		}
		s, err = g.dev.Open(ctx, format, frameSize)
	}
	if err != nil {
		g.release()
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	return &gatedStream{Stream: s, gate: g}, nil
}

// Held reports whether a stream is currently open.
func (g *Gate) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// Owner returns the owner of the open stream, or "" when the device is free.
func (g *Gate) Owner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}

func (g *Gate) release() {
	g.mu.Lock()
	g.held = false
	g.owner = ""
	g.mu.Unlock()
}

type gatedStream struct {
	Stream
	gate *Gate
	once sync.Once
}

func (s *gatedStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.Stream.Close()
		s.gate.release()
	})
	return err
}
