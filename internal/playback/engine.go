// Package playback renders synthesised clips through the first working
// output backend.
//
// Every clip is written to its own temporary file so that command-line
// players and the desktop file handler can open it. The file is removed a
// grace period after Play returns, whatever the outcome, and [Engine.Close]
// removes anything still pending.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/friday/internal/observe"
	"github.com/MrWong99/friday/pkg/audio"
)

// ErrUnsupportedFormat is returned by a backend that cannot render the
// clip's container format.
var ErrUnsupportedFormat = errors.New("playback: unsupported format")

// Backend is one way of making a clip audible.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Play renders the clip stored at path. clip holds the same bytes for
	// backends that play from memory. Play returns once playback has
	// finished or, for detached backends, once it has been started.
	Play(ctx context.Context, path string, clip audio.Clip) error
}

const defaultCleanupDelay = 2 * time.Second

// Option is a functional option for [New].
type Option func(*Engine)

// WithCleanupDelay sets how long a temporary file outlives Play.
// Default: 2s.
func WithCleanupDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.cleanupDelay = d
	}
}

// WithTempDir sets the directory for temporary clip files. Default: the
// system temp directory.
func WithTempDir(dir string) Option {
	return func(e *Engine) {
		e.tempDir = dir
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine plays clips through an ordered list of backends. It is safe for
// concurrent use.
type Engine struct {
	backends     []Backend
	cleanupDelay time.Duration
	tempDir      string
	metrics      *observe.Metrics

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// New returns an engine trying backends in order.
func New(backends []Backend, opts ...Option) *Engine {
	e := &Engine{
		backends:     backends,
		cleanupDelay: defaultCleanupDelay,
		pending:      make(map[string]*time.Timer),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Backends returns the names of the configured backends in order.
func (e *Engine) Backends() []string {
	names := make([]string, len(e.backends))
	for i, b := range e.backends {
		names[i] = b.Name()
	}
	return names
}

// Play renders clip and reports whether any backend succeeded. A clip that
// was already played by the speech engine succeeds immediately. Backend
// failures are logged and fall through to the next backend.
func (e *Engine) Play(ctx context.Context, clip audio.Clip) bool {
	if clip.Played {
		return true
	}
	if clip.Len() == 0 {
		slog.Warn("playback: empty clip")
		return false
	}

	path, err := e.writeTemp(clip)
	if err != nil {
		slog.Error("playback: cannot write temp file", "err", err)
		return false
	}
	defer e.scheduleRemoval(path)

	for _, b := range e.backends {
		if ctx.Err() != nil {
			return false
		}
		if err := b.Play(ctx, path, clip); err != nil {
			e.metrics.RecordPlayback(ctx, b.Name(), "error")
			slog.Warn("playback: backend failed", "backend", b.Name(), "format", clip.Format, "err", err)
			continue
		}
		e.metrics.RecordPlayback(ctx, b.Name(), "ok")
		slog.Debug("playback: played", "backend", b.Name(), "bytes", clip.Len())
		return true
	}
	slog.Error("playback: no backend could play the clip", "format", clip.Format, "backends", e.Backends())
	return false
}

// Pending returns the number of temporary files awaiting removal.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close removes every pending temporary file now. Play fails after Close.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	pending := e.pending
	e.pending = make(map[string]*time.Timer)
	e.mu.Unlock()

	var errs []error
	for path, t := range pending {
		t.Stop()
		if err := removeFile(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) writeTemp(clip audio.Clip) (string, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return "", errors.New("playback: engine closed")
	}

	ext := clip.Format
	if ext == "" {
		ext = audio.SniffFormat(clip.Data)
	}
	f, err := os.CreateTemp(e.tempDir, "friday-*."+ext)
	if err != nil {
		return "", fmt.Errorf("playback: create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(clip.Data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("playback: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("playback: close temp file: %w", err)
	}
	return path, nil
}

func (e *Engine) scheduleRemoval(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		_ = removeFile(path)
		return
	}
	e.pending[path] = time.AfterFunc(e.cleanupDelay, func() {
		e.mu.Lock()
		_, ok := e.pending[path]
		delete(e.pending, path)
		e.mu.Unlock()
		if !ok {
			return
		}
		if err := removeFile(path); err != nil {
			slog.Warn("playback: temp file cleanup failed", "path", path, "err", err)
		}
	})
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
