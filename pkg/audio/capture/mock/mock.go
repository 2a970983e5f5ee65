// Package mock provides a scripted [capture.Device] for unit tests.
//
// The device serves frames from Script in order, shared across every stream
// opened on it, so a test can describe an entire session up front:
//
//	dev := &mock.Device{Script: mock.Repeat(mock.Frame(1024, 2000), 40)}
//	s, _ := dev.Open(ctx, format, 1024)
//	f, err := s.ReadFrame(ctx, time.Second)
//
// When the script runs out, Generate (if set) supplies further steps;
// otherwise ReadFrame waits for its timeout and returns [capture.ErrTimeout].
// All methods are safe for concurrent use.
package mock

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/audio/capture"
)

// Step is one scripted ReadFrame outcome.
type Step struct {
	// Data is returned as the frame payload when Err is nil.
	Data []byte

	// Err, when non-nil, is returned instead of a frame.
	Err error

	// Delay is slept (bounded by the read timeout) before the step is served.
	Delay time.Duration
}

// Device is a mock implementation of [capture.Device].
type Device struct {
	mu sync.Mutex

	// Script is consumed one step per ReadFrame call.
	Script []Step

	// Generate supplies step n (0-based, counted past the end of Script)
	// once Script is exhausted. Optional.
	Generate func(n int) Step

	// OpenErrs are returned by successive Open calls; nil entries and calls
	// past the end of the slice succeed.
	OpenErrs []error

	// OpenCalls records how many times Open was called.
	OpenCalls int

	// CloseCalls records how many streams were closed.
	CloseCalls int

	// Reads records how many frames were served.
	Reads int

	// MaxOpen records the largest number of simultaneously open streams.
	MaxOpen int

	open      int
	pos       int
	generated int
}

var _ capture.Device = (*Device)(nil)

// Open implements [capture.Device].
func (d *Device) Open(_ context.Context, format audio.Format, frameSize int) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	call := d.OpenCalls
	d.OpenCalls++
	if call < len(d.OpenErrs) && d.OpenErrs[call] != nil {
		return nil, d.OpenErrs[call]
	}
	d.open++
	d.MaxOpen = max(d.MaxOpen, d.open)
	return &stream{dev: d, format: format, frameSize: frameSize}, nil
}

// OpenStreams returns the number of streams currently open.
func (d *Device) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Remaining returns the number of unread steps in Script.
func (d *Device) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Script) - d.pos
}

func (d *Device) next() (Step, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos < len(d.Script) {
		s := d.Script[d.pos]
		d.pos++
		return s, true
	}
	if d.Generate != nil {
		s := d.Generate(d.generated)
		d.generated++
		return s, true
	}
	return Step{}, false
}

type stream struct {
	dev       *Device
	format    audio.Format
	frameSize int

	mu     sync.Mutex
	closed bool
	index  int
}

func (s *stream) ReadFrame(ctx context.Context, timeout time.Duration) (audio.Frame, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return audio.Frame{}, capture.ErrClosed
	}

	step, ok := s.dev.next()
	if !ok {
		if err := wait(ctx, timeout); err != nil {
			return audio.Frame{}, err
		}
		return audio.Frame{}, capture.ErrTimeout
	}
	if step.Delay > 0 {
		if step.Delay > timeout {
			if err := wait(ctx, timeout); err != nil {
				return audio.Frame{}, err
			}
			return audio.Frame{}, capture.ErrTimeout
		}
		if err := wait(ctx, step.Delay); err != nil {
			return audio.Frame{}, err
		}
	}
	if step.Err != nil {
		return audio.Frame{}, step.Err
	}

	s.mu.Lock()
	idx := s.index
	s.index++
	s.mu.Unlock()

	s.dev.mu.Lock()
	s.dev.Reads++
	s.dev.mu.Unlock()

	return audio.Frame{
		Data:      step.Data,
		Format:    s.format,
		Timestamp: s.format.Duration(idx * len(step.Data)),
	}, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.dev.mu.Lock()
	s.dev.open--
	s.dev.CloseCalls++
	s.dev.mu.Unlock()
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Frame returns a mono frame of n samples alternating between +level and
// -level, so both its peak and its RMS equal level.
func Frame(n, level int) []byte {
	buf := make([]byte, n*2)
	for i := range n {
		v := int16(level)
		if i%2 == 1 {
			v = -v
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// Repeat returns count steps serving data.
func Repeat(data []byte, count int) []Step {
	steps := make([]Step, count)
	for i := range steps {
		steps[i] = Step{Data: data}
	}
	return steps
}
