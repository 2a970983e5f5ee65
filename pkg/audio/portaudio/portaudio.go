// Package portaudio binds the pipeline's capture and playback contracts to
// the PortAudio library via github.com/gordonklaus/portaudio.
//
// PortAudio must be initialised before any stream is opened and terminated
// once at exit. [Host] reference-counts that so the microphone and the
// playback mixer can share one library instance.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/friday/pkg/audio"
	"github.com/MrWong99/friday/pkg/audio/capture"
)

// Host owns the PortAudio library lifetime.
type Host struct {
	mu   sync.Mutex
	refs int
}

// Acquire initialises PortAudio on first use.
func (h *Host) Acquire() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		if err := pa.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	h.refs++
	return nil
}

// Release terminates PortAudio when the last user lets go.
func (h *Host) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return nil
	}
	h.refs--
	if h.refs == 0 {
		return pa.Terminate()
	}
	return nil
}

// DeviceInfo is a summary of an audio device for status output.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Devices lists all devices PortAudio can see. The host must be acquired.
func Devices() ([]DeviceInfo, error) {
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		out = append(out, DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return out, nil
}

// findInput returns the input device whose name contains name
// (case-insensitive), or the default input device when name is empty.
func findInput(name string) (*pa.DeviceInfo, error) {
	if name == "" {
		return pa.DefaultInputDevice()
	}
	devs, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", name)
}

// ─── Microphone ──────────────────────────────────────────────────────────────

// Microphone is a [capture.Device] backed by a PortAudio input stream.
type Microphone struct {
	host   *Host
	device string
}

var _ capture.Device = (*Microphone)(nil)

// NewMicrophone returns a microphone on the named input device. An empty name
// selects the system default input.
func NewMicrophone(host *Host, device string) *Microphone {
	return &Microphone{host: host, device: device}
}

// Open implements [capture.Device].
func (m *Microphone) Open(ctx context.Context, format audio.Format, frameSize int) (capture.Stream, error) {
	if err := m.host.Acquire(); err != nil {
		return nil, fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
	}

	dev, err := findInput(m.device)
	if err != nil {
		_ = m.host.Release()
		return nil, fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
	}

	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: format.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: frameSize,
	}

	buf := make([]int16, frameSize*format.Channels)
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		_ = m.host.Release()
		return nil, fmt.Errorf("%w: open %q: %w", capture.ErrDeviceUnavailable, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = m.host.Release()
		return nil, fmt.Errorf("%w: start %q: %w", capture.ErrDeviceUnavailable, dev.Name, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &micStream{
		host:    m.host,
		stream:  stream,
		buf:     buf,
		format:  format,
		frames:  make(chan micResult, 8),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go s.readLoop(readCtx, dev.Name)

	slog.Debug("portaudio: microphone opened", "device", dev.Name, "format", format.String(), "frame_size", frameSize)
	return s, nil
}

type micResult struct {
	frame audio.Frame
	err   error
}

type micStream struct {
	host   *Host
	stream *pa.Stream
	buf    []int16
	format audio.Format

	frames  chan micResult
	cancel  context.CancelFunc
	stopped chan struct{}

	stopOnce  sync.Once
	closeOnce sync.Once
}

// readLoop turns PortAudio's blocking Read into a channel of frames so that
// ReadFrame can honour its timeout.
func (s *micStream) readLoop(ctx context.Context, device string) {
	defer close(s.stopped)
	defer s.stop()

	var offset time.Duration
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.stream.Read()
		if err != nil && !errors.Is(err, pa.InputOverflowed) {
			slog.Debug("portaudio: read error", "device", device, "err", err)
			select {
			case s.frames <- micResult{err: fmt.Errorf("%w: %w", capture.ErrDeviceError, err)}:
			case <-ctx.Done():
			}
			return
		}

		data := make([]byte, len(s.buf)*2)
		for i, v := range s.buf {
			data[i*2] = byte(v)
			data[i*2+1] = byte(v >> 8)
		}
		f := audio.Frame{Data: data, Format: s.format, Timestamp: offset}
		offset += f.Duration()

		select {
		case s.frames <- micResult{frame: f}:
		case <-ctx.Done():
			return
		default:
			slog.Debug("portaudio: frame buffer full, dropping frame", "device", device)
		}
	}
}

func (s *micStream) ReadFrame(ctx context.Context, timeout time.Duration) (audio.Frame, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case r, ok := <-s.frames:
		if !ok {
			return audio.Frame{}, capture.ErrClosed
		}
		return r.frame, r.err
	case <-s.stopped:
		return audio.Frame{}, capture.ErrClosed
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-t.C:
		return audio.Frame{}, capture.ErrTimeout
	}
}

func (s *micStream) stop() {
	s.stopOnce.Do(func() {
		_ = s.stream.Stop()
		_ = s.stream.Close()
		_ = s.host.Release()
	})
}

// Close stops the read loop and waits briefly for it to release the device.
func (s *micStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		select {
		case <-s.stopped:
		case <-time.After(time.Second):
			s.stop()
		}
	})
	return nil
}
