package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/friday/pkg/audio"
)

const outputFramesPerBuffer = 1024

// Speaker renders 16-bit PCM through a PortAudio output stream.
type Speaker struct {
	host *Host
}

// NewSpeaker returns a speaker on the system default output device.
func NewSpeaker(host *Host) *Speaker {
	return &Speaker{host: host}
}

// Play writes pcm to the default output and returns once the last buffer
// has been handed to the device or ctx is cancelled.
func (s *Speaker) Play(ctx context.Context, pcm []byte, format audio.Format) error {
	if err := format.Validate(); err != nil {
		return fmt.Errorf("portaudio: %w", err)
	}
	if err := s.host.Acquire(); err != nil {
		return err
	}
	defer s.host.Release()

	dev, err := pa.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("portaudio: default output: %w", err)
	}

	params := pa.StreamParameters{
		Output: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: format.Channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: outputFramesPerBuffer,
	}

	buf := make([]int16, outputFramesPerBuffer*format.Channels)
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output %q: %w", dev.Name, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output: %w", err)
	}
	defer stream.Stop()

	samples := len(pcm) / 2
	for off := 0; off < samples; off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range buf {
			j := off + i
			if j < samples {
				buf[i] = int16(binary.LittleEndian.Uint16(pcm[j*2 : j*2+2]))
			} else {
				buf[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}
