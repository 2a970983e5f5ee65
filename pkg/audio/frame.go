// Package audio defines the PCM primitives shared by the capture, recording,
// transcription and playback layers.
//
// All PCM in this package is signed 16-bit little-endian. The sample rate and
// channel count are carried alongside the bytes in a [Format] and are fixed
// for the lifetime of a capture session.
package audio

import (
	"fmt"
	"time"
)

// BitsPerSample is the sample width of every PCM buffer handled by the pipeline.
const BitsPerSample = 16

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate reports whether f describes a usable PCM stream.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("audio: channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// BytesPerSecond returns the PCM byte rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BitsPerSample / 8
}

// Duration returns how long n bytes of PCM in format f play for.
// Returns 0 for an invalid format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Frame is a single fixed-length block of PCM read from a capture device.
// A Frame is immutable once captured and owned by whoever read it.
type Frame struct {
	// Data holds the PCM samples.
	Data []byte

	// Format of Data.
	Format Format

	// Timestamp is the offset of the first sample relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return f.Format.Duration(len(f.Data))
}

// Peak returns the largest absolute sample value in the frame.
func (f Frame) Peak() int {
	return Peak(f.Data)
}

// RMS returns the root-mean-square energy of the frame.
func (f Frame) RMS() float64 {
	return RMS(f.Data)
}

// Buffer is an ordered run of frames concatenated into one contiguous PCM
// byte slice. It is produced by a recorder and consumed once by a
// transcriber.
type Buffer struct {
	Data   []byte
	Format Format

	// Frames is the number of frames appended to the buffer.
	Frames int
}

// NewBuffer returns an empty buffer for the given format.
func NewBuffer(format Format) *Buffer {
	return &Buffer{Format: format}
}

// Append copies the frame data onto the end of the buffer.
func (b *Buffer) Append(f Frame) {
	b.Data = append(b.Data, f.Data...)
	b.Frames++
}

// Len returns the number of PCM bytes in the buffer.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil {
		return 0
	}
	return b.Format.Duration(len(b.Data))
}

// WAV returns the buffer wrapped in a RIFF/WAVE container.
func (b *Buffer) WAV() []byte {
	return EncodeWAV(b.Data, b.Format)
}
