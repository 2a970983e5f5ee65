package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/friday/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	got := bytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	t.Parallel()

	got := bytesToSamples(audio.StereoToMono(samplesToBytes([]int16{32767, 32767})))
	if len(got) != 1 || got[0] != 32767 {
		t.Errorf("got %v, want [32767]", got)
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		src, dst int
		want     int
	}{
		{name: "same rate", in: []int16{100, 200, 300}, src: 16000, dst: 16000, want: 3},
		{name: "upsample", in: []int16{1000, 2000}, src: 16000, dst: 48000, want: 6},
		{name: "downsample", in: []int16{100, 200, 300, 400, 500, 600}, src: 48000, dst: 16000, want: 2},
		{name: "zero rate", in: []int16{100, 200}, src: 0, dst: 16000, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.ResampleMono16(samplesToBytes(tt.in), tt.src, tt.dst))
			if len(got) != tt.want {
				t.Errorf("got %d samples, want %d", len(got), tt.want)
			}
		})
	}
}

func TestToMono(t *testing.T) {
	t.Parallel()

	stereo48k := samplesToBytes([]int16{100, 300, 100, 300, 100, 300, 100, 300, 100, 300, 100, 300})
	got := bytesToSamples(audio.ToMono(stereo48k, audio.Format{SampleRate: 48000, Channels: 2}, 16000))
	if len(got) != 2 {
		t.Fatalf("got %d samples, want 2", len(got))
	}
	for i, s := range got {
		if s != 200 {
			t.Errorf("sample %d: got %d, want 200", i, s)
		}
	}
}

func TestFloat32(t *testing.T) {
	t.Parallel()

	got := audio.Float32(samplesToBytes([]int16{0, -32768, 16384}))
	want := []float32{0, -1, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
