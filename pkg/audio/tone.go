package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Tone generates a sine wave of the given frequency and duration as 16-bit
// PCM in format f. amplitude is a fraction of full scale in [0, 1].
func Tone(f Format, freq float64, d time.Duration, amplitude float64) []byte {
	amplitude = max(0, min(amplitude, 1))
	samples := int(float64(f.SampleRate) * d.Seconds())
	if samples <= 0 || f.Channels <= 0 {
		return nil
	}

	out := make([]byte, samples*f.Channels*2)
	for i := range samples {
		v := int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(f.SampleRate)))
		for ch := range f.Channels {
			off := (i*f.Channels + ch) * 2
			binary.LittleEndian.PutUint16(out[off:off+2], uint16(v))
		}
	}
	return out
}
