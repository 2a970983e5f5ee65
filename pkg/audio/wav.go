package audio

import (
	"encoding/binary"
	"errors"
)

// WAV header layout errors returned by [ParseWAV].
var (
	ErrWAVTooShort = errors.New("audio: WAV data too short to be a RIFF file")
	ErrWAVHeader   = errors.New("audio: missing RIFF/WAVE header")
	ErrWAVNoData   = errors.New("audio: WAV data chunk not found")
	ErrWAVEncoding = errors.New("audio: only 16-bit PCM WAV is supported")
)

const wavHeaderSize = 44

// EncodeWAV wraps raw 16-bit PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, format Format) []byte {
	byteRate := format.BytesPerSecond()
	blockAlign := format.Channels * BitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[wavHeaderSize:], pcm)

	return buf
}

// ParseWAV walks the RIFF chunks of a WAV file and returns its format and the
// PCM payload of the data chunk. Only 16-bit PCM is accepted.
func ParseWAV(wav []byte) (Format, []byte, error) {
	if len(wav) < 12 {
		return Format{}, nil, ErrWAVTooShort
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Format{}, nil, ErrWAVHeader
	}

	var (
		format   Format
		foundFmt bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return Format{}, nil, ErrWAVHeader
			}
			if binary.LittleEndian.Uint16(wav[body+14:body+16]) != BitsPerSample {
				return Format{}, nil, ErrWAVEncoding
			}
			format.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return Format{}, nil, ErrWAVHeader
			}
			end := body + size
			// Streaming encoders write a placeholder size; clamp to what we have.
			if end > len(wav) || size == 0 {
				end = len(wav)
			}
			return format, wav[body:end], nil
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return Format{}, nil, ErrWAVNoData
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
