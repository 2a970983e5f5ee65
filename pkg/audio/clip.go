package audio

// Container names for [Clip.Format].
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatAIFF = "aiff"
)

// Clip is a finished piece of synthesised speech handed to playback.
//
// A clip is either a playable byte container (Data + Format) or the "played"
// marker returned by speech engines that render audio themselves. Played clips
// carry no data and need no further playback.
type Clip struct {
	Data   []byte
	Format string
	Played bool
}

// Played is the clip returned by engines that have already spoken the text.
var Played = Clip{Played: true}

// NewClip returns a clip for data, sniffing the container format from its
// header when format is empty.
func NewClip(data []byte, format string) Clip {
	if format == "" {
		format = SniffFormat(data)
	}
	return Clip{Data: data, Format: format}
}

// Len returns the number of bytes in the clip.
func (c Clip) Len() int {
	return len(c.Data)
}

// SniffFormat guesses the container format of data from its magic bytes.
// Unknown data is reported as MP3, the format cloud engines default to.
func SniffFormat(data []byte) string {
	switch {
	case IsWAV(data):
		return FormatWAV
	case len(data) >= 12 && string(data[0:4]) == "FORM" && string(data[8:12]) == "AIFF":
		return FormatAIFF
	default:
		return FormatMP3
	}
}
