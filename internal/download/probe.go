package download

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/voicegen/internal/core"
	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 decodes to 16-bit stereo PCM.
const decodedBytesPerSample = 4

// Info describes a saved MP3 file.
type Info struct {
	SampleRate int
	Duration   time.Duration
}

// Probe reads the MP3 stream at path and reports its sample rate and
// playing time.
func Probe(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: failed to open %s: %w", core.ErrIOFailure, path, err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode mp3 %s: %w", path, err)
	}

	info := Info{SampleRate: decoder.SampleRate(), Duration: 0}

	length := decoder.Length()
	if length > 0 && info.SampleRate > 0 {
		samples := length / decodedBytesPerSample
		info.Duration = time.Duration(samples) * time.Second / time.Duration(info.SampleRate)
	}

	return info, nil
}
