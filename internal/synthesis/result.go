package synthesis

import (
	"strings"

	"github.com/book-expert/voicegen/internal/core"
)

// NoAudioDetail is reported when the service returns neither an audio
// location nor a message.
const NoAudioDetail = "no audio file returned"

// Interpret classifies a synthesis response. It never fails: err and a
// missing audio location both become a failed Result.
func Interpret(resp *core.SpeechResponse, err error) core.Result {
	if err != nil {
		return core.Failed(err.Error())
	}

	if resp == nil {
		return core.Failed(NoAudioDetail)
	}

	audioURL := strings.TrimSpace(resp.AudioFile)
	if audioURL != "" {
		return core.Succeeded(audioURL)
	}

	message := strings.TrimSpace(resp.Message)
	if message != "" {
		return core.Failed(message)
	}

	return core.Failed(NoAudioDetail)
}
