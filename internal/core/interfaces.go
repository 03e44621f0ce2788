// Package core defines the shared types and interfaces for voicegen.
package core

import (
	"context"
	"strings"
)

// Fixed synthesis output settings. They are not user-configurable.
const (
	FormatMP3         = "MP3"
	DefaultSampleRate = 48000
	ChannelStereo     = "STEREO"
)

// DefaultStyle is substituted when a voice declares no styles.
const DefaultStyle = "default"

// Pitch bounds, in percent. Front ends clamp to this range.
const (
	MinPitch = -30
	MaxPitch = 30
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Voice describes a synthesizer identity exposed by the remote API.
type Voice struct {
	ID          string   `json:"voice_id"`
	DisplayName string   `json:"display_name"`
	Locale      string   `json:"locale,omitempty"`
	Styles      []string `json:"available_styles,omitempty"`
}

// Request is the JSON payload of a synthesis call.
type Request struct {
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id"`
	Style       string `json:"style"`
	Pitch       int    `json:"pitch"`
	Format      string `json:"format"`
	SampleRate  int    `json:"sample_rate"`
	ChannelType string `json:"channel_type"`
}

// SpeechResponse is the decoded body of a 2xx synthesis response.
// Either field may be missing.
type SpeechResponse struct {
	AudioFile string `json:"audio_file,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Result is the outcome of one synthesis attempt. Exactly one of
// AudioURL and ErrorDetail is set.
type Result struct {
	AudioURL    string `json:"audio_url,omitempty"`
	ErrorDetail string `json:"error,omitempty"`
}

// Succeeded returns a successful Result.
func Succeeded(audioURL string) Result {
	return Result{AudioURL: audioURL, ErrorDetail: ""}
}

// Failed returns a failed Result.
func Failed(detail string) Result {
	return Result{AudioURL: "", ErrorDetail: detail}
}

// OK reports whether the attempt produced an audio location.
func (r Result) OK() bool {
	return strings.TrimSpace(r.AudioURL) != ""
}

// Synthesizer is the remote API as seen by the session.
type Synthesizer interface {
	ListVoices(ctx context.Context) ([]Voice, error)
	Synthesize(ctx context.Context, req Request) (Result, error)
}
