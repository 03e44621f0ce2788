// Package synthesis builds validated synthesis requests and interprets
// the service's responses.
package synthesis

import (
	"slices"
	"strings"

	"github.com/book-expert/voicegen/internal/catalog"
	"github.com/book-expert/voicegen/internal/core"
)

// Build validates the user's selection and returns the request to send.
//
// Checks run in order and the first failure is returned as a
// *core.ValidationError: empty text, no style, unknown voice, style not
// offered by the voice. Pitch is not re-validated; callers clamp it with
// ClampPitch first.
func Build(cat *catalog.Catalog, displayName, style, text string, pitch int) (core.Request, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return core.Request{}, &core.ValidationError{Reason: core.ReasonEmptyText}
	}

	if strings.TrimSpace(style) == "" {
		return core.Request{}, &core.ValidationError{Reason: core.ReasonNoStyleSelected}
	}

	voice, ok := cat.Lookup(displayName)
	if !ok || voice.ID == "" {
		return core.Request{}, &core.ValidationError{Reason: core.ReasonUnknownVoice}
	}

	if !slices.Contains(voice.Styles, style) {
		return core.Request{}, &core.ValidationError{Reason: core.ReasonUnsupportedStyle}
	}

	return core.Request{
		Text:        trimmed,
		VoiceID:     voice.ID,
		Style:       style,
		Pitch:       pitch,
		Format:      core.FormatMP3,
		SampleRate:  core.DefaultSampleRate,
		ChannelType: core.ChannelStereo,
	}, nil
}

// ClampPitch bounds pitch to [core.MinPitch, core.MaxPitch].
func ClampPitch(pitch int) int {
	return min(max(pitch, core.MinPitch), core.MaxPitch)
}

// DefaultSelection picks the voice and style a front end shows first:
// preferred when the catalog has it, else the first voice, with that
// voice's first style. Both are empty for an empty catalog.
func DefaultSelection(cat *catalog.Catalog, preferred string) (string, string) {
	name := preferred
	if _, ok := cat.Lookup(name); !ok {
		names := cat.Names()
		if len(names) == 0 {
			return "", ""
		}

		name = names[0]
	}

	styles := cat.StylesFor(name)
	if len(styles) == 0 {
		return name, ""
	}

	return name, styles[0]
}
