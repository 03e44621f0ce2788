// Package catalog resolves the raw voice list into the selectable catalog.
package catalog

import (
	"slices"
	"strings"

	"github.com/book-expert/voicegen/internal/core"
)

// Supported voice ID prefixes, compared case-insensitively.
var supportedPrefixes = map[string]string{
	"en-us-": "en-US",
	"en-uk-": "en-UK",
}

// Catalog maps display names to voices. Names are kept sorted.
// A nil *Catalog is an empty catalog.
type Catalog struct {
	voices     map[string]core.Voice
	names      []string
	collisions []string
}

// Build filters raw to the supported English locales, normalizes styles
// and sorts by display name. Later entries overwrite earlier ones with the
// same display name.
func Build(raw []core.Voice) *Catalog {
	cat := &Catalog{
		voices:     make(map[string]core.Voice, len(raw)),
		names:      nil,
		collisions: nil,
	}

	for _, voice := range raw {
		locale, ok := localeOf(voice.ID)
		if !ok {
			continue
		}

		if voice.Locale == "" {
			voice.Locale = locale
		}

		voice.Styles = normalizeStyles(voice.Styles)

		if _, exists := cat.voices[voice.DisplayName]; exists {
			cat.collisions = append(cat.collisions, voice.DisplayName)
		}

		cat.voices[voice.DisplayName] = voice
	}

	cat.names = make([]string, 0, len(cat.voices))
	for name := range cat.voices {
		cat.names = append(cat.names, name)
	}

	slices.Sort(cat.names)

	return cat
}

// Len returns the number of voices.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}

	return len(c.names)
}

// Names returns the display names in order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}

	return slices.Clone(c.names)
}

// Voices returns the voices ordered by display name.
func (c *Catalog) Voices() []core.Voice {
	if c == nil {
		return nil
	}

	voices := make([]core.Voice, 0, len(c.names))
	for _, name := range c.names {
		voices = append(voices, c.voices[name])
	}

	return voices
}

// Lookup returns the voice with the given display name.
func (c *Catalog) Lookup(displayName string) (core.Voice, bool) {
	if c == nil {
		return core.Voice{}, false
	}

	voice, ok := c.voices[displayName]

	return voice, ok
}

// StylesFor returns the styles of displayName, or an empty slice when the
// name is unknown.
func (c *Catalog) StylesFor(displayName string) []string {
	voice, ok := c.Lookup(displayName)
	if !ok {
		return []string{}
	}

	return slices.Clone(voice.Styles)
}

// Collisions lists display names that were overwritten during Build,
// once per overwrite.
func (c *Catalog) Collisions() []string {
	if c == nil {
		return nil
	}

	return slices.Clone(c.collisions)
}

func localeOf(voiceID string) (string, bool) {
	lower := strings.ToLower(voiceID)

	for prefix, locale := range supportedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return locale, true
		}
	}

	return "", false
}

// normalizeStyles drops blanks and duplicates, keeping first occurrences.
func normalizeStyles(styles []string) []string {
	out := make([]string, 0, len(styles))

	for _, style := range styles {
		if strings.TrimSpace(style) == "" || slices.Contains(out, style) {
			continue
		}

		out = append(out, style)
	}

	if len(out) == 0 {
		return []string{core.DefaultStyle}
	}

	return out
}
