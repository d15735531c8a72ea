package render

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// GenerateFilename creates a filename from track metadata.
// This is a pure function: (artist, album, track, title) → filename
//
// Format: Artist-Album-NN-Title.wav
// Empty artist or album components are left out.
//
// Character handling:
// - Non-ASCII → normalized to ASCII equivalents (ō→o, é→e)
// - Spaces, slashes and shell metacharacters → underscores
// - Quotes (' " `) → removed
// - Runs of underscores collapse; leading/trailing underscores are trimmed
func GenerateFilename(artist, album string, track int, title string) string {
	var parts []string
	for _, s := range []string{artist, album} {
		if s = sanitize(s); s != "" {
			parts = append(parts, s)
		}
	}

	parts = append(parts, fmt.Sprintf("%02d", track))

	if title = sanitize(title); title != "" {
		parts = append(parts, title)
	}

	return strings.Join(parts, "-") + ".wav"
}

// sanitize prepares a string for use in a filename.
// Replaces characters that are illegal or require shell quoting.
func sanitize(s string) string {
	s = normalizeToASCII(s)

	var b strings.Builder
	b.Grow(len(s))

	lastWasUnderscore := false
	for _, r := range s {
		switch r {
		case '\'', '"', '`':
			// removed

		case ' ', '\t',
			'/', '\\', // filesystem-illegal
			'$', '!', // shell expansion
			'*', '?', '[', ']', // glob patterns
			'(', ')', '{', '}', // subshell, brace expansion
			'<', '>', '|', '&', ';', '#', '%':
			if !lastWasUnderscore {
				b.WriteByte('_')
				lastWasUnderscore = true
			}

		default:
			b.WriteRune(r)
			lastWasUnderscore = r == '_'
		}
	}

	return strings.Trim(b.String(), "_")
}

// normalizeToASCII decomposes characters with NFKD (ō→o, é→e) and strips
// whatever non-ASCII remains.
func normalizeToASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, _ := transform.String(t, s)

	var b strings.Builder
	for _, r := range result {
		if r < 128 && unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
