// Package textprep normalizes user text before it is sent to a synthesizer.
package textprep

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var punctuation = map[rune]rune{
	'。': '.',
	'？': '?',
	'！': '!',
}

// fullWidthPunctuation only touches runes in the table; everything else,
// including ill-formed UTF-8, passes through untouched.
var fullWidthPunctuation = runes.If(
	runes.Predicate(func(r rune) bool {
		_, ok := punctuation[r]
		return ok
	}),
	runes.Map(func(r rune) rune { return punctuation[r] }),
	nil,
)

// Normalize maps the ideographic full stop, question mark and exclamation
// mark to ASCII and trims surrounding whitespace. Normalize(Normalize(s))
// equals Normalize(s).
func Normalize(text string) string {
	mapped, _, err := transform.String(fullWidthPunctuation, text)
	if err != nil {
		// The transformer never fails on a complete string.
		mapped = text
	}
	return strings.TrimSpace(mapped)
}
