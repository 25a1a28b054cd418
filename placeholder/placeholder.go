// Package placeholder masks non-translatable runtime tokens inside a
// dialogue string before it is sent to a translation backend, and
// restores them afterwards.
//
// Ren'Py dialogue mixes translatable prose with runtime substitutions:
// bracket interpolations ([player_name]), brace text tags ({i}...{/i}),
// printf-style format specifiers (%s, %(name)d) and backslash escapes
// (\n, \r, \t). A text model cannot be trusted to carry these through a
// translation unchanged, so each match is replaced left to right with a
// freshly numbered synthetic token (__RNPH_0__, __RNPH_1__, ...) that is
// substituted back after the reply arrives.
package placeholder

import (
	"fmt"
	"regexp"
	"strings"
)

// pattern matches, in priority order: bracket tags, brace tags,
// %(name)X and %X format specifiers, and \n \r \t escapes.
var pattern = regexp.MustCompile(`\[[^\]\n]+\]|\{[^{}\n]+\}|%\([^)]+\)[a-zA-Z]|%[sdif]|\\[nrt]`)

// tokenPattern matches the synthetic tokens produced by Mask.
var tokenPattern = regexp.MustCompile(`__RNPH_\d+__`)

// Mask replaces every recognized runtime token in text with a numbered
// synthetic token and returns the masked text plus the token-to-original
// mapping. The mapping is single-use: it belongs to this text only.
func Mask(text string) (string, map[string]string) {
	mapping := make(map[string]string)
	masked := pattern.ReplaceAllStringFunc(text, func(match string) string {
		token := fmt.Sprintf("__RNPH_%d__", len(mapping))
		mapping[token] = match
		return token
	})
	return masked, mapping
}

// Unmask substitutes every synthetic token in text back to its original
// value. Tokens are replaced in numbering order so that
// Unmask(Mask(t)) == t for any input.
func Unmask(text string, mapping map[string]string) string {
	restored := text
	for i := 0; i < len(mapping); i++ {
		token := fmt.Sprintf("__RNPH_%d__", i)
		original, ok := mapping[token]
		if !ok {
			continue
		}
		restored = strings.ReplaceAll(restored, token, original)
	}
	return restored
}

// HasTokens reports whether text still contains synthetic tokens. A
// translation that kept one is incomplete and must not be trusted.
func HasTokens(text string) bool {
	return tokenPattern.MatchString(text)
}
