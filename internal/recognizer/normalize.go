package recognizer

import (
	"strings"
	"unicode"
)

// Normalize cleans up one recognized fragment: trim, collapse repeated
// whitespace, capitalize the first letter, and promote the standalone
// lowercase pronoun "i" to "I".
func Normalize(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		if f == "i" {
			fields[i] = "I"
		}
	}
	out := strings.Join(fields, " ")
	if out == "" {
		return out
	}
	runes := []rune(out)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
