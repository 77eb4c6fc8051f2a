package utils

import (
	"strings"
	"unicode"
)

// ToMongoName converts snake_case identifiers to camelCase. Names without an
// underscore are returned unchanged.
func ToMongoName(name string) string {
	if !strings.Contains(name, "_") {
		return name
	}
	return Camelize(strings.ReplaceAll(name, "_", " "))
}

// Camelize joins space separated words, lower casing the first letter of the
// first word and upper casing the first letter of every following word.
func Camelize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	first := true
	startOfWord := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			startOfWord = true
			continue
		}
		switch {
		case first:
			b.WriteRune(unicode.ToLower(r))
			first = false
		case startOfWord:
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(r)
		}
		startOfWord = false
	}
	return b.String()
}
