// Package casing converts identifiers between the storage convention
// (snake_case column names) and the application convention (camelCase field
// names).
package casing

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CamelCase converts an underscore-delimited name to camelCase. The first
// word is lower-cased; each following word has its first letter upper-cased
// and the rest lower-cased. Empty segments ("a__b", "_a", "a_") are skipped,
// so a leading underscore does not capitalize the first word: "_id" becomes
// "id", not "Id".
func CamelCase(underscored string) string {
	var b strings.Builder
	b.Grow(len(underscored))

	first := true
	for _, word := range strings.Split(underscored, "_") {
		if word == "" {
			continue
		}
		if first {
			b.WriteString(strings.ToLower(word))
			first = false
			continue
		}
		r, size := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(strings.ToLower(word[size:]))
	}
	return b.String()
}

// SnakeCase converts a camelCase name to snake_case by inserting an
// underscore wherever a lower-case letter or digit is followed by an
// upper-case letter, then lower-casing the result.
//
// SnakeCase(CamelCase(s)) == s holds for lower-case words of two or more
// letters, but not in general: single-letter words, leading digits, acronyms
// and doubled underscores do not survive ("a_b_c" comes back as "a_bc").
func SnakeCase(camel string) string {
	var b strings.Builder
	b.Grow(len(camel) + 4)

	var prev rune
	for i, r := range camel {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return b.String()
}
