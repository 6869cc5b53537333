package keyword

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var wordRun = regexp.MustCompile(`[\pL\pM\pN]+`)

// Helper to check a single token against a list of tokens, ignoring case.
func TokenInSet(tok string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(tok, s) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r)
}

// true if text[start:end] is not glued to a letter or digit on either side
func wholeWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// Drops every word of text which is in allowed (ignoring case). Everything else, including punctuation and spacing, is left as it was.
//
// Used to keep whitelisted words from contributing to keyword matches.
func RemoveWords(text string, allowed []string) string {
	if len(allowed) == 0 {
		return text
	}
	return wordRun.ReplaceAllStringFunc(text, func(w string) string {
		if TokenInSet(w, allowed) {
			return ""
		}
		return w
	})
}
