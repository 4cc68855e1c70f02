package chunk

import (
	"strings"
	"unicode"
)

// minWordLen drops single-character noise from alphabetic runs. CJK
// characters are exempt: a single han character is a meaningful token.
const minWordLen = 2

// Tokenize normalizes text into lowercase search tokens. Alphanumeric
// runs become word tokens of at least two characters. Han runs are
// emitted as single characters plus overlapping 2-grams, so queries
// over Chinese text overlap indexed chunks without word segmentation.
// The same function analyzes chunk text at index time and queries at
// search time, keeping both in one vocabulary.
func Tokenize(text string) []string {
	var tokens []string
	var word []rune
	var han []rune

	flushWord := func() {
		if len(word) >= minWordLen {
			tokens = append(tokens, string(word))
		}
		word = word[:0]
	}
	flushHan := func() {
		for i := range han {
			tokens = append(tokens, string(han[i]))
			if i+1 < len(han) {
				tokens = append(tokens, string(han[i:i+2]))
			}
		}
		han = han[:0]
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case isHan(r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return tokens
}

// isHan reports whether r is in the CJK Unified Ideographs block.
func isHan(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}
