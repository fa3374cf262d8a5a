// Package phoneme produces illustrative phoneme segmentations from spelling.
// It is a heuristic, not a phonetic transcription engine.
package phoneme

import (
	"strings"
	"unicode/utf8"
)

type mapping struct {
	pattern string
	phoneme string
}

// table is ordered: among patterns of equal length the earlier one wins.
var table = []mapping{
	{"tion", "ʃən"},
	{"sion", "ʒən"},
	{"igh", "aɪ"},
	{"th", "θ"},
	{"sh", "ʃ"},
	{"ch", "tʃ"},
	{"ph", "f"},
	{"gh", "f"},
	{"ng", "ŋ"},
	{"ck", "k"},
	{"qu", "kw"},
	{"wh", "w"},
	{"ee", "iː"},
	{"ea", "iː"},
	{"oo", "uː"},
	{"ou", "aʊ"},
	{"ai", "eɪ"},
	{"oi", "ɔɪ"},
	{"a", "æ"},
	{"e", "e"},
	{"i", "ɪ"},
	{"o", "ɒ"},
	{"u", "ʌ"},
	{"c", "k"},
	{"j", "dʒ"},
	{"y", "j"},
	{"x", "ks"},
	{"r", "r"},
}

var maxPatternLen = func() int {
	longest := 0
	for _, m := range table {
		if len(m.pattern) > longest {
			longest = len(m.pattern)
		}
	}
	return longest
}()

// Approximate splits word into phonemes with a greedy longest-match scan
// from left to right. Unmapped characters are emitted literally, so the
// result is never empty for non-empty input.
func Approximate(word string) []string {
	lower := strings.ToLower(word)
	out := make([]string, 0, len(lower))

	for i := 0; i < len(lower); {
		if p, n, ok := longestMatch(lower[i:]); ok {
			out = append(out, p)
			i += n
			continue
		}
		_, size := utf8.DecodeRuneInString(lower[i:])
		out = append(out, lower[i:i+size])
		i += size
	}
	return out
}

func longestMatch(rest string) (string, int, bool) {
	for length := maxPatternLen; length >= 1; length-- {
		if length > len(rest) {
			continue
		}
		candidate := rest[:length]
		for _, m := range table {
			if m.pattern == candidate {
				return m.phoneme, length, true
			}
		}
	}
	return "", 0, false
}
