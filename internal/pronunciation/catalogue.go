package pronunciation

import (
	"fmt"
	"strings"
)

var errorCatalogue = []string{
	"Vowel length not distinguished",
	"Consonant cluster simplification",
	"Wrong stress pattern",
	"Voiced/voiceless confusion",
	"R/L substitution",
	"Th-sound substitution",
	"Final consonant dropping",
}

const suggestionCount = 7

func suggestionFor(word string, n int) string {
	switch n % suggestionCount {
	case 0:
		return fmt.Sprintf("Practice the individual sounds in %q slowly", word)
	case 1:
		return fmt.Sprintf("Focus on mouth position when saying %q", word)
	case 2:
		return fmt.Sprintf("Record yourself saying %q and compare", word)
	case 3:
		return fmt.Sprintf("Break %q into syllables: %s", word, strings.Join(strings.Split(word, ""), "-"))
	case 4:
		return fmt.Sprintf("Listen to native speakers pronounce %q", word)
	case 5:
		return fmt.Sprintf("Practice %q in different sentences", word)
	default:
		return fmt.Sprintf("Use a mirror to watch your mouth movements on %q", word)
	}
}
