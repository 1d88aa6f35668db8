package vocabulary

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalizer maps raw token text to the canonical text that identifies a
// word. Implementations must be safe for concurrent use.
type Normalizer interface {
	Normalize(raw string) string
}

// Identity keeps token text exactly as split, so "Kenobi." and "kenobi" are
// different words.
type Identity struct{}

func (Identity) Normalize(raw string) string { return raw }

// CaseFold applies NFKC normalisation followed by Unicode case folding.
type CaseFold struct{}

func (CaseFold) Normalize(raw string) string {
	// a Caser carries state and must not be shared between goroutines
	return cases.Fold().String(norm.NFKC.String(raw))
}

// Stemming case-folds, trims surrounding punctuation and strips common
// English suffixes so "delivered" and "delivering" share an ID.
type Stemming struct{}

func (Stemming) Normalize(raw string) string {
	folded := CaseFold{}.Normalize(raw)
	trimmed := strings.TrimFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if trimmed == "" {
		return folded
	}
	return stem(trimmed)
}

// NormalizerByName resolves the names used in configuration and CLI flags.
func NormalizerByName(name string) (Normalizer, error) {
	switch name {
	case "", "identity":
		return Identity{}, nil
	case "casefold":
		return CaseFold{}, nil
	case "stem":
		return Stemming{}, nil
	default:
		return nil, fmt.Errorf("unknown normalizer %q", name)
	}
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem applies the first matching suffix rule whose result keeps at least
// minLen bytes.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
