// Package tokenizer splits raw document lines into token strings. It does not
// normalise tokens; that is the vocabulary registry's job.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Splitter breaks one line of text into raw tokens, in order.
type Splitter interface {
	Split(line string) []string
}

// Whitespace splits on runs of Unicode whitespace. Punctuation stays attached
// to its word ("Alderaan." is one token).
type Whitespace struct{}

func (Whitespace) Split(line string) []string {
	return strings.Fields(line)
}

// Words segments a line on UAX #29 word boundaries and drops segments that
// contain no letter or digit.
type Words struct{}

func (Words) Split(line string) []string {
	segments := words.FromString(line)
	tokens := make([]string, 0, len(line)/4)
	for segments.Next() {
		seg := segments.Value()
		if isWordLike(seg) {
			tokens = append(tokens, seg)
		}
	}
	return tokens
}

// StopWordFilter removes English stop words from the tokens produced by the
// wrapped splitter. Comparison ignores case.
type StopWordFilter struct {
	Next Splitter
}

func (f StopWordFilter) Split(line string) []string {
	tokens := f.Next.Split(line)
	kept := tokens[:0]
	for _, token := range tokens {
		if IsStopWord(token) {
			continue
		}
		kept = append(kept, token)
	}
	return kept
}

// IsStopWord reports whether token is on the stop-word list.
func IsStopWord(token string) bool {
	_, ok := stopWords[strings.ToLower(token)]
	return ok
}

// ByName resolves a splitter from configuration, optionally wrapped in a
// StopWordFilter.
func ByName(name string, dropStopWords bool) (Splitter, error) {
	var s Splitter
	switch name {
	case "", "whitespace":
		s = Whitespace{}
	case "words":
		s = Words{}
	default:
		return nil, fmt.Errorf("unknown splitter %q", name)
	}
	if dropStopWords {
		s = StopWordFilter{Next: s}
	}
	return s, nil
}

func isWordLike(seg string) bool {
	for _, r := range seg {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
