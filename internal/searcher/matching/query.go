package matching

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
)

// Query is an immutable ordered sequence of words to align against a
// document. It may contain words the document never uses; they simply never
// match.
type Query struct {
	words []vocabulary.ID
	raw   string
}

// NewQuery copies words into a Query.
func NewQuery(words []vocabulary.ID) Query {
	return Query{words: slices.Clone(words)}
}

// ParseQuery splits text the same way documents are split and looks every
// token up in registry. Unseen tokens become vocabulary.Unknown.
func ParseQuery(text string, registry *vocabulary.Registry, splitter tokenizer.Splitter) Query {
	return Query{
		words: registry.LookupAll(splitter.Split(text)),
		raw:   text,
	}
}

// Words returns the query words. The slice must not be modified.
func (q Query) Words() []vocabulary.ID { return slices.Clip(q.words) }

// Len returns the number of words.
func (q Query) Len() int { return len(q.words) }

// Raw returns the text the query was parsed from, if any.
func (q Query) Raw() string { return q.raw }

// Known reports whether at least one query word is a registered word.
func (q Query) Known() bool {
	for _, w := range q.words {
		if w != vocabulary.Unknown {
			return true
		}
	}
	return false
}
