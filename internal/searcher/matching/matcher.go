// Package matching aligns queries with document images. A Strategy scores a
// single line; a Matcher runs a strategy over every line of an image and
// merges the per-line results into one Result grouped by run length.
package matching

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/document"
)

// Matcher searches one document image for one query.
type Matcher interface {
	Search(img *document.Image, q Query) *Result
}

// ContextMatcher is a Matcher that can be cancelled between lines. A
// cancelled search returns an error and no partial result.
type ContextMatcher interface {
	Matcher
	SearchContext(ctx context.Context, img *document.Image, q Query) (*Result, error)
	Strategy() Strategy
}

// New returns a sequential matcher for workers <= 1 and a parallel one
// otherwise. Both produce identical results.
func New(strategy Strategy, workers int) ContextMatcher {
	if workers <= 1 {
		return NewLineMatcher(strategy)
	}
	return NewParallel(strategy, workers)
}

// LineMatcher runs its strategy over the lines of an image one at a time.
type LineMatcher struct {
	strategy Strategy
}

func NewLineMatcher(strategy Strategy) *LineMatcher {
	return &LineMatcher{strategy: strategy}
}

func (lm *LineMatcher) Strategy() Strategy { return lm.strategy }

func (lm *LineMatcher) Search(img *document.Image, q Query) *Result {
	result, _ := lm.SearchContext(context.Background(), img, q)
	return result
}

func (lm *LineMatcher) SearchContext(ctx context.Context, img *document.Image, q Query) (*Result, error) {
	acc := newAccumulator()
	query := q.Words()
	for _, lineNo := range candidateLines(img, q) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("searching %s: %w", img.Name(), err)
		}
		acc.add(lm.strategy.MatchLine(query, img.Line(lineNo), lineNo))
	}
	return acc.result(), nil
}

// candidateLines returns the lines holding at least one query word. Lines
// without any query word can not produce a match under any strategy, so the
// occurrence index lets the matcher skip them.
func candidateLines(img *document.Image, q Query) []int {
	if q.Len() == 0 {
		return nil
	}
	return img.LinesContaining(q.Words())
}
