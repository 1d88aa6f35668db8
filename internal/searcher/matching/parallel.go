package matching

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/document"
	"golang.org/x/sync/errgroup"
)

// ParallelMatcher aligns lines concurrently on a bounded number of
// goroutines. Per-line results are merged by original line index, so the
// output equals LineMatcher's.
type ParallelMatcher struct {
	strategy Strategy
	workers  int
}

func NewParallel(strategy Strategy, workers int) *ParallelMatcher {
	if workers < 1 {
		workers = 1
	}
	return &ParallelMatcher{strategy: strategy, workers: workers}
}

func (pm *ParallelMatcher) Strategy() Strategy { return pm.strategy }

func (pm *ParallelMatcher) Search(img *document.Image, q Query) *Result {
	result, _ := pm.SearchContext(context.Background(), img, q)
	return result
}

func (pm *ParallelMatcher) SearchContext(ctx context.Context, img *document.Image, q Query) (*Result, error) {
	lines := candidateLines(img, q)
	parts := make([]LineMatches, len(lines))
	query := q.Words()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pm.workers)
	for i, lineNo := range lines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = pm.strategy.MatchLine(query, img.Line(lineNo), lineNo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("searching %s: %w", img.Name(), err)
	}
	// errgroup only reports the first goroutine error; a cancellation that
	// landed after the last line started still counts as interrupted
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("searching %s: %w", img.Name(), err)
	}

	acc := newAccumulator()
	for _, part := range parts {
		acc.add(part)
	}
	return acc.result(), nil
}
