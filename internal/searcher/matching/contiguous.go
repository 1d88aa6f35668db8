package matching

import (
	"cmp"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
)

// Contiguous finds exact runs of consecutive query words that appear as
// consecutive line words. Only maximal runs are recorded: a run that can be
// extended by the next query word and the next line word is not reported on
// its own.
type Contiguous struct{}

func (Contiguous) Name() string { return StrategyContiguous }

func (Contiguous) MatchLine(query, line []vocabulary.ID, lineNo int) LineMatches {
	matches := make(LineMatches)
	if len(query) == 0 || len(line) == 0 {
		return matches
	}

	runs := newTable(len(query), len(line))
	for m := range query {
		for n := range line {
			if query[m] != line[n] {
				continue
			}
			length := runs.at(m-1, n-1) + 1
			runs.set(m, n, length)
			extends := m+1 < len(query) && n+1 < len(line) && query[m+1] == line[n+1]
			if !extends {
				matches[length] = append(matches[length], trailingWindow(line, lineNo, n, length))
			}
		}
	}

	for _, windows := range matches {
		slices.SortStableFunc(windows, func(a, b Window) int {
			return cmp.Compare(a.Start, b.Start)
		})
	}
	return matches
}
