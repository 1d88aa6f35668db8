package matching

import (
	"cmp"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
)

// Subsequence aligns the query with a line using a longest-common-subsequence
// run length that tolerates unmatched document words between matched query
// words.
//
// For query word m and line word n:
//
//	match:    L(m,n) = L(m-1,n-1) + 1
//	mismatch: L(m,n) = max(L(m-1,n), L(m,n-1))
//
// with every reference outside the table reading 0. Each time the match
// branch fires with run length ℓ, the ℓ line words ending at n are recorded
// as a window, whether or not the words inside it matched the query.
type Subsequence struct{}

func (Subsequence) Name() string { return StrategySubsequence }

func (Subsequence) MatchLine(query, line []vocabulary.ID, lineNo int) LineMatches {
	matches := make(LineMatches)
	if len(query) == 0 || len(line) == 0 {
		return matches
	}

	runs := newTable(len(query), len(line))
	for m := range query {
		for n := range line {
			if query[m] == line[n] {
				length := runs.at(m-1, n-1) + 1
				runs.set(m, n, length)
				matches[length] = append(matches[length], trailingWindow(line, lineNo, n, length))
				continue
			}
			runs.set(m, n, max(runs.at(m-1, n), runs.at(m, n-1)))
		}
	}

	for _, windows := range matches {
		slices.SortStableFunc(windows, func(a, b Window) int {
			return cmp.Compare(a.Start, b.Start)
		})
	}
	return matches
}
