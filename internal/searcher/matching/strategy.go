package matching

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
)

// Strategy scores one document line against a query. Implementations must
// be pure: the same inputs always yield the same LineMatches, and windows of
// each length are in position order.
type Strategy interface {
	Name() string
	MatchLine(query, line []vocabulary.ID, lineNo int) LineMatches
}

const (
	StrategySubsequence = "subsequence"
	StrategyContiguous  = "contiguous"
)

var strategies = map[string]Strategy{
	StrategySubsequence: Subsequence{},
	StrategyContiguous:  Contiguous{},
}

// StrategyByName resolves a strategy; "" selects subsequence.
func StrategyByName(name string) (Strategy, error) {
	if name == "" {
		name = StrategySubsequence
	}
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown matching strategy %q", name)
	}
	return s, nil
}

// StrategyNames lists the registered strategies in sorted order.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// table is an M×N run-length table whose out-of-range cells read as 0.
type table struct {
	rows, cols int
	cells      []int
}

func newTable(rows, cols int) *table {
	return &table{rows: rows, cols: cols, cells: make([]int, rows*cols)}
}

func (t *table) at(m, n int) int {
	if m < 0 || n < 0 || m >= t.rows || n >= t.cols {
		return 0
	}
	return t.cells[m*t.cols+n]
}

func (t *table) set(m, n, v int) {
	t.cells[m*t.cols+n] = v
}

// trailingWindow copies the length words of line ending at offset end.
func trailingWindow(line []vocabulary.ID, lineNo, end, length int) Window {
	start := end - length + 1
	return Window{
		Line:  lineNo,
		Start: start,
		Words: append([]vocabulary.ID(nil), line[start:end+1]...),
	}
}
