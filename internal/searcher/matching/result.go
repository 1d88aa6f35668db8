package matching

import (
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
)

// Window is a contiguous run of document words copied from one line:
// positions [Start, Start+len(Words)) of line Line.
type Window struct {
	Line  int
	Start int
	Words []vocabulary.ID
}

// Len returns the number of words in the window.
func (w Window) Len() int { return len(w.Words) }

// End returns the line offset of the last word in the window.
func (w Window) End() int { return w.Start + len(w.Words) - 1 }

// Group holds every window found for one run length, in discovery order:
// document line order, then position order within a line.
type Group struct {
	Length  int
	Windows []Window
}

// Count returns the number of windows in the group.
func (g Group) Count() int { return len(g.Windows) }

// clone deep-copies g so callers can not reach a Result's storage.
func (g *Group) clone() Group {
	out := Group{Length: g.Length, Windows: make([]Window, len(g.Windows))}
	for i, w := range g.Windows {
		w.Words = slices.Clone(w.Words)
		out.Windows[i] = w
	}
	return out
}

// LineMatches is the per-line output of a Strategy: run length to windows in
// position order.
type LineMatches map[int][]Window

// Result is an ordered mapping from run length to Group. A search that found
// nothing holds exactly one empty group keyed at length 0.
type Result struct {
	groups  map[int]*Group
	lengths []int // descending
}

// NoMatch returns the result of a search that found nothing.
func NoMatch() *Result {
	return &Result{
		groups:  map[int]*Group{0: {Length: 0, Windows: []Window{}}},
		lengths: []int{0},
	}
}

// Groups returns copies of the groups, largest length first.
func (r *Result) Groups() []Group {
	out := make([]Group, len(r.lengths))
	for i, l := range r.lengths {
		out[i] = r.groups[l].clone()
	}
	return out
}

// Group returns a copy of the group for length, if present.
func (r *Result) Group(length int) (Group, bool) {
	g, ok := r.groups[length]
	if !ok {
		return Group{}, false
	}
	return g.clone(), true
}

// Lengths returns the lengths present, largest first.
func (r *Result) Lengths() []int {
	return slices.Clone(r.lengths)
}

// MaxLength returns the largest run length found, 0 when nothing matched.
func (r *Result) MaxLength() int {
	return r.lengths[0]
}

// Best returns a copy of the group with the largest run length.
func (r *Result) Best() Group {
	return r.groups[r.lengths[0]].clone()
}

// TotalWindows returns the number of windows across all groups.
func (r *Result) TotalWindows() int {
	total := 0
	for _, g := range r.groups {
		total += len(g.Windows)
	}
	return total
}

// Len returns the number of groups.
func (r *Result) Len() int { return len(r.lengths) }

// IsNoMatch reports whether the search found nothing.
func (r *Result) IsNoMatch() bool {
	return len(r.lengths) == 1 && r.lengths[0] == 0
}

// accumulator concatenates per-line matches in the order they are added.
type accumulator struct {
	groups map[int]*Group
}

func newAccumulator() *accumulator {
	return &accumulator{groups: make(map[int]*Group)}
}

func (a *accumulator) add(part LineMatches) {
	for length, windows := range part {
		if len(windows) == 0 {
			continue
		}
		g, ok := a.groups[length]
		if !ok {
			g = &Group{Length: length}
			a.groups[length] = g
		}
		g.Windows = append(g.Windows, windows...)
	}
}

func (a *accumulator) result() *Result {
	if len(a.groups) == 0 {
		return NoMatch()
	}
	lengths := make([]int, 0, len(a.groups))
	for l := range a.groups {
		lengths = append(lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(lengths)))
	return &Result{groups: a.groups, lengths: lengths}
}
