// Package document holds the immutable token image of one document: its
// lines as word IDs plus an occurrence index from word to the global token
// positions where it appears.
package document

import (
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
	"github.com/RoaringBitmap/roaring"
)

// Image is a read-only snapshot of a tokenised document. Once built it is
// never mutated, so any number of goroutines may search it without locking.
type Image struct {
	name        string
	lines       [][]vocabulary.ID
	lineStarts  []uint32
	occurrences map[vocabulary.ID]*roaring.Bitmap
	tokens      int
	longestLine int
}

// TermEntry is one word of the occurrence index with its sorted positions.
type TermEntry struct {
	Word      vocabulary.ID
	Positions []uint32
}

// New builds an Image from already tokenised and interned lines. The input
// slices are copied. Empty lines and an empty document are valid.
func New(name string, lines [][]vocabulary.ID) *Image {
	img := &Image{
		name:        name,
		lines:       make([][]vocabulary.ID, len(lines)),
		lineStarts:  make([]uint32, len(lines)),
		occurrences: make(map[vocabulary.ID]*roaring.Bitmap),
	}
	var pos uint32
	for i, line := range lines {
		img.lines[i] = slices.Clone(line)
		img.lineStarts[i] = pos
		if len(line) > img.longestLine {
			img.longestLine = len(line)
		}
		for _, word := range line {
			bm, ok := img.occurrences[word]
			if !ok {
				bm = roaring.New()
				img.occurrences[word] = bm
			}
			bm.Add(pos)
			pos++
		}
	}
	img.tokens = int(pos)
	for _, bm := range img.occurrences {
		bm.RunOptimize()
	}
	return img
}

// Name returns the display identifier, usually the source file name.
func (img *Image) Name() string { return img.name }

// NumLines returns the number of lines, including empty ones.
func (img *Image) NumLines() int { return len(img.lines) }

// Line returns the words of line i. The returned slice is shared with the
// image and must not be modified.
func (img *Image) Line(i int) []vocabulary.ID {
	return slices.Clip(img.lines[i])
}

// TokenCount returns the total number of tokens across all lines.
func (img *Image) TokenCount() int { return img.tokens }

// LongestLine returns the token count of the longest line.
func (img *Image) LongestLine() int { return img.longestLine }

// VocabularySize returns the number of distinct words in the document.
func (img *Image) VocabularySize() int { return len(img.occurrences) }

// Contains reports whether word occurs anywhere in the document.
func (img *Image) Contains(word vocabulary.ID) bool {
	_, ok := img.occurrences[word]
	return ok
}

// Frequency returns how many times word occurs.
func (img *Image) Frequency(word vocabulary.ID) int {
	bm, ok := img.occurrences[word]
	if !ok {
		return 0
	}
	return int(bm.GetCardinality())
}

// Occurrences returns the global positions of word in ascending order, or nil
// if it does not occur.
func (img *Image) Occurrences(word vocabulary.ID) []uint32 {
	bm, ok := img.occurrences[word]
	if !ok {
		return nil
	}
	return bm.ToArray()
}

// Position converts a line and an offset within it into a global position.
func (img *Image) Position(line, offset int) (uint32, bool) {
	if line < 0 || line >= len(img.lines) || offset < 0 || offset >= len(img.lines[line]) {
		return 0, false
	}
	return img.lineStarts[line] + uint32(offset), true
}

// Locate converts a global position back into a line and offset.
func (img *Image) Locate(pos uint32) (line, offset int, ok bool) {
	if int(pos) >= img.tokens {
		return 0, 0, false
	}
	// last line whose start is <= pos; an empty line shares its start with
	// the following non-empty line, so it is never the last one
	line = sort.Search(len(img.lineStarts), func(i int) bool {
		return img.lineStarts[i] > pos
	}) - 1
	return line, int(pos - img.lineStarts[line]), true
}

// LinesContaining returns, in ascending order, the indexes of the lines that
// contain at least one of words.
func (img *Image) LinesContaining(words []vocabulary.ID) []int {
	bitmaps := make([]*roaring.Bitmap, 0, len(words))
	for _, w := range words {
		if bm, ok := img.occurrences[w]; ok {
			bitmaps = append(bitmaps, bm)
		}
	}
	if len(bitmaps) == 0 {
		return nil
	}
	positions := roaring.FastOr(bitmaps...)

	lines := make([]int, 0)
	it := positions.Iterator()
	for it.HasNext() {
		line, _, _ := img.Locate(it.Next())
		lines = append(lines, line)
		// skip the rest of this line
		next := img.lineStarts[line] + uint32(len(img.lines[line]))
		it.AdvanceIfNeeded(next)
	}
	return lines
}

// Snapshot returns the occurrence index ordered by descending frequency, then
// ascending word ID.
func (img *Image) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(img.occurrences))
	for word, bm := range img.occurrences {
		entries = append(entries, TermEntry{
			Word:      word,
			Positions: bm.ToArray(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Positions) != len(entries[j].Positions) {
			return len(entries[i].Positions) > len(entries[j].Positions)
		}
		return entries[i].Word < entries[j].Word
	})
	return entries
}
