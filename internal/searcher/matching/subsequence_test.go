package matching

import (
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(reg *vocabulary.Registry, tokens ...string) []vocabulary.ID {
	return reg.RegisterAll(tokens)
}

func TestSubsequenceDroidScenario(t *testing.T) {
	reg := vocabulary.NewRegistry(nil)
	line := words(reg, "You", "must", "see", "this", "droid", "safely", "delivered", "to", "him")
	query := words(reg, "droid", "delivered")

	got := Subsequence{}.MatchLine(query, line, 0)

	require.Len(t, got, 2)
	require.Len(t, got[2], 1)
	assert.Equal(t, []string{"safely", "delivered"}, reg.Texts(got[2][0].Words))
	assert.Equal(t, 5, got[2][0].Start)
	require.Len(t, got[1], 1)
	assert.Equal(t, []string{"droid"}, reg.Texts(got[1][0].Words))
	assert.Equal(t, 4, got[1][0].Start)
}

// the window is the trailing text since the run started, not only the
// matched query words
func TestSubsequenceGapTolerance(t *testing.T) {
	reg := vocabulary.NewRegistry(nil)
	line := words(reg, "A", "X", "B")
	query := words(reg, "A", "B")

	got := Subsequence{}.MatchLine(query, line, 7)

	require.NotEmpty(t, got[2])
	assert.Equal(t, Window{Line: 7, Start: 1, Words: words(reg, "X", "B")}, got[2][0])
	assert.Equal(t, []Window{{Line: 7, Start: 0, Words: words(reg, "A")}}, got[1])
}

func TestSubsequenceEmptyInputs(t *testing.T) {
	reg := vocabulary.NewRegistry(nil)
	ab := words(reg, "A", "B")

	assert.Empty(t, Subsequence{}.MatchLine(nil, ab, 0))
	assert.Empty(t, Subsequence{}.MatchLine(ab, nil, 0))
	assert.Empty(t, Subsequence{}.MatchLine(nil, nil, 0))
}

func TestSubsequenceBaseCases(t *testing.T) {
	reg := vocabulary.NewRegistry(nil)
	a := words(reg, "A")

	// M=1, N=1
	got := Subsequence{}.MatchLine(a, a, 0)
	assert.Equal(t, LineMatches{1: {{Line: 0, Start: 0, Words: a}}}, got)

	// first query word against any line word starts a run of 1
	line := words(reg, "B", "A", "A")
	got = Subsequence{}.MatchLine(a, line, 0)
	require.Len(t, got, 1)
	assert.Len(t, got[1], 2)

	// first line word against a later query word reads the virtual column
	query := words(reg, "B", "A")
	got = Subsequence{}.MatchLine(query, words(reg, "A"), 0)
	assert.Equal(t, LineMatches{1: {{Line: 0, Start: 0, Words: a}}}, got)
}

func TestSubsequenceWindowsInPositionOrder(t *testing.T) {
	reg := vocabulary.NewRegistry(nil)
	// "B" at query row 0 matches late in the line, "A" at row 1 matches early
	query := words(reg, "B", "A")
	line := words(reg, "A", "X", "B")

	got := Subsequence{}.MatchLine(query, line, 0)
	for _, windows := range got {
		for i := 1; i < len(windows); i++ {
			assert.LessOrEqual(t, windows[i-1].Start, windows[i].Start)
		}
	}
	assert.Equal(t, []int{0, 2}, []int{got[1][0].Start, got[1][1].Start})
}

// runLength is a direct transcription of the recurrence with explicit
// boundary handling, used as an oracle for the table implementation.
func runLength(query, line []vocabulary.ID, m, n int) int {
	if m < 0 || n < 0 {
		return 0
	}
	if query[m] == line[n] {
		return runLength(query, line, m-1, n-1) + 1
	}
	return max(runLength(query, line, m-1, n), runLength(query, line, m, n-1))
}

func TestSubsequenceMatchesRecurrence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 300; iter++ {
		m := rng.Intn(5)
		n := rng.Intn(6)
		query := randomWords(rng, m)
		line := randomWords(rng, n)

		var got LineMatches
		require.NotPanics(t, func() {
			got = Subsequence{}.MatchLine(query, line, 3)
		})

		want := make(map[int]int)
		for qi := range query {
			for li := range line {
				if query[qi] == line[li] {
					want[runLength(query, line, qi, li)]++
				}
			}
		}
		gotCounts := make(map[int]int)
		for length, windows := range got {
			gotCounts[length] = len(windows)
			for _, w := range windows {
				require.Equal(t, length, w.Len())
				require.GreaterOrEqual(t, w.Start, 0)
				require.Less(t, w.End(), len(line))
				assert.Equal(t, line[w.Start:w.End()+1], w.Words)
				assert.Equal(t, 3, w.Line)
			}
			assert.LessOrEqual(t, length, min(len(query), len(line)))
		}
		assert.Equal(t, want, gotCounts, "query=%v line=%v", query, line)
	}
}

func randomWords(rng *rand.Rand, n int) []vocabulary.ID {
	out := make([]vocabulary.ID, n)
	for i := range out {
		out[i] = vocabulary.ID(rng.Intn(3) + 1)
	}
	return out
}

func TestContiguousMaximalRuns(t *testing.T) {
	reg := vocabulary.NewRegistry(nil)
	query := words(reg, "droid", "safely", "delivered")
	line := words(reg, "this", "droid", "safely", "delivered", "droid", "X", "delivered")

	got := Contiguous{}.MatchLine(query, line, 0)

	require.Len(t, got[3], 1)
	assert.Equal(t, 1, got[3][0].Start)
	assert.Equal(t, []string{"droid", "safely", "delivered"}, reg.Texts(got[3][0].Words))
	// the later droid and delivered are isolated single-word runs
	require.Len(t, got[1], 2)
	assert.Equal(t, []int{4, 6}, []int{got[1][0].Start, got[1][1].Start})
	assert.NotContains(t, got, 2)
}

func TestContiguousDoesNotBridgeGaps(t *testing.T) {
	reg := vocabulary.NewRegistry(nil)
	got := Contiguous{}.MatchLine(words(reg, "A", "B"), words(reg, "A", "X", "B"), 0)
	assert.NotContains(t, got, 2)
	assert.Len(t, got[1], 2)
}

func TestStrategyByName(t *testing.T) {
	s, err := StrategyByName("")
	require.NoError(t, err)
	assert.Equal(t, StrategySubsequence, s.Name())

	s, err = StrategyByName(StrategyContiguous)
	require.NoError(t, err)
	assert.Equal(t, StrategyContiguous, s.Name())

	_, err = StrategyByName("levenshtein")
	assert.Error(t, err)
	assert.Equal(t, []string{"contiguous", "subsequence"}, StrategyNames())
}
