package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const message = `Help me, Obi-Wan Kenobi. You're my only hope.
General Kenobi, years ago you served my father in the Clone Wars.
I have placed information vital to the survival of the Rebellion into this R2 unit. My father will know how to retrieve it.
You must see this droid safely delivered to him on Alderaan.
This is our most desperate hour. Help me, Obi-Wan Kenobi.`

type fixture struct {
	img *document.Image
	reg *vocabulary.Registry
}

func newFixture(t testing.TB) fixture {
	t.Helper()
	reg := vocabulary.NewRegistry(vocabulary.Identity{})
	img, err := document.Load("message.txt", strings.NewReader(message), reg, tokenizer.Whitespace{})
	require.NoError(t, err)
	return fixture{img: img, reg: reg}
}

func (f fixture) query(text string) Query {
	return ParseQuery(text, f.reg, tokenizer.Whitespace{})
}

func (f fixture) texts(g Group) [][]string {
	out := make([][]string, len(g.Windows))
	for i, w := range g.Windows {
		out[i] = f.reg.Texts(w.Words)
	}
	return out
}

func TestSearchFullLine(t *testing.T) {
	f := newFixture(t)
	q := f.query("You must see this droid safely delivered to him on Alderaan.")

	result := NewLineMatcher(Subsequence{}).Search(f.img, q)

	require.Equal(t, 11, result.Len())
	assert.Equal(t, 11, result.MaxLength())
	best := result.Best()
	require.Equal(t, 1, best.Count())
	assert.Equal(t, 3, best.Windows[0].Line)
	assert.Equal(t, f.img.Line(3), best.Windows[0].Words)

	lengths := result.Lengths()
	for i := 1; i < len(lengths); i++ {
		assert.Greater(t, lengths[i-1], lengths[i])
	}
}

func TestSearchSingleWordRepeated(t *testing.T) {
	f := newFixture(t)

	result := NewLineMatcher(Subsequence{}).Search(f.img, f.query("Kenobi."))

	require.Equal(t, []int{1}, result.Lengths())
	g, ok := result.Group(1)
	require.True(t, ok)
	require.Equal(t, 2, g.Count())
	assert.Equal(t, 0, g.Windows[0].Line)
	assert.Equal(t, 4, g.Windows[1].Line)
}

func TestSearchWithGap(t *testing.T) {
	f := newFixture(t)

	result := NewLineMatcher(Subsequence{}).Search(f.img, f.query("droid delivered"))

	require.Equal(t, []int{2, 1}, result.Lengths())
	groups := result.Groups()
	assert.Equal(t, [][]string{{"safely", "delivered"}}, f.texts(groups[0]))
	assert.Equal(t, [][]string{{"droid"}}, f.texts(groups[1]))
}

func TestSearchUnknownWordsDoNotMatch(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"Sith", "Kenobi", "", "Order 66"} {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			result := NewLineMatcher(Subsequence{}).Search(f.img, f.query(text))

			assert.True(t, result.IsNoMatch())
			require.Len(t, result.Groups(), 1)
			assert.Equal(t, 0, result.Best().Length)
			assert.Empty(t, result.Best().Windows)
			assert.Equal(t, 0, result.TotalWindows())
		})
	}
}

func TestSearchUnknownWordsAreSkipped(t *testing.T) {
	f := newFixture(t)

	result := NewLineMatcher(Subsequence{}).Search(f.img, f.query("wayward droid delivered message"))

	assert.Equal(t, []int{2, 1}, result.Lengths())
}

// runs never continue from the end of one line onto the next
func TestSearchLinesAreIndependent(t *testing.T) {
	f := newFixture(t)

	result := NewLineMatcher(Subsequence{}).Search(f.img, f.query("it. You must"))

	require.Equal(t, []int{2, 1}, result.Lengths())
	groups := result.Groups()
	assert.Equal(t, [][]string{{"You", "must"}}, f.texts(groups[0]))
	assert.Equal(t, [][]string{{"it."}, {"You"}}, f.texts(groups[1]))
	assert.Equal(t, 2, groups[1].Windows[0].Line)
	assert.Equal(t, 3, groups[1].Windows[1].Line)
}

func TestSearchIsDeterministic(t *testing.T) {
	f := newFixture(t)
	q := f.query("Help me Kenobi. my father to this droid")
	m := NewLineMatcher(Subsequence{})

	assert.Equal(t, m.Search(f.img, q).Groups(), m.Search(f.img, q).Groups())
}

// skipping lines without any query word must not change the outcome
func TestCandidateLinesMatchesFullScan(t *testing.T) {
	f := newFixture(t)
	q := f.query("my father Kenobi. to retrieve")

	acc := newAccumulator()
	for i := 0; i < f.img.NumLines(); i++ {
		acc.add(Subsequence{}.MatchLine(q.Words(), f.img.Line(i), i))
	}

	assert.Equal(t, acc.result().Groups(), NewLineMatcher(Subsequence{}).Search(f.img, q).Groups())
}

func randomImage(rng *rand.Rand, lines, width, vocab int) *document.Image {
	rows := make([][]vocabulary.ID, lines)
	for i := range rows {
		n := rng.Intn(width + 1)
		rows[i] = make([]vocabulary.ID, n)
		for j := range rows[i] {
			rows[i][j] = vocabulary.ID(rng.Intn(vocab) + 1)
		}
	}
	return document.New("random", rows)
}

func randomQuery(rng *rand.Rand, n, vocab int) Query {
	words := make([]vocabulary.ID, n)
	for i := range words {
		words[i] = vocabulary.ID(rng.Intn(vocab) + 1)
	}
	return NewQuery(words)
}

func TestParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := randomImage(rng, 400, 15, 40)

	for _, strategy := range []Strategy{Subsequence{}, Contiguous{}} {
		for i := 0; i < 10; i++ {
			q := randomQuery(rng, 1+rng.Intn(6), 40)
			want := NewLineMatcher(strategy).Search(img, q)
			got := NewParallel(strategy, 8).Search(img, q)
			assert.Equal(t, want.Groups(), got.Groups(), "strategy=%s query=%v", strategy.Name(), q.Words())
		}
	}
}

func TestNewSelectsMatcher(t *testing.T) {
	assert.IsType(t, &LineMatcher{}, New(Subsequence{}, 1))
	assert.IsType(t, &LineMatcher{}, New(Subsequence{}, 0))
	m := New(Contiguous{}, 4)
	assert.IsType(t, &ParallelMatcher{}, m)
	assert.Equal(t, StrategyContiguous, m.Strategy().Name())
}

func TestSearchContextCancelled(t *testing.T) {
	f := newFixture(t)
	q := f.query("Kenobi.")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, m := range []ContextMatcher{NewLineMatcher(Subsequence{}), NewParallel(Subsequence{}, 4)} {
		result, err := m.SearchContext(ctx, f.img, q)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Nil(t, result)
	}
}

func TestEmptyImage(t *testing.T) {
	img := document.New("empty", nil)
	result := New(Subsequence{}, 4).Search(img, NewQuery([]vocabulary.ID{1, 2}))
	assert.True(t, result.IsNoMatch())
}

func BenchmarkSubsequenceSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	img := randomImage(rng, 2000, 14, 500)
	q := randomQuery(rng, 8, 500)
	m := NewLineMatcher(Subsequence{})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.Search(img, q)
	}
}

func BenchmarkParallelSearch(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	img := randomImage(rng, 2000, 14, 500)
	q := randomQuery(rng, 8, 500)
	m := NewParallel(Subsequence{}, 4)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m.Search(img, q)
	}
}

func TestResultGroupsAreCopies(t *testing.T) {
	f := newFixture(t)
	result := NewLineMatcher(Subsequence{}).Search(f.img, f.query("droid safely delivered"))
	want := f.texts(result.Best())

	best := result.Best()
	best.Windows[0].Words[0] = vocabulary.Unknown
	best.Windows = best.Windows[:0]

	groups := result.Groups()
	groups[0].Windows[0].Line = 99

	g, ok := result.Group(result.MaxLength())
	require.True(t, ok)
	g.Windows[0].Start = -1

	assert.Equal(t, want, f.texts(result.Best()))
	assert.Equal(t, 3, result.Best().Windows[0].Line)
	assert.NotEqual(t, -1, result.Best().Windows[0].Start)
	assert.Equal(t, []string{"droid", "safely", "delivered"}, f.reg.Texts(f.img.Line(3)[4:7]))
}
