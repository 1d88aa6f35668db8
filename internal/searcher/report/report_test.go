package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/matching"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const text = `Help me, Obi-Wan Kenobi. You're my only hope.
You must see this droid safely delivered to him on Alderaan.
This is our most desperate hour. Help me, Obi-Wan Kenobi.`

func search(t *testing.T, query string, limit int) *Report {
	t.Helper()
	reg := vocabulary.NewRegistry(nil)
	img, err := document.Load("message.txt", strings.NewReader(text), reg, tokenizer.Whitespace{})
	require.NoError(t, err)

	q := matching.ParseQuery(query, reg, tokenizer.Whitespace{})
	result := matching.NewLineMatcher(matching.Subsequence{}).Search(img, q)
	return Build(result, reg, Options{
		Document: img.Name(),
		Query:    query,
		Strategy: matching.StrategySubsequence,
		Limit:    limit,
	})
}

func TestBuild(t *testing.T) {
	rep := search(t, "droid delivered", 0)

	assert.Equal(t, "message.txt", rep.Document)
	assert.Equal(t, 2, rep.MaxLength)
	assert.Equal(t, 2, rep.TotalMatches)
	require.Len(t, rep.Groups, 2)
	assert.Equal(t, GroupReport{
		Length: 2,
		Count:  1,
		Windows: []WindowReport{
			{Line: 2, Start: 5, Text: "safely delivered", Words: []string{"safely", "delivered"}},
		},
	}, rep.Groups[0])
	assert.Equal(t, "droid", rep.Groups[1].Windows[0].Text)
}

func TestBuildLimitKeepsExactCount(t *testing.T) {
	rep := search(t, "Kenobi.", 1)

	require.Len(t, rep.Groups, 1)
	g := rep.Groups[0]
	assert.Equal(t, 2, g.Count)
	assert.True(t, g.Truncated)
	require.Len(t, g.Windows, 1)
	assert.Equal(t, 1, g.Windows[0].Line)
	assert.Equal(t, 2, rep.TotalMatches)
}

func TestBuildNoMatch(t *testing.T) {
	rep := search(t, "Sith Lord", 0)

	assert.True(t, rep.NoMatch())
	require.Len(t, rep.Groups, 1)
	assert.Equal(t, 0, rep.Groups[0].Length)
	assert.Empty(t, rep.Groups[0].Windows)

	raw, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"windows":[]`)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, search(t, "Kenobi.", 1).WriteText(&buf))

	want := "message.txt: \"Kenobi.\" (subsequence)\n" +
		"length 1 (2 matches)\n" +
		"  1:3  Kenobi.\n" +
		"  ... 1 more\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTextNoMatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, search(t, "Sith", 0).WriteText(&buf))
	assert.True(t, strings.HasSuffix(buf.String(), "no matches\n"))
}
