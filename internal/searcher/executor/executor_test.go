package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const message = `Help me, Obi-Wan Kenobi. You're my only hope.
You must see this droid safely delivered to him on Alderaan.
This is our most desperate hour. Help me, Obi-Wan Kenobi.`

func newExecutor(t *testing.T, cfg config.SearchConfig, normalizer vocabulary.Normalizer) (*Executor, *metrics.Metrics) {
	t.Helper()
	cat := catalog.New(vocabulary.NewRegistry(normalizer), tokenizer.Whitespace{}, nil)
	_, err := cat.Load("message.txt", strings.NewReader(message))
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	return New(cat, cfg, m), m
}

func defaultSearch() config.SearchConfig {
	return config.SearchConfig{
		DefaultStrategy:    "subsequence",
		Workers:            2,
		Timeout:            time.Second,
		MaxWindowsPerGroup: 100,
		MaxQueryTokens:     8,
	}
}

func TestExecute(t *testing.T) {
	e, m := newExecutor(t, defaultSearch(), nil)

	req, err := e.Normalize(Request{Document: "message.txt", Query: "droid delivered"})
	require.NoError(t, err)
	assert.Equal(t, "subsequence", req.Strategy)
	assert.Equal(t, 100, req.Limit)

	rep, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.MaxLength)
	require.Len(t, rep.Groups, 2)
	assert.Equal(t, "safely delivered", rep.Groups[0].Windows[0].Text)
	assert.Equal(t, "droid", rep.Groups[1].Windows[0].Text)
	assert.GreaterOrEqual(t, rep.TookMs, 0.0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("subsequence", metrics.OutcomeMatch)))
}

func TestExecuteRecordsSpans(t *testing.T) {
	e, _ := newExecutor(t, defaultSearch(), nil)

	ctx, root := tracing.StartSpan(context.Background(), "search", "req-7")
	_, err := e.Execute(ctx, Request{Document: "message.txt", Query: "droid delivered", Strategy: "subsequence"})
	require.NoError(t, err)

	children := root.Children()
	require.Len(t, children, 3)
	assert.Equal(t, "lookup", children[0].Name)
	assert.Equal(t, "align", children[1].Name)
	assert.Equal(t, "render", children[2].Name)
	maxLength, ok := children[1].Attr("max_length")
	require.True(t, ok)
	assert.Equal(t, 2, maxLength)
	assert.Equal(t, "req-7", children[2].TraceID)
}

func TestExecuteNoMatch(t *testing.T) {
	e, m := newExecutor(t, defaultSearch(), nil)

	rep, err := e.Execute(context.Background(), Request{Document: "message.txt", Query: "Sith", Strategy: "subsequence"})
	require.NoError(t, err)
	assert.True(t, rep.NoMatch())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("subsequence", metrics.OutcomeNoMatch)))
}

func TestExecuteCaseFolding(t *testing.T) {
	e, _ := newExecutor(t, defaultSearch(), vocabulary.CaseFold{})

	rep, err := e.Execute(context.Background(), Request{Document: "message.txt", Query: "HELP ME,", Strategy: "subsequence"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.MaxLength)
	assert.Equal(t, 2, rep.Groups[0].Count)
	assert.Equal(t, "help me,", e.CanonicalQuery("HELP   ME,"))
}

func TestExecuteMissingDocument(t *testing.T) {
	e, _ := newExecutor(t, defaultSearch(), nil)

	_, err := e.Execute(context.Background(), Request{Document: "other.txt", Query: "droid", Strategy: "subsequence"})
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
}

func TestNormalizeRejects(t *testing.T) {
	e, _ := newExecutor(t, defaultSearch(), nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"no document", Request{Query: "droid"}},
		{"bad strategy", Request{Document: "message.txt", Query: "droid", Strategy: "fuzzy"}},
		{"negative limit", Request{Document: "message.txt", Query: "droid", Limit: -1}},
		{"too many words", Request{Document: "message.txt", Query: "a b c d e f g h i"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Normalize(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}

func TestNormalizeClampsLimit(t *testing.T) {
	e, _ := newExecutor(t, defaultSearch(), nil)

	req, err := e.Normalize(Request{Document: "message.txt", Query: "droid", Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, 100, req.Limit)
}

func TestExecuteTimeout(t *testing.T) {
	cfg := defaultSearch()
	cfg.Workers = 1
	cfg.Timeout = time.Nanosecond
	e, m := newExecutor(t, cfg, nil)
	_, err := e.catalog.Load("big.txt", strings.NewReader(strings.Repeat(message+"\n", 5000)))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), Request{Document: "big.txt", Query: "Kenobi.", Strategy: "subsequence"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
	assert.Equal(t, 504, apperrors.HTTPStatusCode(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("subsequence", metrics.OutcomeTimeout)))
}

func TestExecuteCancelled(t *testing.T) {
	e, _ := newExecutor(t, defaultSearch(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, Request{Document: "message.txt", Query: "Kenobi.", Strategy: "subsequence"})
	assert.ErrorIs(t, err, context.Canceled)
}
