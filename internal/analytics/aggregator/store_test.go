package aggregator

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsEncodingKeepsHistogramKeys(t *testing.T) {
	in := analytics.Stats{
		TotalSearches:      4,
		MaxLengthHistogram: map[int]int64{0: 1, 11: 3},
		TopQueries:         []analytics.Count{{Key: "droid", Count: 3}},
	}
	data, err := encodeStats(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"11":3`)

	out, err := decodeStats(data)
	require.NoError(t, err)
	assert.Equal(t, in.MaxLengthHistogram, out.MaxLengthHistogram)
	assert.Equal(t, in.TopQueries, out.TopQueries)
}

func TestDecodeStatsRejectsCorruptData(t *testing.T) {
	_, err := decodeStats([]byte(`{"total_searches":"many"}`))
	assert.Error(t, err)
}
