package cmd

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/remote"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/report"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const message = `Help me, Obi-Wan Kenobi. You're my only hope.
You must see this droid safely delivered to him on Alderaan.`

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "message.txt")
	require.NoError(t, os.WriteFile(path, []byte(message), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSearchText(t *testing.T) {
	out, err := run(t, "", "search", writeDoc(t), "droid", "delivered")
	require.NoError(t, err)
	assert.Equal(t, `message.txt: "droid delivered" (subsequence)
length 2 (1 match)
  2:5  safely delivered
length 1 (1 match)
  2:4  droid
`, out)
}

func TestSearchJSON(t *testing.T) {
	out, err := run(t, "", "search", "--json", "--strategy", "contiguous", writeDoc(t), "Kenobi.", "You're")
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "contiguous", rep.Strategy)
	assert.Equal(t, 2, rep.MaxLength)
}

func TestSearchStdinQueries(t *testing.T) {
	out, err := run(t, "droid\nSith\n", "search", writeDoc(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"droid" (subsequence)`)
	assert.Contains(t, out, "no matches")
}

func TestSearchNormalizer(t *testing.T) {
	out, err := run(t, "", "search", "--splitter", "words", "--normalizer", "casefold", writeDoc(t), "HELP", "KENOBI")
	require.NoError(t, err)
	assert.Contains(t, out, "length 2 (1 match)")
}

func TestSearchErrors(t *testing.T) {
	_, err := run(t, "", "search", filepath.Join(t.TempDir(), "missing.txt"), "x")
	assert.Error(t, err)

	_, err = run(t, "", "search", "--strategy", "fuzzy", writeDoc(t), "x")
	assert.Error(t, err)

	_, err = run(t, "", "search", "--normalizer", "soundex", writeDoc(t), "x")
	assert.Error(t, err)

	_, err = run(t, "", "search")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	out, err := run(t, "", "stats", "--top", "1", writeDoc(t))
	require.NoError(t, err)
	assert.Contains(t, out, "lines         2")
	assert.Contains(t, out, "words         19")
	assert.Contains(t, out, "longest line  11")
}

func startRemote(t *testing.T) string {
	t.Helper()
	cat := catalog.New(nil, nil, nil)
	_, err := cat.Load("message.txt", strings.NewReader(message))
	require.NoError(t, err)
	h := handler.New(executor.New(cat, config.Default().Search, nil), cat, nil, nil, nil)

	s := rpc.NewServer()
	remote.Register(s, h, cat)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(s.Stop)
	return ln.Addr().String()
}

func TestRemoteSearch(t *testing.T) {
	addr := startRemote(t)

	out, err := run(t, "", "remote", "search", "--addr", addr, "message.txt", "droid", "delivered")
	require.NoError(t, err)
	assert.Contains(t, out, "length 2 (1 match)")
	assert.Contains(t, out, "2:5  safely delivered")

	_, err = run(t, "", "remote", "search", "--addr", addr, "missing.txt", "droid")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestRemoteDocs(t *testing.T) {
	addr := startRemote(t)

	out, err := run(t, "", "remote", "docs", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "message.txt")
}

func TestKeysCreateValidatesFlags(t *testing.T) {
	_, err := run(t, "", "keys", "create")
	assert.ErrorContains(t, err, "--name is required")

	_, err = run(t, "", "keys", "create", "--name", "ops", "--rate-limit", "0")
	assert.ErrorContains(t, err, "--rate-limit")
}
