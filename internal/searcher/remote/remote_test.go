package remote

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const message = `Help me, Obi-Wan Kenobi. You're my only hope.
You must see this droid safely delivered to him on Alderaan.`

func newClient(t *testing.T) *Client {
	t.Helper()
	cat := catalog.New(nil, nil, nil)
	_, err := cat.Load("message.txt", strings.NewReader(message))
	require.NoError(t, err)
	h := handler.New(executor.New(cat, config.Default().Search, nil), cat, nil, nil, nil)

	s := rpc.NewServer()
	Register(s, h, cat)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(s.Stop)

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRemoteSearch(t *testing.T) {
	c := newClient(t)

	rep, err := c.Search(context.Background(), executor.Request{Document: "message.txt", Query: "droid delivered"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.MaxLength)
	require.Len(t, rep.Groups, 2)
	assert.Equal(t, "safely delivered", rep.Groups[0].Windows[0].Text)
	assert.Equal(t, 2, rep.Groups[0].Windows[0].Line)
}

func TestRemoteSearchErrors(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.Search(ctx, executor.Request{Document: "missing.txt", Query: "droid"})
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	_, err = c.Search(ctx, executor.Request{Document: "message.txt", Query: "droid", Strategy: "fuzzy"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRemoteDocuments(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	docs, err := c.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "message.txt", docs[0].Name)
	assert.Equal(t, 2, docs[0].Lines)

	s, err := c.GetDocument(ctx, "message.txt")
	require.NoError(t, err)
	assert.Equal(t, 11, s.LongestLine)

	_, err = c.GetDocument(ctx, "other.txt")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}
