// Package remote exposes the search service over the internal RPC transport
// and provides the matching typed client.
package remote

import (
	"context"
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/report"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/rpc"
)

const (
	MethodSearch        = "SearchService.Search"
	MethodListDocuments = "SearchService.ListDocuments"
	MethodGetDocument   = "SearchService.GetDocument"
)

// Searcher runs one search end to end, as the HTTP handler does.
type Searcher interface {
	Run(ctx context.Context, req executor.Request) (*report.Report, error)
}

type Documents interface {
	List() []catalog.Summary
	Stat(name string) (catalog.Summary, error)
}

// DocumentRequest names one document.
type DocumentRequest struct {
	Name string `json:"name"`
}

// DocumentList is the reply of ListDocuments.
type DocumentList struct {
	Documents []catalog.Summary `json:"documents"`
	Count     int               `json:"count"`
}

// Register installs the search methods on s.
func Register(s *rpc.Server, searcher Searcher, docs Documents) {
	s.Register(MethodSearch, func(ctx context.Context, params json.RawMessage) (any, error) {
		var req executor.Request
		if err := decode(params, &req); err != nil {
			return nil, err
		}
		return searcher.Run(ctx, req)
	})
	s.Register(MethodListDocuments, func(context.Context, json.RawMessage) (any, error) {
		list := docs.List()
		return DocumentList{Documents: list, Count: len(list)}, nil
	})
	s.Register(MethodGetDocument, func(_ context.Context, params json.RawMessage) (any, error) {
		var req DocumentRequest
		if err := decode(params, &req); err != nil {
			return nil, err
		}
		return docs.Stat(req.Name)
	})
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return apperrors.InvalidInputf("missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return apperrors.InvalidInputf("invalid params: %v", err)
	}
	return nil
}

// Client calls a remote search service.
type Client struct {
	rpc *rpc.Client
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	c, err := rpc.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

func (c *Client) Search(ctx context.Context, req executor.Request) (*report.Report, error) {
	var rep report.Report
	if err := c.rpc.Call(ctx, MethodSearch, req, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]catalog.Summary, error) {
	var list DocumentList
	if err := c.rpc.Call(ctx, MethodListDocuments, struct{}{}, &list); err != nil {
		return nil, err
	}
	return list.Documents, nil
}

func (c *Client) GetDocument(ctx context.Context, name string) (catalog.Summary, error) {
	var s catalog.Summary
	err := c.rpc.Call(ctx, MethodGetDocument, DocumentRequest{Name: name}, &s)
	return s, err
}

func (c *Client) Close() error { return c.rpc.Close() }
