// Package ingestion defines the request/response types and Kafka event
// schema used to add documents to, and remove them from, running search
// services.
package ingestion

import (
	"context"
	"time"
)

// Document statuses reported in IngestResponse.
const (
	StatusLoaded  = "LOADED"
	StatusRemoved = "REMOVED"
	StatusQueued  = "QUEUED"
)

// IngestRequest is the JSON body accepted by the upload endpoint. Plain-text
// uploads carry the name in the query string instead.
type IngestRequest struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	Document string `json:"document"`
	Status   string `json:"status"`
	Bytes    int    `json:"bytes"`
	Lines    int    `json:"lines,omitempty"`
	Tokens   int    `json:"tokens,omitempty"`
}

// IngestEvent is the Kafka message payload for one document change. Every
// search instance consumes the topic and applies it to its own catalog.
type IngestEvent struct {
	Name       string    `json:"name"`
	Body       string    `json:"body,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Sink applies document changes, either directly to a local catalog or by
// publishing them for every instance to apply.
type Sink interface {
	Put(ctx context.Context, req *IngestRequest) (*IngestResponse, error)
	Delete(ctx context.Context, name string) (*IngestResponse, error)
}
