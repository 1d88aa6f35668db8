// Package analytics tracks how the search service is used. Search and
// document events are either published to Kafka by a Collector and folded
// into an Aggregator by a consumer, or recorded into a local Aggregator
// directly when Kafka is disabled.
package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch          EventType = "search"
	EventDocumentLoaded  EventType = "document_loaded"
	EventDocumentRemoved EventType = "document_removed"
)

// Tracker accepts SearchEvent and DocumentEvent values. Track must not
// block the caller.
type Tracker interface {
	Track(event any)
}

// SearchEvent describes one answered search. Query holds the canonical
// query text, so spelling variants that align identically count together.
type SearchEvent struct {
	Type         EventType `json:"type"`
	ID           string    `json:"id"`
	Document     string    `json:"document"`
	Query        string    `json:"query"`
	Strategy     string    `json:"strategy"`
	MaxLength    int       `json:"max_length"`
	TotalMatches int       `json:"total_matches"`
	Groups       int       `json:"groups"`
	NoMatch      bool      `json:"no_match"`
	LatencyMs    float64   `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

type DocumentEvent struct {
	Type      EventType `json:"type"`
	Document  string    `json:"document"`
	Lines     int       `json:"lines"`
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// Decode parses a JSON event by its type field into a SearchEvent or a
// DocumentEvent.
func Decode(data []byte) (any, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding analytics event: %w", err)
	}
	switch envelope.Type {
	case EventSearch:
		var e SearchEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return e, nil
	case EventDocumentLoaded, EventDocumentRemoved:
		var e DocumentEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decoding document event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", envelope.Type)
	}
}

// partitionKey keeps events about one document on one partition.
func partitionKey(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return e.Document
	case DocumentEvent:
		return e.Document
	default:
		return "analytics"
	}
}
