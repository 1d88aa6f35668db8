// Package validator checks upload requests before they reach a catalog or
// Kafka, returning per-field error details.
package validator

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the document name and body. maxBodyBytes <= 0
// disables the size check. Empty bodies are allowed and load as empty
// documents.
func ValidateIngestRequest(req *ingestion.IngestRequest, maxBodyBytes int64) error {
	errs := make(map[string]string)

	if err := catalog.ValidateName(req.Name); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			errs["name"] = appErr.Message
		} else {
			errs["name"] = err.Error()
		}
	}
	if maxBodyBytes > 0 && int64(len(req.Body)) > maxBodyBytes {
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", maxBodyBytes)
	} else if !utf8.ValidString(req.Body) {
		errs["body"] = "body must be valid UTF-8 text"
	} else if longestLine(req.Body) > document.MaxLineBytes {
		errs["body"] = fmt.Sprintf("lines must be at most %d bytes", document.MaxLineBytes)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// longestLine measures lines the way the document loader splits them, with
// a trailing \r dropped.
func longestLine(body string) int {
	longest := 0
	for line := range strings.Lines(body) {
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		longest = max(longest, len(line))
	}
	return longest
}
