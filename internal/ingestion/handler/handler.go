// Package handler serves the document upload and removal endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
)

type Handler struct {
	sink     ingestion.Sink
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Handler writing to sink. Request bodies larger than maxBytes
// are rejected with 413.
func New(sink ingestion.Sink, maxBytes int64) *Handler {
	return &Handler{
		sink:     sink,
		maxBytes: maxBytes,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest handles POST /api/v1/documents. A JSON body carries name and body
// fields; any other content type is the document text itself, named by the
// name query parameter.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	req, err := h.decode(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "document exceeds upload limit")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateIngestRequest(req, h.maxBytes); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.sink.Put(ctx, req)
	if err != nil {
		h.fail(w, log, "ingestion failed", req.Name, err)
		return
	}
	log.Info("document ingested", "document", resp.Document, "status", resp.Status, "bytes", resp.Bytes)
	h.writeJSON(w, statusFor(resp), resp)
}

// Delete handles DELETE /api/v1/documents/{name}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	name := r.PathValue("name")

	resp, err := h.sink.Delete(ctx, name)
	if err != nil {
		h.fail(w, log, "document removal failed", name, err)
		return
	}
	log.Info("document removal accepted", "document", name, "status", resp.Status)
	h.writeJSON(w, statusFor(resp), resp)
}

func (h *Handler) decode(r *http.Request) (*ingestion.IngestRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req ingestion.IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, errors.New("invalid JSON body")
		}
		return &req, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return &ingestion.IngestRequest{Name: r.URL.Query().Get("name"), Body: string(body)}, nil
}

func (h *Handler) fail(w http.ResponseWriter, log *slog.Logger, msg, name string, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	if statusCode >= http.StatusInternalServerError {
		log.Error(msg, "document", name, "error", err, "status_code", statusCode)
	} else {
		log.Warn(msg, "document", name, "error", err, "status_code", statusCode)
	}
	h.writeError(w, statusCode, apperrors.PublicMessage(err, "internal error"))
}

func statusFor(resp *ingestion.IngestResponse) int {
	switch resp.Status {
	case ingestion.StatusQueued:
		return http.StatusAccepted
	case ingestion.StatusLoaded:
		return http.StatusCreated
	default:
		return http.StatusOK
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
