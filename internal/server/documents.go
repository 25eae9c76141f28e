package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/54b3r/ragchat-go/internal/extract"
	"github.com/54b3r/ragchat-go/internal/ingestion"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/rag"
)

// multipartOverhead is the slack allowed above MaxUploadBytes for multipart
// framing and headers.
const multipartOverhead = 1 << 20

// handleUpload handles POST /api/documents/upload. The document is read from
// the multipart form field "file", extracted, chunked, and embedded.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, log, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File exceeds the %d byte upload limit", s.cfg.MaxUploadBytes))
			return
		}
		writeError(w, log, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		writeError(w, log, http.StatusBadRequest, "No file provided")
		return
	}
	if !extract.Supported(filename) {
		s.metrics.uploadsTotal.WithLabelValues("unsupported").Inc()
		writeError(w, log, http.StatusBadRequest, fmt.Sprintf("Unsupported file type. Supported formats: %s",
			strings.Join(extract.SupportedFormats(), ", ")))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		writeError(w, log, http.StatusBadRequest, fmt.Sprintf("Failed to read file: %v", err))
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		s.metrics.uploadsTotal.WithLabelValues("too_large").Inc()
		writeError(w, log, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File exceeds the %d byte upload limit", s.cfg.MaxUploadBytes))
		return
	}

	res, err := s.ingester.IngestFile(r.Context(), filename, data)
	switch {
	case errors.Is(err, extract.ErrNoText), errors.Is(err, ingestion.ErrNoFragments):
		s.metrics.uploadsTotal.WithLabelValues("empty").Inc()
		writeError(w, log, http.StatusBadRequest, "No content extracted from document")
		return
	case errors.Is(err, extract.ErrUnsupportedFormat):
		s.metrics.uploadsTotal.WithLabelValues("unsupported").Inc()
		writeError(w, log, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.metrics.uploadsTotal.WithLabelValues("error").Inc()
		log.Error("documents: upload failed", slog.String("filename", filename), slog.Any("error", err))
		writeError(w, log, http.StatusInternalServerError, fmt.Sprintf("Failed to upload document: %v", err))
		return
	}

	s.metrics.uploadsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, log, http.StatusOK, uploadResponse{
		Message: "Document uploaded and processed successfully",
		Result:  res,
	})
}

// handleSearch handles GET /api/documents/search?query=&top_k=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, log, http.StatusBadRequest, "Query cannot be empty")
		return
	}

	topK := s.cfg.SearchTopK
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, log, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}
	topK = min(topK, s.cfg.SearchMaxTopK)

	results := s.index.Search(r.Context(), query, topK, s.cfg.SearchThreshold)
	if results == nil {
		results = []rag.SearchResult{}
	}
	writeJSON(w, log, http.StatusOK, searchResponse{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
	})
}

// handleStats handles GET /api/documents/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, statsResponse{
		VectorStoreStats: s.index.Stats(),
		Status:           "operational",
	})
}

// handleClear handles DELETE /api/documents/clear.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	n := s.index.Clear()
	log.Info("documents: store cleared", slog.Int("removed", n))
	writeJSON(w, log, http.StatusOK, clearResponse{
		Message:          "Document store cleared successfully",
		DocumentsRemoved: n,
	})
}

// handleSupportedFormats handles GET /api/documents/supported-formats.
func (s *Server) handleSupportedFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, formatsResponse{
		SupportedFormats: extract.SupportedFormats(),
		MaxFileSize:      s.cfg.MaxUploadBytes,
		ProcessingInfo:   s.ingester.Chunking(),
	})
}

// handleGetFragment handles GET /api/documents/fragments/{id}.
func (s *Server) handleGetFragment(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	frag, ok := s.index.Get(r.PathValue("id"))
	if !ok {
		writeError(w, log, http.StatusNotFound, "Fragment not found")
		return
	}
	writeJSON(w, log, http.StatusOK, frag)
}

// handleDeleteFragment handles DELETE /api/documents/fragments/{id}.
func (s *Server) handleDeleteFragment(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	id := r.PathValue("id")
	if !s.index.Remove(id) {
		writeError(w, log, http.StatusNotFound, "Fragment not found")
		return
	}
	writeJSON(w, log, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Fragment %s removed successfully", id),
	})
}
