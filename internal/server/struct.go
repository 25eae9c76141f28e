package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/chunker"
	"github.com/54b3r/ragchat-go/internal/ingestion"
	"github.com/54b3r/ragchat-go/internal/rag"
	"github.com/54b3r/ragchat-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single chat turn including retrieval and
	// generation (default: 2m).
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MaxUploadBytes caps the size of an uploaded document (default: 10 MiB).
	MaxUploadBytes int64
	// SearchTopK is the default result count for document search (default: 5).
	SearchTopK int
	// SearchMaxTopK caps the top_k query parameter (default: 20).
	SearchMaxTopK int
	// SearchThreshold is the minimum similarity for document search results.
	SearchThreshold float64
	// MetricsRegistry receives the server's Prometheus collectors. If nil,
	// prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. If nil, prometheus.DefaultGatherer
	// is used.
	MetricsGatherer prometheus.Gatherer
}

// ChatService answers chat turns. *chat.Service satisfies it.
type ChatService interface {
	// Reply generates and records the answer to one user turn.
	Reply(ctx context.Context, req chat.Request) (*chat.Response, error)
	// Ping verifies the language model is reachable.
	Ping(ctx context.Context) error
}

// SessionStore is the read/delete side of the conversation store.
// *store.SQLiteStore satisfies it.
type SessionStore interface {
	// History returns every message of a session, oldest-first.
	History(ctx context.Context, sessionID string) ([]store.Message, error)
	// Delete removes a session and its messages.
	Delete(ctx context.Context, sessionID string) error
	// List returns all sessions.
	List(ctx context.Context) ([]store.Session, error)
}

// DocumentIndex is the vector store surface exposed over HTTP.
// *rag.MemoryStore satisfies it.
type DocumentIndex interface {
	// Search ranks fragments by similarity to query.
	Search(ctx context.Context, query string, topK int, threshold float64) []rag.SearchResult
	// Get returns a stored fragment. Handlers never serialise its embedding.
	Get(id string) (rag.Fragment, bool)
	// Remove deletes a fragment, reporting whether it existed.
	Remove(id string) bool
	// Clear deletes every fragment, returning how many were removed.
	Clear() int
	// Stats reports store size and memory usage.
	Stats() rag.Stats
}

// DocumentIngester turns uploaded files into stored fragments.
// *ingestion.Pipeline satisfies it.
type DocumentIngester interface {
	// IngestFile extracts, chunks, and stores a document.
	IngestFile(ctx context.Context, filename string, data []byte) (*ingestion.Result, error)
	// Chunking returns the active fragment size and overlap.
	Chunking() chunker.Config
}

// Deps holds the domain services the server routes requests to.
type Deps struct {
	// Chat answers chat turns.
	Chat ChatService
	// Sessions exposes conversation history.
	Sessions SessionStore
	// Index is the vector store.
	Index DocumentIndex
	// Ingester processes uploads.
	Ingester DocumentIngester
}

// Server is the HTTP server that exposes chat and document management.
type Server struct {
	// chat answers chat turns.
	chat ChatService
	// sessions exposes conversation history.
	sessions SessionStore
	// index is the vector store.
	index DocumentIndex
	// ingester processes uploads.
	ingester DocumentIngester
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	// Detail is a human-readable error description.
	Detail string `json:"detail"`
}

// messageResponse is the JSON body of simple acknowledgement responses.
type messageResponse struct {
	// Message describes the completed action.
	Message string `json:"message"`
}

// historyResponse is the JSON response for GET /api/chat/history/{session_id}.
type historyResponse struct {
	// SessionID is the requested session.
	SessionID string `json:"session_id"`
	// Messages is the conversation, oldest-first.
	Messages []store.Message `json:"messages"`
	// MessageCount is len(Messages).
	MessageCount int `json:"message_count"`
}

// sessionsResponse is the JSON response for GET /api/chat/sessions.
type sessionsResponse struct {
	// Sessions lists every known session.
	Sessions []store.Session `json:"sessions"`
	// TotalSessions is len(Sessions).
	TotalSessions int `json:"total_sessions"`
}

// chatTestResponse is the JSON response for GET /api/chat/test.
type chatTestResponse struct {
	// ChatService is always "operational" when the handler runs.
	ChatService string `json:"chat_service"`
	// LLM is "connected" or "disconnected".
	LLM string `json:"llm"`
	// Status is "healthy" or "degraded".
	Status string `json:"status"`
}

// uploadResponse is the JSON response for POST /api/documents/upload.
type uploadResponse struct {
	// Message is a human-readable summary.
	Message string `json:"message"`
	*ingestion.Result
}

// searchResponse is the JSON response for GET /api/documents/search.
type searchResponse struct {
	// Query echoes the search text.
	Query string `json:"query"`
	// Results are ranked by descending score.
	Results []rag.SearchResult `json:"results"`
	// TotalResults is len(Results).
	TotalResults int `json:"total_results"`
}

// statsResponse is the JSON response for GET /api/documents/stats.
type statsResponse struct {
	// VectorStoreStats reports store size and memory usage.
	VectorStoreStats rag.Stats `json:"vector_store_stats"`
	// Status is always "operational".
	Status string `json:"status"`
}

// clearResponse is the JSON response for DELETE /api/documents/clear.
type clearResponse struct {
	// Message is a human-readable summary.
	Message string `json:"message"`
	// DocumentsRemoved is the number of fragments deleted.
	DocumentsRemoved int `json:"documents_removed"`
}

// formatsResponse is the JSON response for GET /api/documents/supported-formats.
type formatsResponse struct {
	// SupportedFormats lists accepted file extensions.
	SupportedFormats []string `json:"supported_formats"`
	// MaxFileSize is the upload limit in bytes.
	MaxFileSize int64 `json:"max_file_size"`
	// ProcessingInfo holds the chunking parameters.
	ProcessingInfo chunker.Config `json:"processing_info"`
}

// healthResponse is the JSON response for GET /health and GET /api/health.
type healthResponse struct {
	// Status is always "healthy".
	Status string `json:"status"`
	// Service names the application.
	Service string `json:"service"`
	// Version is the build version.
	Version string `json:"version"`
}
