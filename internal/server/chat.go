package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/store"
)

// handleChatMessage handles POST /api/chat/message. It runs one chat turn
// bounded by ChatTimeout and returns the reply with its sources.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chat.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		writeError(w, log, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.chat.Reply(ctx, req)
	outcome := chatOutcome(err)
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, log, http.StatusBadRequest, "message is required")
		return
	case outcome == "timeout":
		log.Warn("chat: turn timed out", slog.Duration("timeout", s.cfg.ChatTimeout))
		writeError(w, log, http.StatusGatewayTimeout, "Chat request timed out")
		return
	case err != nil:
		log.Error("chat: turn failed", slog.Any("error", err))
		writeError(w, log, http.StatusInternalServerError, fmt.Sprintf("Failed to process chat message: %v", err))
		return
	}

	s.metrics.chatSources.Observe(float64(len(resp.Sources)))
	writeJSON(w, log, http.StatusOK, resp)
}

// chatOutcome maps a Reply error to the metrics outcome label.
func chatOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// handleChatHistory handles GET /api/chat/history/{session_id}.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	id := r.PathValue("session_id")

	msgs, err := s.sessions.History(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, log, http.StatusNotFound, "Session not found")
		return
	case err != nil:
		log.Error("chat: history failed", slog.String("session_id", id), slog.Any("error", err))
		writeError(w, log, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve chat history: %v", err))
		return
	}

	writeJSON(w, log, http.StatusOK, historyResponse{
		SessionID:    id,
		Messages:     msgs,
		MessageCount: len(msgs),
	})
}

// handleChatDelete handles DELETE /api/chat/session/{session_id}.
func (s *Server) handleChatDelete(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	id := r.PathValue("session_id")

	err := s.sessions.Delete(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, log, http.StatusNotFound, "Session not found")
		return
	case err != nil:
		log.Error("chat: delete failed", slog.String("session_id", id), slog.Any("error", err))
		writeError(w, log, http.StatusInternalServerError, fmt.Sprintf("Failed to clear session: %v", err))
		return
	}

	log.Info("chat: session cleared", slog.String("session_id", id))
	writeJSON(w, log, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Session %s cleared successfully", id),
	})
}

// handleChatSessions handles GET /api/chat/sessions.
func (s *Server) handleChatSessions(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		log.Error("chat: list sessions failed", slog.Any("error", err))
		writeError(w, log, http.StatusInternalServerError, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	writeJSON(w, log, http.StatusOK, sessionsResponse{
		Sessions:      sessions,
		TotalSessions: len(sessions),
	})
}

// handleChatTest handles GET /api/chat/test. It probes the language model and
// reports "degraded" rather than failing when the model is unreachable.
func (s *Server) handleChatTest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	resp := chatTestResponse{ChatService: "operational", LLM: "connected", Status: "healthy"}
	if err := s.chat.Ping(ctx); err != nil {
		log.Warn("chat: model connectivity test failed", slog.Any("error", err))
		resp.LLM = "disconnected"
		resp.Status = "degraded"
	}
	writeJSON(w, log, http.StatusOK, resp)
}
