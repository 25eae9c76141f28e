// Package chat answers user questions with an LLM, grounding the answer in
// fragments retrieved from the knowledge base and in the session's recent
// conversation history.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ragchat-go/internal/budget"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/rag"
	"github.com/54b3r/ragchat-go/internal/store"
)

// ErrEmptyMessage is returned by Reply when the user message is blank.
var ErrEmptyMessage = errors.New("chat: message must not be empty")

// SystemPrompt instructs the model how to use the knowledge base context.
const SystemPrompt = `You are a helpful AI assistant with access to a knowledge base through RAG (Retrieval-Augmented Generation).

When responding to users:
1. Use the provided context from the knowledge base when relevant
2. If the context contains relevant information, reference it naturally in your response
3. If the context doesn't contain relevant information, respond based on your general knowledge
4. Be concise but helpful
5. If you're unsure about something, acknowledge it honestly
6. Always maintain a friendly and professional tone

When context is provided, integrate it naturally into your response without explicitly mentioning "based on the provided context" unless specifically asked about your sources.`

// FallbackReply is returned when the model produces no text.
const FallbackReply = "I apologize, but I'm having trouble generating a response right now. Please try again."

// Context block framing around retrieved fragments.
const (
	contextHeader    = "\n\n=== KNOWLEDGE BASE CONTEXT ===\n"
	contextSeparator = "\n\n---\n"
	contextFooter    = "\n=== END CONTEXT ===\n\n"

	// previewRunes is the length of a source's content preview.
	previewRunes = 200

	// DefaultHistoryMessages is the number of prior messages sent to the model.
	DefaultHistoryMessages = 10
)

// Request is a single user turn.
type Request struct {
	// Message is the user's question.
	Message string `json:"message"`
	// SessionID continues an existing conversation. Empty starts a new one.
	SessionID string `json:"session_id,omitempty"`
	// UseRAG enables knowledge base retrieval. Defaults to true when omitted
	// from JSON.
	UseRAG bool `json:"use_rag"`
}

// UnmarshalJSON decodes a Request, defaulting UseRAG to true.
func (r *Request) UnmarshalJSON(b []byte) error {
	type plain Request
	p := plain{UseRAG: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Request(p)
	return nil
}

// Source describes one fragment used to ground a reply.
type Source struct {
	// ChunkID is the fragment identifier.
	ChunkID string `json:"chunk_id"`
	// Filename is the fragment's source document.
	Filename string `json:"filename"`
	// Score is the cosine similarity to the question.
	Score float64 `json:"score"`
	// ContentPreview is the first 200 characters of the fragment.
	ContentPreview string `json:"content_preview"`
}

// Response is the assistant's reply to a Request.
type Response struct {
	// Response is the generated answer.
	Response string `json:"response"`
	// SessionID identifies the conversation the turn was recorded in.
	SessionID string `json:"session_id"`
	// Sources lists the fragments injected as context.
	Sources []Source `json:"sources"`
	// Timestamp is when the reply was produced.
	Timestamp time.Time `json:"timestamp"`
}

// Config holds the dependencies and tuning of a Service.
type Config struct {
	// Model generates replies.
	Model model.BaseChatModel
	// Store persists conversation history.
	Store store.ConversationStore
	// Retriever supplies knowledge base context. Nil disables retrieval.
	Retriever rag.Retriever
	// HistoryMessages is the number of prior messages sent to the model
	// (default DefaultHistoryMessages).
	HistoryMessages int
	// MaxContextTokens is the prompt budget (default budget.DefaultMaxContextTokens).
	MaxContextTokens int
	// Temperature and MaxTokens are passed as per-call model options when
	// non-zero.
	Temperature float32
	MaxTokens   int
}

// Service answers chat requests. It is safe for concurrent use.
type Service struct {
	// model generates replies.
	model model.BaseChatModel
	// store persists conversation history.
	store store.ConversationStore
	// retriever supplies knowledge base context; nil disables retrieval.
	retriever rag.Retriever
	// historyMessages is the number of prior messages sent to the model.
	historyMessages int
	// maxContextTokens is the prompt budget in estimated tokens.
	maxContextTokens int
	// opts are the per-call generation options.
	opts []model.Option
}

// NewService constructs a Service from cfg.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Model == nil {
		return nil, fmt.Errorf("chat: model must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("chat: store must not be nil")
	}
	s := &Service{
		model:            cfg.Model,
		store:            cfg.Store,
		retriever:        cfg.Retriever,
		historyMessages:  cfg.HistoryMessages,
		maxContextTokens: cfg.MaxContextTokens,
	}
	if s.historyMessages <= 0 {
		s.historyMessages = DefaultHistoryMessages
	}
	if s.maxContextTokens <= 0 {
		s.maxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.Temperature > 0 {
		s.opts = append(s.opts, model.WithTemperature(cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		s.opts = append(s.opts, model.WithMaxTokens(cfg.MaxTokens))
	}
	return s, nil
}

// Reply records the user's message, generates an answer grounded in the
// session history and retrieved context, records the answer, and returns it.
// Retrieval failures degrade to an answer without context; model failures
// are returned as errors and leave only the user message recorded.
func (s *Service) Reply(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	log := logging.FromContext(ctx)

	sessionID, err := s.store.CreateSession(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	log = log.With(slog.String("session_id", sessionID))

	prior, err := s.store.Recent(ctx, sessionID, s.historyMessages)
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}
	if err := s.store.Append(ctx, sessionID, store.RoleUser, req.Message); err != nil {
		return nil, fmt.Errorf("chat: record user message: %w", err)
	}

	var results []rag.SearchResult
	if req.UseRAG && s.retriever != nil {
		results = s.retriever.Retrieve(ctx, req.Message)
	}

	msgs, used := s.buildPrompt(req.Message, prior, results)
	if used < len(results) {
		log.Warn("chat: context trimmed to fit token budget",
			"retrieved", len(results),
			"used", used,
		)
		results = results[:used]
	}

	log.Debug("chat: generating reply",
		"history_messages", len(msgs)-2,
		"context_fragments", len(results),
	)
	out, err := s.model.Generate(ctx, msgs, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("chat: generate: %w", err)
	}

	reply := ""
	if out != nil {
		reply = strings.TrimSpace(out.Content)
	}
	if reply == "" {
		log.Warn("chat: model returned empty reply")
		reply = FallbackReply
	}

	if err := s.store.Append(ctx, sessionID, store.RoleAssistant, reply); err != nil {
		return nil, fmt.Errorf("chat: record reply: %w", err)
	}

	return &Response{
		Response:  reply,
		SessionID: sessionID,
		Sources:   sourcesFrom(results),
		Timestamp: time.Now().UTC(),
	}, nil
}

// buildPrompt assembles system prompt, history, and the user turn with the
// context block prepended. It returns the messages and the number of
// results that fit the token budget.
func (s *Service) buildPrompt(question string, prior []store.Message, results []rag.SearchResult) ([]*schema.Message, int) {
	system := schema.SystemMessage(SystemPrompt)
	bare := schema.UserMessage(question)

	available := s.maxContextTokens - budget.EstimateMessages([]*schema.Message{system, bare}) -
		budget.Estimate(contextHeader+contextFooter)
	passages := make([]string, len(results))
	for i, r := range results {
		passages[i] = formatPassage(r)
	}
	used := budget.FitContext(passages, budget.Estimate(contextSeparator), available)

	user := bare
	if used > 0 {
		user = schema.UserMessage(contextHeader + strings.Join(passages[:used], contextSeparator) + contextFooter + question)
	}

	history := make([]*schema.Message, 0, len(prior))
	for _, m := range prior {
		if m.Role == store.RoleAssistant {
			history = append(history, schema.AssistantMessage(m.Content, nil))
		} else {
			history = append(history, schema.UserMessage(m.Content))
		}
	}
	history = budget.TrimHistory([]*schema.Message{system, user}, history, s.maxContextTokens)

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, system)
	msgs = append(msgs, history...)
	msgs = append(msgs, user)
	return msgs, used
}

// formatPassage renders one fragment for the context block.
func formatPassage(r rag.SearchResult) string {
	name := r.Metadata.SourceName
	if name == "" {
		name = "Unknown"
	}
	return "Source: " + name + "\n" + r.Content
}

// sourcesFrom converts search results into reply sources.
func sourcesFrom(results []rag.SearchResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		name := r.Metadata.SourceName
		if name == "" {
			name = "Unknown"
		}
		sources = append(sources, Source{
			ChunkID:        r.ID,
			Filename:       name,
			Score:          r.Score,
			ContentPreview: Preview(r.Content),
		})
	}
	return sources
}

// Preview returns the first 200 characters of content followed by "..." when
// content is longer.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	i, n := 0, 0
	for i = range content {
		if n == previewRunes {
			break
		}
		n++
	}
	return content[:i] + "..."
}

// Ping sends a minimal prompt to verify the model is reachable.
func (s *Service) Ping(ctx context.Context) error {
	out, err := s.model.Generate(ctx, []*schema.Message{schema.UserMessage("Hello")}, model.WithMaxTokens(8))
	if err != nil {
		return fmt.Errorf("chat: ping: %w", err)
	}
	if out == nil {
		return fmt.Errorf("chat: ping: empty response")
	}
	return nil
}
