package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/rag"
)

// Default retry and rate-limit settings for Resilient.
const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// defaultInitialInterval is the first backoff delay.
	defaultInitialInterval = 250 * time.Millisecond
	// defaultMaxInterval caps a single backoff delay.
	defaultMaxInterval = 5 * time.Second
)

// ResilientConfig holds the settings for wrapping an Embedder.
type ResilientConfig struct {
	// RatePerSecond is the sustained number of provider calls allowed per
	// second. 0 disables rate limiting.
	RatePerSecond float64
	// Burst is the token bucket size. Defaults to 1 when rate limiting is on.
	Burst int
	// MaxRetries is the number of retries after the first failed attempt.
	// Negative disables retries; 0 uses DefaultMaxRetries.
	MaxRetries int
	// InitialInterval is the first backoff delay (default 250ms).
	InitialInterval time.Duration
	// MaxInterval caps a single backoff delay (default 5s).
	MaxInterval time.Duration
}

// Resilient wraps a rag.Embedder with a process-wide token bucket and
// bounded exponential retry. Client errors other than 408 and 429 are not
// retried. It is safe for concurrent use.
type Resilient struct {
	// next is the wrapped embedder.
	next rag.Embedder
	// limiter throttles provider calls; nil when rate limiting is disabled.
	limiter *rate.Limiter
	// maxRetries is the resolved retry count (0 = single attempt).
	maxRetries uint64
	// initial and maxInterval are the resolved backoff intervals.
	initial, maxInterval time.Duration
}

// NewResilient wraps next with the given rate limit and retry policy.
func NewResilient(next rag.Embedder, cfg ResilientConfig) *Resilient {
	r := &Resilient{
		next:        next,
		initial:     cfg.InitialInterval,
		maxInterval: cfg.MaxInterval,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	switch {
	case cfg.MaxRetries < 0:
		r.maxRetries = 0
	case cfg.MaxRetries == 0:
		r.maxRetries = DefaultMaxRetries
	default:
		r.maxRetries = uint64(cfg.MaxRetries)
	}
	if r.initial <= 0 {
		r.initial = defaultInitialInterval
	}
	if r.maxInterval <= 0 {
		r.maxInterval = defaultMaxInterval
	}
	return r
}

// Embed calls the wrapped embedder, waiting for a rate-limit token before
// every attempt and retrying transient failures with exponential backoff.
func (r *Resilient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	log := logging.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)

	var out [][]float32
	attempt := 0
	op := func() error {
		attempt++
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("embedder: rate limiter: %w", err))
			}
		}
		vecs, err := r.next.Embed(ctx, texts)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = vecs
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("embedder: transient failure, retrying",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("embedder: giving up after %d attempt(s): %w", attempt, err)
	}
	return out, nil
}

// retryable reports whether err is worth another attempt. Context
// cancellation and client errors are final; everything else (network errors,
// 5xx, 429, 408) is retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if code, ok := statusCode(err); ok {
		return code == http.StatusTooManyRequests ||
			code == http.StatusRequestTimeout ||
			code >= http.StatusInternalServerError
	}
	return true
}

// statusCode extracts the HTTP status from the ollama, go-openai and genai
// error types.
func statusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	// genai returns APIError by value; accept a pointer too.
	var gErr genai.APIError
	if errors.As(err, &gErr) && gErr.Code != 0 {
		return gErr.Code, true
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil && gErrPtr.Code != 0 {
		return gErrPtr.Code, true
	}
	return 0, false
}
