package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragchat-go/internal/logging"
)

// Reasons recorded on ragchat_http_auth_failures_total.
const (
	authMissing = "missing"
	authInvalid = "invalid"
)

// bearerAuth guards routes with a static API key sent as
// "Authorization: Bearer <key>". The zero key disables it.
type bearerAuth struct {
	// digest is sha256(key), compared against the token's digest.
	digest  [sha256.Size]byte
	enabled bool
	// failures counts 401s by reason. Nil disables counting.
	failures *prometheus.CounterVec
}

func newBearerAuth(apiKey string, failures *prometheus.CounterVec) *bearerAuth {
	return &bearerAuth{
		digest:   sha256.Sum256([]byte(apiKey)),
		enabled:  apiKey != "",
		failures: failures,
	}
}

// wrap returns next unchanged when auth is disabled. Otherwise requests
// without a matching token get 401 with a WWW-Authenticate challenge. Token
// values never reach the log.
func (a *bearerAuth) wrap(next http.Handler) http.Handler {
	if !a.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := bearerToken(r)
		if present && a.matches(token) {
			next.ServeHTTP(w, r)
			return
		}

		reason, challenge, detail := authMissing, `Bearer realm="ragchat"`, "authorization required"
		if present {
			reason, challenge, detail = authInvalid, `Bearer realm="ragchat", error="invalid_token"`, "invalid token"
		}
		if a.failures != nil {
			a.failures.WithLabelValues(reason).Inc()
		}

		log := logging.FromContext(r.Context())
		log.Warn("auth: request rejected",
			slog.String("path", r.URL.Path),
			slog.String("reason", reason),
		)
		w.Header().Set("WWW-Authenticate", challenge)
		writeError(w, log, http.StatusUnauthorized, detail)
	})
}

func (a *bearerAuth) matches(token string) bool {
	got := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(got[:], a.digest[:]) == 1
}

// bearerToken returns the credential of a Bearer Authorization header. The
// scheme is case-insensitive. present is false when the header is absent,
// uses another scheme, or carries an empty token.
func bearerToken(r *http.Request) (token string, present bool) {
	scheme, rest, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(rest)
	return token, token != ""
}
