// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/erp"
	"github.com/atinyakov/TimeKeeper/internal/models"
	"github.com/atinyakov/TimeKeeper/internal/nonce"
	"github.com/atinyakov/TimeKeeper/internal/oauth1"
)

type ctxKey string

const principalKey ctxKey = "principal"

// TokenLookup resolves a bearer token to its principal.
type TokenLookup interface {
	Lookup(token string) (erp.Principal, bool)
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" token.
// The resolved principal is stored in the request context.
func BearerAuth(tokens TokenLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
				return
			}
			p, ok := tokens.Lookup(strings.TrimSpace(token))
			if !ok {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
		})
	}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (erp.Principal, bool) {
	p, ok := ctx.Value(principalKey).(erp.Principal)
	return p, ok
}

// OAuthVerifier checks OAuth 1.0 HMAC-SHA256 signed requests.
type OAuthVerifier struct {
	// Realm is the expected account id; empty accepts any realm.
	Realm string
	// Credentials are the accepted credential sets.
	Credentials []models.TokenCredentials
	// Window bounds timestamp skew and how long nonces are remembered.
	Window time.Duration
	Nonces *nonce.MemoryStore
	Now    func() time.Time
}

var errSignature = errors.New("invalid signature")

// Verify authenticates r and returns the matching credential set.
func (v *OAuthVerifier) Verify(r *http.Request) (models.TokenCredentials, error) {
	h, err := oauth1.ParseHeader(r.Header.Get("Authorization"))
	if err != nil {
		return models.TokenCredentials{}, err
	}
	if v.Realm != "" && h.Realm != v.Realm {
		return models.TokenCredentials{}, fmt.Errorf("unknown realm %q", h.Realm)
	}

	creds, ok := v.find(h.Get(oauth1.ParamConsumerKey), h.Get(oauth1.ParamToken))
	if !ok {
		return models.TokenCredentials{}, errors.New("unknown consumer or token")
	}

	ts, err := h.Timestamp()
	if err != nil {
		return models.TokenCredentials{}, err
	}
	now := v.now()
	if skew := now.Sub(time.Unix(ts, 0)); skew > v.Window || skew < -v.Window {
		return models.TokenCredentials{}, fmt.Errorf("timestamp outside the %s window", v.Window)
	}

	valid, err := oauth1.Verify(r.Method, requestURL(r), h, creds.ConsumerSecret, creds.TokenSecret)
	if err != nil {
		return models.TokenCredentials{}, err
	}
	if !valid {
		return models.TokenCredentials{}, errSignature
	}

	if err := v.Nonces.Remember(creds.ConsumerKey+":"+h.Get(oauth1.ParamNonce), 2*v.Window); err != nil {
		return models.TokenCredentials{}, err
	}
	return creds, nil
}

func (v *OAuthVerifier) find(consumerKey, tokenID string) (models.TokenCredentials, bool) {
	for _, c := range v.Credentials {
		if c.ConsumerKey == consumerKey && c.TokenID == tokenID {
			return c, true
		}
	}
	return models.TokenCredentials{}, false
}

func (v *OAuthVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// requestURL reconstructs the absolute URL the client signed.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// OAuthAuth rejects requests whose OAuth signature does not verify.
func OAuthAuth(v *OAuthVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := v.Verify(r); err != nil {
				log.Warn("rejected signed request", zap.String("path", r.URL.Path), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"code": "INVALID_LOGIN_ATTEMPT", "message": "Invalid login attempt."},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeProblem writes an RFC 7807 style error body.
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"title": title, "detail": detail})
}
