package erp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Principal is the user a bearer token was issued to.
type Principal struct {
	Username   string
	EmployeeID string
}

type issuedToken struct {
	principal Principal
	expires   time.Time
}

// TokenIssuer hands out opaque bearer tokens and resolves them.
type TokenIssuer struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	tokens map[string]issuedToken
}

// NewTokenIssuer returns an issuer whose tokens live for ttl.
func NewTokenIssuer(ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{ttl: ttl, now: time.Now, tokens: make(map[string]issuedToken)}
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue creates a token for p.
func (t *TokenIssuer) Issue(p Principal) string {
	token := uuid.NewString()
	t.mu.Lock()
	t.tokens[token] = issuedToken{principal: p, expires: t.now().Add(t.ttl)}
	t.mu.Unlock()
	return token
}

// Lookup resolves an unexpired token.
func (t *TokenIssuer) Lookup(token string) (Principal, bool) {
	t.mu.RLock()
	it, ok := t.tokens[token]
	t.mu.RUnlock()
	if !ok || !t.now().Before(it.expires) {
		return Principal{}, false
	}
	return it.principal, true
}
