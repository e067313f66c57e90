// Package http implements the ERP stand-in: the password-grant token endpoint,
// the record REST API and the signed restlet endpoint.
package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/TimeKeeper/internal/config"
	"github.com/atinyakov/TimeKeeper/internal/erp"
)

// TokenIssuer issues opaque bearer tokens.
type TokenIssuer interface {
	Issue(p erp.Principal) string
	TTL() time.Duration
}

// TokenHandler serves the OAuth 2.0 password grant.
type TokenHandler struct {
	// AccountID is the expected client_id.
	AccountID string
	Users     []config.ServerUser
	Issuer    TokenIssuer
}

// Token handles POST /services/oauth2/v1/token.
// It expects a form with grant_type=password, client_id, username, password and scope.
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "malformed form body")
		return
	}
	form := r.PostForm
	if form.Get("grant_type") != "password" {
		writeOAuthError(w, "unsupported_grant_type", "only the password grant is supported")
		return
	}
	if h.AccountID != "" && form.Get("client_id") != h.AccountID {
		writeOAuthError(w, "invalid_client", "unknown client_id")
		return
	}
	if form.Get("scope") != "rest_webservices" {
		writeOAuthError(w, "invalid_scope", "scope must be rest_webservices")
		return
	}

	user, ok := h.match(form.Get("username"), form.Get("password"))
	if !ok {
		writeOAuthError(w, "invalid_grant", "invalid username or password")
		return
	}

	token := h.Issuer.Issue(erp.Principal{Username: user.Username, EmployeeID: user.EmployeeID})
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.Issuer.TTL().Seconds()),
	})
}

func (h *TokenHandler) match(username, password string) (config.ServerUser, bool) {
	for _, u := range h.Users {
		if u.Username == username && passwordMatches(u.Password, password) {
			return u, true
		}
	}
	return config.ServerUser{}, false
}

// passwordMatches accepts either a bcrypt hash or a plain configured password.
func passwordMatches(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func writeOAuthError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code, "error_description": description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
