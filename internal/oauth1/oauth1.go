// Package oauth1 signs HTTP requests with the OAuth 1.0 HMAC-SHA256 scheme
// used by token-based ERP integrations, and decodes the resulting header.
package oauth1

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

const (
	SignatureMethod = "HMAC-SHA256"
	Version         = "1.0"

	nonceBytes = 24
)

// Protocol parameter names.
const (
	ParamConsumerKey     = "oauth_consumer_key"
	ParamToken           = "oauth_token"
	ParamSignatureMethod = "oauth_signature_method"
	ParamTimestamp       = "oauth_timestamp"
	ParamNonce           = "oauth_nonce"
	ParamVersion         = "oauth_version"
	ParamSignature       = "oauth_signature"
)

var (
	// ErrInvalidHeader is returned by ParseHeader for malformed Authorization values.
	ErrInvalidHeader = errors.New("invalid oauth header")
	// ErrIncompleteCredentials is returned when any of the four secrets is empty.
	ErrIncompleteCredentials = errors.New("incomplete token credentials")
)

// Params are the per-request values of a signature.
type Params struct {
	Nonce     string
	Timestamp int64
}

// NewNonce returns 32 URL-safe characters drawn from crypto/rand.
func NewNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Sign computes the base64 HMAC-SHA256 signature of a request.
// It is a pure function: equal inputs always yield equal signatures.
func Sign(method, rawURL string, p Params, creds models.TokenCredentials) (string, error) {
	base, err := BaseString(method, rawURL, protocolParams(p, creds))
	if err != nil {
		return "", err
	}
	return signBase(base, creds.ConsumerSecret, creds.TokenSecret), nil
}

// SigningKey joins the encoded consumer and token secrets with '&'.
func SigningKey(consumerSecret, tokenSecret string) string {
	return Encode(consumerSecret) + "&" + Encode(tokenSecret)
}

func signBase(base, consumerSecret, tokenSecret string) string {
	mac := hmac.New(sha256.New, []byte(SigningKey(consumerSecret, tokenSecret)))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func protocolParams(p Params, creds models.TokenCredentials) map[string]string {
	return map[string]string{
		ParamConsumerKey:     creds.ConsumerKey,
		ParamNonce:           p.Nonce,
		ParamSignatureMethod: SignatureMethod,
		ParamTimestamp:       strconv.FormatInt(p.Timestamp, 10),
		ParamToken:           creds.TokenID,
		ParamVersion:         Version,
	}
}

// BaseString builds METHOD&url&params. The parameter string holds the protocol
// parameters and the URL's query parameters, encoded and sorted by key then value.
func BaseString(method, rawURL string, oauthParams map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}

	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(oauthParams)+len(u.Query()))
	for k, v := range oauthParams {
		if k == ParamSignature || k == "realm" {
			continue
		}
		pairs = append(pairs, pair{Encode(k), Encode(v)})
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			pairs = append(pairs, pair{Encode(k), Encode(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}

	return strings.ToUpper(method) + "&" + Encode(normalizeURL(u)) + "&" + Encode(strings.Join(parts, "&")), nil
}

// normalizeURL lowercases scheme and host, drops default ports, query and fragment.
func normalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// Encode percent-encodes s per RFC 3986: everything except ALPHA, DIGIT and "-._~".
func Encode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// Signer attaches Authorization headers to outgoing requests.
type Signer struct {
	Credentials models.TokenCredentials
	// Realm is the ERP account id.
	Realm string

	// Now and Nonce are replaceable for deterministic tests.
	Now   func() time.Time
	Nonce func() (string, error)
}

// NewSigner returns a Signer using the wall clock and crypto/rand nonces.
func NewSigner(creds models.TokenCredentials, realm string) (*Signer, error) {
	if !creds.Complete() {
		return nil, ErrIncompleteCredentials
	}
	return &Signer{Credentials: creds, Realm: realm, Now: time.Now, Nonce: NewNonce}, nil
}

// Header returns the Authorization header value for one request.
func (s *Signer) Header(method, rawURL string) (string, error) {
	nonce, err := s.Nonce()
	if err != nil {
		return "", err
	}
	p := Params{Nonce: nonce, Timestamp: s.Now().Unix()}
	sig, err := Sign(method, rawURL, p, s.Credentials)
	if err != nil {
		return "", err
	}
	return BuildHeader(s.Realm, p, s.Credentials, sig), nil
}

// SignRequest sets the Authorization header on req.
func (s *Signer) SignRequest(req *http.Request) error {
	h, err := s.Header(req.Method, req.URL.String())
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set("Authorization", h)
	return nil
}

// BuildHeader formats the Authorization value with every value encoded and quoted.
func BuildHeader(realm string, p Params, creds models.TokenCredentials, signature string) string {
	fields := []struct{ k, v string }{
		{"realm", realm},
		{ParamConsumerKey, creds.ConsumerKey},
		{ParamToken, creds.TokenID},
		{ParamSignatureMethod, SignatureMethod},
		{ParamTimestamp, strconv.FormatInt(p.Timestamp, 10)},
		{ParamNonce, p.Nonce},
		{ParamVersion, Version},
		{ParamSignature, signature},
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf(`%s="%s"`, f.k, Encode(f.v))
	}
	return "OAuth " + strings.Join(parts, ", ")
}
