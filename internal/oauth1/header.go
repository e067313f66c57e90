package oauth1

import (
	"crypto/hmac"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Header is a decoded OAuth Authorization value.
type Header struct {
	Realm  string
	Params map[string]string
}

// Get returns the decoded value of a protocol parameter.
func (h Header) Get(name string) string { return h.Params[name] }

// Timestamp parses oauth_timestamp.
func (h Header) Timestamp() (int64, error) {
	ts, err := strconv.ParseInt(h.Params[ParamTimestamp], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad timestamp", ErrInvalidHeader)
	}
	return ts, nil
}

// ParseHeader decodes `OAuth k="v", ...` into a Header.
func ParseHeader(value string) (Header, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "OAuth") {
		return Header{}, fmt.Errorf("%w: missing OAuth scheme", ErrInvalidHeader)
	}

	h := Header{Params: make(map[string]string)}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return Header{}, fmt.Errorf("%w: %q", ErrInvalidHeader, part)
		}
		unquoted, err := strconv.Unquote(strings.TrimSpace(v))
		if err != nil {
			return Header{}, fmt.Errorf("%w: unquoted value for %s", ErrInvalidHeader, k)
		}
		decoded, err := url.PathUnescape(unquoted)
		if err != nil {
			return Header{}, fmt.Errorf("%w: bad encoding for %s", ErrInvalidHeader, k)
		}
		k = strings.TrimSpace(k)
		if k == "realm" {
			h.Realm = decoded
			continue
		}
		h.Params[k] = decoded
	}

	for _, required := range []string{ParamConsumerKey, ParamToken, ParamSignatureMethod, ParamTimestamp, ParamNonce, ParamSignature} {
		if h.Params[required] == "" {
			return Header{}, fmt.Errorf("%w: %s is required", ErrInvalidHeader, required)
		}
	}
	return h, nil
}

// Verify recomputes the signature of method and rawURL from the header's parameters
// and reports whether it matches the one the header carries.
func Verify(method, rawURL string, h Header, consumerSecret, tokenSecret string) (bool, error) {
	if h.Params[ParamSignatureMethod] != SignatureMethod {
		return false, nil
	}
	base, err := BaseString(method, rawURL, h.Params)
	if err != nil {
		return false, err
	}
	want := signBase(base, consumerSecret, tokenSecret)
	return hmac.Equal([]byte(want), []byte(h.Params[ParamSignature])), nil
}
