package oauth1

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

var testCreds = models.TokenCredentials{
	ConsumerKey:    "ck",
	ConsumerSecret: "c&s",
	TokenID:        "ti",
	TokenSecret:    "t s",
}

func TestEncode(t *testing.T) {
	tests := map[string]string{
		"abc":      "abc",
		"a b":      "a%20b",
		"~-._":     "~-._",
		"a+b/c=":   "a%2Bb%2Fc%3D",
		"ü":        "%C3%BC",
		"x&y=z?":   "x%26y%3Dz%3F",
		"ABCxyz09": "ABCxyz09",
	}
	for in, want := range tests {
		assert.Equal(t, want, Encode(in), in)
	}
}

func TestSigningKey(t *testing.T) {
	assert.Equal(t, "c%26s&t%20s", SigningKey("c&s", "t s"))
}

func TestBaseString_FixedOrderWithoutQuery(t *testing.T) {
	p := Params{Nonce: "n1", Timestamp: 1700000000}
	base, err := BaseString("post", "HTTPS://Example.COM:443/services/rest", protocolParams(p, testCreds))
	require.NoError(t, err)

	params := "oauth_consumer_key=ck&oauth_nonce=n1&oauth_signature_method=HMAC-SHA256" +
		"&oauth_timestamp=1700000000&oauth_token=ti&oauth_version=1.0"
	want := "POST&" + Encode("https://example.com/services/rest") + "&" + Encode(params)
	assert.Equal(t, want, base)
}

func TestBaseString_IncludesSortedQuery(t *testing.T) {
	p := Params{Nonce: "n1", Timestamp: 1}
	base, err := BaseString("GET", "http://localhost:8080/app/site/hosting/restlet.nl?script=s1&deploy=d1", protocolParams(p, testCreds))
	require.NoError(t, err)

	params := "deploy=d1&oauth_consumer_key=ck&oauth_nonce=n1&oauth_signature_method=HMAC-SHA256" +
		"&oauth_timestamp=1&oauth_token=ti&oauth_version=1.0&script=s1"
	want := "GET&" + Encode("http://localhost:8080/app/site/hosting/restlet.nl") + "&" + Encode(params)
	assert.Equal(t, want, base)
}

func TestBaseString_RejectsRelativeURL(t *testing.T) {
	_, err := BaseString("GET", "/relative", nil)
	assert.Error(t, err)
}

func TestSign_DeterministicAndMatchesHMAC(t *testing.T) {
	p := Params{Nonce: "fixed", Timestamp: 1700000000}
	url := "https://1234567.restlets.api.netsuite.com/app/site/hosting/restlet.nl?script=1&deploy=1"

	a, err := Sign("POST", url, p, testCreds)
	require.NoError(t, err)
	b, err := Sign("POST", url, p, testCreds)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	base, err := BaseString("POST", url, protocolParams(p, testCreds))
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte("c%26s&t%20s"))
	mac.Write([]byte(base))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), a)

	c, err := Sign("POST", url, Params{Nonce: "other", Timestamp: 1700000000}, testCreds)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestNewNonce(t *testing.T) {
	urlSafe := regexp.MustCompile(`^[A-Za-z0-9_-]{32}$`)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		n, err := NewNonce()
		require.NoError(t, err)
		require.Regexp(t, urlSafe, n)
		_, dup := seen[n]
		require.False(t, dup, "duplicate nonce %s", n)
		seen[n] = struct{}{}
	}
}

func fixedSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testCreds, "1234567_SB1")
	require.NoError(t, err)
	s.Now = func() time.Time { return time.Unix(1700000000, 0) }
	s.Nonce = func() (string, error) { return "nonce-1", nil }
	return s
}

func TestSigner_HeaderRoundTrip(t *testing.T) {
	s := fixedSigner(t)
	url := "http://localhost:8080/app/site/hosting/restlet.nl?script=a&deploy=b"

	req, err := http.NewRequest(http.MethodPost, url, nil)
	require.NoError(t, err)
	require.NoError(t, s.SignRequest(req))

	value := req.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(value, `OAuth realm="1234567_SB1", oauth_consumer_key="ck", oauth_token="ti"`), value)

	h, err := ParseHeader(value)
	require.NoError(t, err)
	assert.Equal(t, "1234567_SB1", h.Realm)
	assert.Equal(t, "nonce-1", h.Get(ParamNonce))
	ts, err := h.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)

	ok, err := Verify(http.MethodPost, url, h, testCreds.ConsumerSecret, testCreds.TokenSecret)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(http.MethodGet, url, h, testCreds.ConsumerSecret, testCreds.TokenSecret)
	require.NoError(t, err)
	assert.False(t, ok, "method is part of the signature")

	ok, err = Verify(http.MethodPost, url, h, testCreds.ConsumerSecret, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewSigner_Incomplete(t *testing.T) {
	_, err := NewSigner(models.TokenCredentials{ConsumerKey: "ck"}, "1")
	assert.ErrorIs(t, err, ErrIncompleteCredentials)
}

func TestParseHeader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"bearer", "Bearer abc"},
		{"no pairs", "OAuth"},
		{"unquoted", `OAuth oauth_consumer_key=ck`},
		{"missing signature", `OAuth oauth_consumer_key="ck", oauth_token="t", oauth_signature_method="HMAC-SHA256", oauth_timestamp="1", oauth_nonce="n"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(tt.value)
			assert.ErrorIs(t, err, ErrInvalidHeader)
		})
	}
}
