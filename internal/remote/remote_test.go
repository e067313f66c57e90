package remote

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestNew_SelectsVariant(t *testing.T) {
	s := models.Settings{RemoteBaseURL: "https://1.example.com", AccountID: "1"}

	s.Credentials = models.Credentials{Password: &models.PasswordCredentials{Username: "u", Password: "p"}}
	c, err := New(s, nil, Options{})
	require.NoError(t, err)
	assert.IsType(t, &PasswordClient{}, c)

	s.Credentials = models.Credentials{Token: &models.TokenCredentials{ConsumerKey: "ck"}}
	c, err = New(s, nil, Options{ScriptID: "s1", DeployID: "d1"})
	require.NoError(t, err)
	require.IsType(t, &SignedClient{}, c)
	assert.Equal(t, "https://1.example.com/app/site/hosting/restlet.nl?deploy=d1&script=s1", c.(*SignedClient).endpoint)

	_, err = New(models.Settings{}, nil, Options{})
	assert.ErrorIs(t, err, models.ErrInvalidSettings)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", ErrRemoteUnavailable, true},
		{"wrapped unavailable", errors.Join(errors.New("x"), ErrRemoteUnavailable), true},
		{"server fault", &RejectedError{StatusCode: 502}, true},
		{"throttled", &RejectedError{StatusCode: 429}, true},
		{"validation", &RejectedError{StatusCode: 400}, false},
		{"auth", ErrAuthenticationFailed, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRejectedError_MatchesSentinel(t *testing.T) {
	var err error = &RejectedError{StatusCode: 400, Message: "bad project"}
	assert.ErrorIs(t, err, ErrRemoteRejected)
	assert.Contains(t, err.Error(), "bad project")
}

func TestLooseString(t *testing.T) {
	tests := map[string]string{
		`"abc"`:                 "abc",
		`123`:                   "123",
		`12.5`:                  "12.5",
		`null`:                  "",
		`{"name":"Acme"}`:       "Acme",
		`{"refName":"Acme Co"}`: "Acme Co",
		`{"id":7}`:              "7",
		`{"message":"boom"}`:    "boom",
	}
	for in, want := range tests {
		var s looseString
		require.NoError(t, s.UnmarshalJSON([]byte(in)), in)
		assert.Equal(t, want, string(s), in)
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "hours invalid", errorMessage([]byte(`{"title":"Bad","detail":"hours invalid"}`), "x"))
	assert.Equal(t, "nope", errorMessage([]byte(`{"error":{"message":"nope"}}`), "x"))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text\n"), "x"))
	assert.Equal(t, "fallback", errorMessage(nil, "fallback"))
}
