package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidSettings is returned when Settings fail validation.
var ErrInvalidSettings = errors.New("invalid settings")

// AuthScheme names the remote authentication strategy implied by a credential set.
type AuthScheme string

const (
	// SchemePassword exchanges a username and password for a bearer token.
	SchemePassword AuthScheme = "password"
	// SchemeToken signs every request with a consumer/token credential set.
	SchemeToken AuthScheme = "token"
)

// PasswordCredentials is the username/password pair of the password-grant scheme.
type PasswordCredentials struct {
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
}

// TokenCredentials is the signing credential set of the token-based scheme.
type TokenCredentials struct {
	ConsumerKey    string `json:"consumerKey" yaml:"consumer_key" mapstructure:"consumer_key"`
	ConsumerSecret string `json:"consumerSecret" yaml:"consumer_secret" mapstructure:"consumer_secret"`
	TokenID        string `json:"tokenId" yaml:"token_id" mapstructure:"token_id"`
	TokenSecret    string `json:"tokenSecret" yaml:"token_secret" mapstructure:"token_secret"`
}

// Complete reports whether all four secrets are present.
func (c TokenCredentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.TokenID != "" && c.TokenSecret != ""
}

// Credentials holds exactly one of the two credential shapes.
type Credentials struct {
	Password *PasswordCredentials `json:"password,omitempty" yaml:"password,omitempty"`
	Token    *TokenCredentials    `json:"token,omitempty" yaml:"token,omitempty"`
}

// Scheme returns the authentication scheme selected by the credentials.
func (c Credentials) Scheme() (AuthScheme, error) {
	switch {
	case c.Password != nil && c.Token != nil:
		return "", fmt.Errorf("%w: password and token credentials are mutually exclusive", ErrInvalidSettings)
	case c.Password != nil:
		return SchemePassword, nil
	case c.Token != nil:
		return SchemeToken, nil
	}
	return "", fmt.Errorf("%w: no credentials configured", ErrInvalidSettings)
}

// Settings are the connection coordinates and credentials for one ERP tenant.
type Settings struct {
	RemoteBaseURL string      `json:"remoteBaseUrl" yaml:"remote_base_url"`
	AccountID     string      `json:"accountId" yaml:"account_id"`
	EmployeeID    string      `json:"employeeId,omitempty" yaml:"employee_id,omitempty"`
	ScriptID      string      `json:"scriptId,omitempty" yaml:"script_id,omitempty"`
	DeployID      string      `json:"deployId,omitempty" yaml:"deploy_id,omitempty"`
	Credentials   Credentials `json:"credentials" yaml:"credentials"`
}

// Normalize trims the URL and derives AccountID from a numeric host label when it is missing,
// e.g. https://1234567.app.netsuite.com yields 1234567.
func (s *Settings) Normalize() {
	s.RemoteBaseURL = strings.TrimRight(strings.TrimSpace(s.RemoteBaseURL), "/")
	s.AccountID = strings.TrimSpace(s.AccountID)
	if s.AccountID != "" || s.RemoteBaseURL == "" {
		return
	}
	u, err := url.Parse(s.RemoteBaseURL)
	if err != nil {
		return
	}
	label, _, _ := strings.Cut(u.Hostname(), ".")
	if label != "" && strings.Trim(label, "0123456789") == "" {
		s.AccountID = label
	}
}

// Validate checks that the settings can be used to build a remote client.
func (s Settings) Validate() error {
	u, err := url.Parse(s.RemoteBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: remote base url %q must be an absolute http(s) url", ErrInvalidSettings, s.RemoteBaseURL)
	}
	if s.AccountID == "" {
		return fmt.Errorf("%w: account id is required (e.g. 1234567 for https://1234567.app.netsuite.com)", ErrInvalidSettings)
	}
	scheme, err := s.Credentials.Scheme()
	if err != nil {
		return err
	}
	if scheme == SchemePassword && (s.Credentials.Password.Username == "" || s.Credentials.Password.Password == "") {
		return fmt.Errorf("%w: username and password are required", ErrInvalidSettings)
	}
	return nil
}

// Redacted returns a copy with every secret masked, suitable for display.
func (s Settings) Redacted() Settings {
	out := s
	if p := s.Credentials.Password; p != nil {
		out.Credentials.Password = &PasswordCredentials{Username: p.Username, Password: mask(p.Password)}
	}
	if t := s.Credentials.Token; t != nil {
		out.Credentials.Token = &TokenCredentials{
			ConsumerKey:    t.ConsumerKey,
			ConsumerSecret: mask(t.ConsumerSecret),
			TokenID:        t.TokenID,
			TokenSecret:    mask(t.TokenSecret),
		}
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
