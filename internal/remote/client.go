// Package remote talks to the ERP: authentication, project listing and
// time-entry submission over either the password-grant REST API or a
// token-signed restlet endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// Client is the operation set every ERP integration variant provides.
type Client interface {
	// Authenticate establishes (or validates) credentials for subsequent calls.
	Authenticate(ctx context.Context, creds models.Credentials) error
	// GetProjects returns the projects time can be booked against.
	GetProjects(ctx context.Context) ([]models.Project, error)
	// SubmitTimeEntry books the entry and returns the ERP confirmation.
	SubmitTimeEntry(ctx context.Context, entry models.TimeEntry) (Confirmation, error)
}

// Confirmation is the ERP's acknowledgement of a submitted entry.
type Confirmation struct {
	// ID is the record id assigned by the ERP; it may be empty.
	ID string
}

// Options carries settings that are not part of the persisted models.Settings.
type Options struct {
	// ScriptID and DeployID address the restlet when Settings leave them empty.
	ScriptID string
	DeployID string
	Logger   *zap.Logger
}

// New returns the variant selected by the credential shape of settings.
func New(settings models.Settings, httpClient *http.Client, opts Options) (Client, error) {
	scheme, err := settings.Credentials.Scheme()
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	switch scheme {
	case models.SchemePassword:
		return NewPasswordClient(settings, httpClient, opts.Logger), nil
	case models.SchemeToken:
		if settings.ScriptID == "" {
			settings.ScriptID = opts.ScriptID
		}
		if settings.DeployID == "" {
			settings.DeployID = opts.DeployID
		}
		return NewSignedClient(settings, httpClient, opts.Logger), nil
	}
	return nil, fmt.Errorf("unsupported auth scheme %q", scheme)
}

// api is the request plumbing shared by both variants.
type api struct {
	http *http.Client
	log  *zap.Logger
}

// send performs req and returns the body of a 2xx response. authorize may decorate
// the request right before it is sent. Non-2xx statuses are mapped to
// ErrAuthenticationFailed (401, 403) or *RejectedError.
func (a *api) send(req *http.Request, authorize func(*http.Request) error) (*http.Response, []byte, error) {
	if authorize != nil {
		if err := authorize(req); err != nil {
			return nil, nil, err
		}
	}

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		a.log.Debug("remote request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		if errors.Is(err, ErrRemoteUnavailable) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %w", ErrRemoteUnavailable, err)
	}

	a.log.Debug("remote request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp, body, fmt.Errorf("%w: %s", ErrAuthenticationFailed, errorMessage(body, http.StatusText(resp.StatusCode)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp, body, &RejectedError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, http.StatusText(resp.StatusCode)),
		}
	}
	return resp, body, nil
}

func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// decode unmarshals a successful response body; a malformed body is a rejection.
func decode(status int, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &RejectedError{StatusCode: status, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}
