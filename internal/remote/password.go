package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

// REST API paths relative to the tenant base URL.
const (
	TokenPath     = "/services/oauth2/v1/token"
	ProjectPath   = "/services/rest/record/v1/project"
	TimeEntryPath = "/services/rest/record/v1/timeentry"

	passwordScope = "rest_webservices"
)

// PasswordClient exchanges a username and password for a bearer token and
// uses the ERP's record REST API. The token lives in memory only.
type PasswordClient struct {
	api        api
	baseURL    string
	accountID  string
	employeeID string

	mu    sync.RWMutex
	token string
}

// NewPasswordClient returns an unauthenticated PasswordClient.
func NewPasswordClient(settings models.Settings, httpClient *http.Client, log *zap.Logger) *PasswordClient {
	return &PasswordClient{
		api:        api{http: httpClient, log: log},
		baseURL:    strings.TrimRight(settings.RemoteBaseURL, "/"),
		accountID:  settings.AccountID,
		employeeID: settings.EmployeeID,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate performs the password grant and keeps the issued access token.
func (c *PasswordClient) Authenticate(ctx context.Context, creds models.Credentials) error {
	p := creds.Password
	if p == nil || p.Username == "" || p.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrMissingCredentials)
	}

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {c.accountID},
		"username":   {p.Username},
		"password":   {p.Password},
		"scope":      {passwordScope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+TokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, body, err := c.api.send(req, nil)
	if err != nil {
		// the token endpoint answers bad credentials with 400 invalid_grant
		var rejected *RejectedError
		if errors.As(err, &rejected) && rejected.StatusCode < http.StatusInternalServerError {
			return fmt.Errorf("%w: %s", ErrAuthenticationFailed, rejected.Message)
		}
		return err
	}

	var tr tokenResponse
	if err := decode(resp.StatusCode, body, &tr); err != nil {
		return err
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("%w: token endpoint returned no access token", ErrAuthenticationFailed)
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *PasswordClient) bearer(req *http.Request) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return fmt.Errorf("%w: not authenticated", ErrAuthenticationFailed)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

type restProject struct {
	ID       looseString `json:"id"`
	Name     looseString `json:"name"`
	EntityID looseString `json:"entityId"`
	Customer looseString `json:"customer"`
}

// GetProjects lists project records.
func (c *PasswordClient) GetProjects(ctx context.Context) ([]models.Project, error) {
	req, err := newJSONRequest(ctx, http.MethodGet, c.baseURL+ProjectPath, nil)
	if err != nil {
		return nil, err
	}
	resp, body, err := c.api.send(req, c.bearer)
	if err != nil {
		return nil, fmt.Errorf("get projects: %w", err)
	}

	var payload struct {
		Items []restProject `json:"items"`
	}
	if err := decode(resp.StatusCode, body, &payload); err != nil {
		return nil, fmt.Errorf("get projects: %w", err)
	}

	projects := make([]models.Project, 0, len(payload.Items))
	for _, item := range payload.Items {
		projects = append(projects, models.Project{
			ID:       string(item.ID),
			Name:     string(firstNonEmpty(item.Name, item.EntityID)),
			Customer: string(item.Customer),
		})
	}
	return projects, nil
}

type recordRef struct {
	ID string `json:"id"`
}

type restTimeEntry struct {
	Project     recordRef   `json:"project"`
	Date        string      `json:"date"`
	Hours       json.Number `json:"hours"`
	Description string      `json:"description"`
	Employee    *recordRef  `json:"employee,omitempty"`
}

// SubmitTimeEntry creates a time entry record. The confirmation id comes from a
// JSON id in the body or from the last segment of the Location header.
func (c *PasswordClient) SubmitTimeEntry(ctx context.Context, entry models.TimeEntry) (Confirmation, error) {
	payload := restTimeEntry{
		Project:     recordRef{ID: entry.Project},
		Date:        entry.Date,
		Hours:       json.Number(entry.Hours.String()),
		Description: entry.Description,
	}
	if c.employeeID != "" {
		payload.Employee = &recordRef{ID: c.employeeID}
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.baseURL+TimeEntryPath, payload)
	if err != nil {
		return Confirmation{}, err
	}
	resp, body, err := c.api.send(req, c.bearer)
	if err != nil {
		return Confirmation{}, fmt.Errorf("submit time entry: %w", err)
	}

	var created struct {
		ID looseString `json:"id"`
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		_ = json.Unmarshal(body, &created)
	}
	id := string(created.ID)
	if id == "" {
		if loc := resp.Header.Get("Location"); loc != "" {
			id = path.Base(strings.TrimRight(loc, "/"))
		}
	}
	return Confirmation{ID: id}, nil
}
