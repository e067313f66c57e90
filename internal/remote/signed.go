package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/models"
	"github.com/atinyakov/TimeKeeper/internal/oauth1"
)

// RestletPath is the restlet dispatcher path relative to the tenant base URL.
const RestletPath = "/app/site/hosting/restlet.nl"

// SignedClient calls a restlet endpoint with every request signed by oauth1.
// Authentication performs no network call.
type SignedClient struct {
	api      api
	endpoint string
	realm    string

	mu     sync.RWMutex
	signer *oauth1.Signer
}

// NewSignedClient returns a SignedClient that still needs Authenticate.
func NewSignedClient(settings models.Settings, httpClient *http.Client, log *zap.Logger) *SignedClient {
	return &SignedClient{
		api:      api{http: httpClient, log: log},
		endpoint: RestletURL(settings.RemoteBaseURL, settings.ScriptID, settings.DeployID),
		realm:    settings.AccountID,
	}
}

// RestletURL builds <base>/app/site/hosting/restlet.nl?script=<id>&deploy=<id>.
func RestletURL(baseURL, scriptID, deployID string) string {
	q := url.Values{"script": {scriptID}, "deploy": {deployID}}
	return strings.TrimRight(baseURL, "/") + RestletPath + "?" + q.Encode()
}

// Authenticate checks that all four token secrets are present and prepares the signer.
func (c *SignedClient) Authenticate(_ context.Context, creds models.Credentials) error {
	if creds.Token == nil || !creds.Token.Complete() {
		return fmt.Errorf("%w: consumer key, consumer secret, token id and token secret are required", ErrMissingCredentials)
	}
	signer, err := oauth1.NewSigner(*creds.Token, c.realm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingCredentials, err)
	}

	c.mu.Lock()
	c.signer = signer
	c.mu.Unlock()
	return nil
}

func (c *SignedClient) sign(req *http.Request) error {
	c.mu.RLock()
	signer := c.signer
	c.mu.RUnlock()
	if signer == nil {
		return fmt.Errorf("%w: not authenticated", ErrAuthenticationFailed)
	}
	return signer.SignRequest(req)
}

type restletResponse struct {
	Success  bool             `json:"success"`
	Error    looseString      `json:"error"`
	ID       looseString      `json:"id"`
	Projects []restletProject `json:"projects"`
}

type restletProject struct {
	ID       looseString `json:"id"`
	Name     looseString `json:"name"`
	Customer looseString `json:"customer"`
}

func (c *SignedClient) call(ctx context.Context, method string, payload any) (restletResponse, error) {
	req, err := newJSONRequest(ctx, method, c.endpoint, payload)
	if err != nil {
		return restletResponse{}, err
	}
	resp, body, err := c.api.send(req, c.sign)
	if err != nil {
		return restletResponse{}, err
	}

	var out restletResponse
	if err := decode(resp.StatusCode, body, &out); err != nil {
		return restletResponse{}, err
	}
	if !out.Success {
		msg := string(out.Error)
		if msg == "" {
			msg = "restlet reported failure"
		}
		return restletResponse{}, &RejectedError{StatusCode: resp.StatusCode, Message: msg}
	}
	return out, nil
}

// GetProjects calls the restlet's GET handler.
func (c *SignedClient) GetProjects(ctx context.Context) ([]models.Project, error) {
	out, err := c.call(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, fmt.Errorf("get projects: %w", err)
	}
	projects := make([]models.Project, 0, len(out.Projects))
	for _, p := range out.Projects {
		projects = append(projects, models.Project{ID: string(p.ID), Name: string(p.Name), Customer: string(p.Customer)})
	}
	return projects, nil
}

// restletTimeEntry is the entry as the restlet receives it; hours travel as a JSON number.
type restletTimeEntry struct {
	ID          string      `json:"id"`
	Date        string      `json:"date"`
	Project     string      `json:"project"`
	Hours       json.Number `json:"hours"`
	Description string      `json:"description"`
	Status      string      `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
}

// SubmitTimeEntry posts the entry to the restlet's POST handler.
func (c *SignedClient) SubmitTimeEntry(ctx context.Context, entry models.TimeEntry) (Confirmation, error) {
	out, err := c.call(ctx, http.MethodPost, restletTimeEntry{
		ID:          entry.ID,
		Date:        entry.Date,
		Project:     entry.Project,
		Hours:       json.Number(entry.Hours.String()),
		Description: entry.Description,
		Status:      string(entry.Status),
		Timestamp:   entry.Timestamp,
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("submit time entry: %w", err)
	}
	return Confirmation{ID: string(out.ID)}, nil
}
