package remote

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Prober answers whether the ERP host is reachable.
type Prober struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

// NewProber returns a Prober issuing HEAD requests against baseURL.
func NewProber(baseURL string, client *http.Client, timeout time.Duration) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{client: client, url: strings.TrimRight(baseURL, "/") + "/", timeout: timeout}
}

// Probe reports true when any HTTP response arrives, whatever its status.
func (p *Prober) Probe(ctx context.Context) bool {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
