package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// TransportOptions configures the HTTP client shared by the remote variants.
type TransportOptions struct {
	// Timeout bounds a whole request including reading the body; zero means none.
	Timeout time.Duration
	// CAFile is an optional PEM bundle trusted in addition to the system roots.
	CAFile string
	// BreakerFailures is the number of consecutive transport failures that opens the circuit; zero disables it.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open before a trial request.
	BreakerCooldown time.Duration
	Logger          *zap.Logger
}

// NewHTTPClient builds the ERP HTTP client.
func NewHTTPClient(opts TransportOptions) (*http.Client, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if opts.CAFile != "" {
		pool, err := loadCAPool(opts.CAFile)
		if err != nil {
			return nil, err
		}
		base.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	var rt http.RoundTripper = base
	if opts.BreakerFailures > 0 {
		rt = newBreakerTransport(rt, opts.BreakerFailures, opts.BreakerCooldown, log)
	}
	return &http.Client{Transport: rt, Timeout: opts.Timeout}, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	return pool, nil
}

// breakerTransport fails fast with ErrRemoteUnavailable once the ERP has been
// unreachable for several consecutive requests. HTTP error statuses do not count.
type breakerTransport struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func newBreakerTransport(next http.RoundTripper, failures uint32, cooldown time.Duration, log *zap.Logger) *breakerTransport {
	settings := gobreaker.Settings{
		Name:        "erp",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= failures },
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &breakerTransport{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.RoundTrip(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
		return nil, err
	}
	return res.(*http.Response), nil
}

// State exposes the breaker state for diagnostics.
func (t *breakerTransport) State() gobreaker.State { return t.cb.State() }
