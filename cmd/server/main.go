// Package main starts the ERP stand-in server: the password-grant token endpoint,
// the record REST API and the signed restlet, backed by an in-memory ledger.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/config"
	"github.com/atinyakov/TimeKeeper/internal/erp"
	"github.com/atinyakov/TimeKeeper/internal/logger"
	"github.com/atinyakov/TimeKeeper/internal/middleware"
	"github.com/atinyakov/TimeKeeper/internal/nonce"
	"github.com/atinyakov/TimeKeeper/internal/server/handler/http"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// tokenTTL is the lifetime of issued bearer tokens.
const tokenTTL = time.Hour

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	options, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options.Server, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

// newHandler wires the ledger, token issuer and nonce store into the router.
// The returned function releases background resources.
func newHandler(opts config.ServerOptions, log *zap.Logger) (nethttp.Handler, func()) {
	ledger := erp.NewLedger(opts.Projects, log)
	issuer := erp.NewTokenIssuer(tokenTTL)

	window := cmp.Or(opts.NonceWindow, 5*time.Minute)
	nonces := nonce.NewMemoryStore()
	nonces.StartJanitor(window)

	verifier := &middleware.OAuthVerifier{
		Realm:       opts.AccountID,
		Credentials: opts.TokenCredentials,
		Window:      window,
		Nonces:      nonces,
	}

	router := http.NewRouter(
		&http.TokenHandler{AccountID: opts.AccountID, Users: opts.Users, Issuer: issuer},
		&http.RecordHandler{Ledger: ledger},
		&http.RestletHandler{Ledger: ledger},
		middleware.BearerAuth(issuer),
		middleware.OAuthAuth(verifier, log),
		log,
	)
	return router, nonces.Close
}

// run serves until ctx is done, then shuts down gracefully.
// TLS is enabled when both a certificate and a key are configured.
func run(ctx context.Context, opts config.ServerOptions, log *zap.Logger) error {
	handler, release := newHandler(opts, log)
	defer release()

	server := &nethttp.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := opts.TLSCert != "" && opts.TLSKey != ""
	if useTLS {
		cert, err := tls.LoadX509KeyPair(opts.TLSCert, opts.TLSKey)
		if err != nil {
			return fmt.Errorf("failed to load server TLS cert/key: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting ERP stand-in",
			zap.String("addr", opts.Addr),
			zap.Bool("tls", useTLS),
			zap.Int("projects", len(opts.Projects)))
		var err error
		if useTLS {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
