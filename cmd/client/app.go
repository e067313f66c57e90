package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/config"
	"github.com/atinyakov/TimeKeeper/internal/db"
	"github.com/atinyakov/TimeKeeper/internal/models"
	"github.com/atinyakov/TimeKeeper/internal/remote"
	"github.com/atinyakov/TimeKeeper/internal/repository"
	"github.com/atinyakov/TimeKeeper/internal/service"
)

// app is the wired client: store, session, coordinator and settings service.
type app struct {
	opts *config.Options
	log  *zap.Logger
	out  io.Writer

	db       *sqlx.DB
	session  *service.Session
	settings *service.SettingsService
	coord    *service.Coordinator

	probeClient *http.Client
	// follow prints entry and connectivity changes as they happen.
	follow atomic.Bool
}

func newApp(ctx context.Context, opts *config.Options, log *zap.Logger, out io.Writer) (*app, error) {
	handle, err := db.Open(ctx, opts.Store.Driver, opts.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open local store: %w", err)
	}

	httpClient, err := remote.NewHTTPClient(remote.TransportOptions{
		Timeout:         opts.Remote.Timeout,
		CAFile:          opts.Remote.CAFile,
		BreakerFailures: opts.Remote.BreakerFailures,
		BreakerCooldown: opts.Remote.BreakerCooldown,
		Logger:          log,
	})
	if err != nil {
		_ = handle.Close()
		return nil, err
	}
	// probes bypass the breaker
	probeClient, err := remote.NewHTTPClient(remote.TransportOptions{
		Timeout: opts.Monitor.ProbeTimeout,
		CAFile:  opts.Remote.CAFile,
	})
	if err != nil {
		_ = handle.Close()
		return nil, err
	}

	a := &app{opts: opts, log: log, out: out, db: handle, probeClient: probeClient}

	newClient := func(s models.Settings) (remote.Client, error) {
		return remote.New(s, httpClient, remote.Options{
			ScriptID: opts.Remote.ScriptID,
			DeployID: opts.Remote.DeployID,
			Logger:   log,
		})
	}
	settingsRepo := repository.NewSQLSettingsRepository(handle)
	a.session = service.NewSession(settingsRepo, newClient, log)
	if err := a.session.Restore(ctx); err != nil {
		_ = handle.Close()
		return nil, err
	}
	a.settings = service.NewSettingsService(settingsRepo, a.session, log)
	a.coord = service.NewCoordinator(
		repository.NewSQLEntryRepository(handle),
		a.session,
		service.WithPushTimeout(opts.Remote.PushTimeout),
		service.WithLogger(log),
		service.WithHooks(service.Hooks{
			OnEntryChanged:        a.entryChanged,
			OnConnectivityChanged: a.connectivityChanged,
		}),
	)
	return a, nil
}

// Probe implements service.Prober against the configured ERP host. When the host is
// reachable but the session has no authenticated client, authentication is retried.
// Online means a client is installed.
func (a *app) Probe(ctx context.Context) bool {
	s, ok := a.session.Settings()
	if !ok {
		return false
	}
	if !remote.NewProber(s.RemoteBaseURL, a.probeClient, a.opts.Monitor.ProbeTimeout).Probe(ctx) {
		return false
	}
	if a.session.Client() == nil {
		if err := a.session.Restore(ctx); err != nil {
			a.log.Warn("failed to restore session", zap.Error(err))
		}
	}
	return a.session.Client() != nil
}

// refreshConnectivity probes once and delivers the result to the coordinator.
func (a *app) refreshConnectivity(ctx context.Context) {
	if _, err := a.coord.SetOnline(ctx, a.Probe(ctx)); err != nil {
		a.log.Warn("reconnect sweep failed", zap.Error(err))
	}
}

// startCheckpointer keeps the sqlite WAL short during long-running sessions.
func (a *app) startCheckpointer(ctx context.Context) {
	if a.opts.Store.Driver == "sqlite" && a.opts.Store.CheckpointInterval > 0 {
		db.StartWALCheckpointer(ctx, a.db, a.opts.Store.CheckpointInterval, a.log)
	}
}

func (a *app) newMonitor() *service.Monitor {
	return service.NewMonitor(a, a.coord, a.opts.Monitor.ProbeInterval, a.log)
}

func (a *app) entryChanged(e models.TimeEntry) {
	if !a.follow.Load() {
		return
	}
	fmt.Fprintf(a.out, "%s  entry %s %s\n", time.Now().Format("15:04:05"), e.ID, describeStatus(e))
}

func (a *app) connectivityChanged(online bool) {
	if !a.follow.Load() {
		return
	}
	state := "offline"
	if online {
		state = "online"
	}
	fmt.Fprintf(a.out, "%s  %s\n", time.Now().Format("15:04:05"), state)
}

func (a *app) close() {
	a.session.Close()
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close local store", zap.Error(err))
	}
	_ = a.log.Sync()
}
