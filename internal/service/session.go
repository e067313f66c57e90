// Package service holds the client-side business logic: the session that owns
// settings and the active remote client, the sync coordinator that drives entries
// from pending to submitted or error, settings management and connectivity monitoring.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/models"
	"github.com/atinyakov/TimeKeeper/internal/remote"
)

// SettingsStore persists the single settings record.
type SettingsStore interface {
	// Save overwrites the stored settings.
	Save(ctx context.Context, settings models.Settings) error
	// Load returns the stored settings, or nil if none were saved.
	Load(ctx context.Context) (*models.Settings, error)
}

// ClientFactory builds an unauthenticated remote client for the given settings.
type ClientFactory func(settings models.Settings) (remote.Client, error)

// Session is the in-memory state of one running client: the active settings,
// the authenticated remote client, the cached projects and the online flag.
type Session struct {
	store     SettingsStore
	newClient ClientFactory
	log       *zap.Logger

	mu       sync.RWMutex
	settings *models.Settings
	client   remote.Client
	projects []models.Project

	online atomic.Bool
}

// NewSession returns an empty, offline session.
func NewSession(store SettingsStore, newClient ClientFactory, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{store: store, newClient: newClient, log: log}
}

// Restore loads the persisted settings and, when present, builds and authenticates
// the remote client. Only a storage failure is returned: an authentication failure
// leaves the session without a client so entries stay pending.
func (s *Session) Restore(ctx context.Context) error {
	saved, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if saved == nil {
		s.log.Info("no settings saved, remote sync disabled")
		return nil
	}

	s.mu.Lock()
	settings := *saved
	s.settings = &settings
	s.mu.Unlock()

	client, err := s.newClient(settings)
	if err != nil {
		s.log.Warn("failed to build remote client", zap.Error(err))
		return nil
	}
	if err := client.Authenticate(ctx, settings.Credentials); err != nil {
		s.log.Warn("remote authentication failed, entries will stay pending", zap.Error(err))
		return nil
	}
	s.install(settings, client)

	if _, err := s.RefreshProjects(ctx); err != nil {
		s.log.Warn("failed to load projects", zap.Error(err))
	}
	return nil
}

func (s *Session) install(settings models.Settings, client remote.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	s.client = client
	s.projects = nil
}

// Settings returns a copy of the active settings.
func (s *Session) Settings() (models.Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return models.Settings{}, false
	}
	return *s.settings, true
}

// Client returns the authenticated remote client or nil.
func (s *Session) Client() remote.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Projects returns the cached project list.
func (s *Session) Projects() []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Project(nil), s.projects...)
}

// RefreshProjects refetches the project list through the active client.
func (s *Session) RefreshProjects(ctx context.Context) ([]models.Project, error) {
	client := s.Client()
	if client == nil {
		return nil, ErrNotConfigured
	}
	projects, err := client.GetProjects(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.projects = projects
	s.mu.Unlock()
	return append([]models.Project(nil), projects...), nil
}

// Online reports the last known connectivity state.
func (s *Session) Online() bool { return s.online.Load() }

// setOnline records the state and reports whether it changed.
func (s *Session) setOnline(online bool) bool {
	return s.online.Swap(online) != online
}

// Close drops the client and the cached projects.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.projects = nil
	s.online.Store(false)
}
