package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

// ErrProjectsUnavailable is returned by Update when the settings were saved
// but the project list could not be fetched.
var ErrProjectsUnavailable = errors.New("settings saved, but projects could not be loaded")

// SettingsService changes the active settings.
type SettingsService struct {
	store   SettingsStore
	session *Session
	log     *zap.Logger
}

// NewSettingsService returns a SettingsService that installs into session.
func NewSettingsService(store SettingsStore, session *Session, log *zap.Logger) *SettingsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsService{store: store, session: session, log: log}
}

// Update authenticates with the new settings before anything is saved. If the
// client cannot be built or authentication fails, the error is returned and both
// the persisted and the active settings stay as they were.
func (s *SettingsService) Update(ctx context.Context, settings models.Settings) error {
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return err
	}

	client, err := s.session.newClient(settings)
	if err != nil {
		return fmt.Errorf("build remote client: %w", err)
	}
	if err := client.Authenticate(ctx, settings.Credentials); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	if err := s.store.Save(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.session.install(settings, client)
	s.log.Info("settings saved",
		zap.String("remote", settings.RemoteBaseURL),
		zap.String("account_id", settings.AccountID))

	if _, err := s.session.RefreshProjects(ctx); err != nil {
		s.log.Warn("failed to load projects", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrProjectsUnavailable, err)
	}
	return nil
}

// Current returns the active settings.
func (s *SettingsService) Current() (models.Settings, bool) {
	return s.session.Settings()
}

// Projects refetches the project list from the ERP.
func (s *SettingsService) Projects(ctx context.Context) ([]models.Project, error) {
	return s.session.RefreshProjects(ctx)
}
