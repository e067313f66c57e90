package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atinyakov/TimeKeeper/internal/models"
	"github.com/atinyakov/TimeKeeper/internal/remote"
	"github.com/atinyakov/TimeKeeper/internal/repository"
)

// memStore is an in-memory EntryStore; PutFunc, when set, runs before the write.
type memStore struct {
	mu      sync.Mutex
	entries map[string]models.TimeEntry
	PutFunc func(models.TimeEntry) error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]models.TimeEntry)}
}

func (m *memStore) Put(_ context.Context, e models.TimeEntry) error {
	if m.PutFunc != nil {
		if err := m.PutFunc(e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (models.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return models.TimeEntry{}, fmt.Errorf("entry %s: %w", id, repository.ErrNotFound)
	}
	return e, nil
}

func (m *memStore) GetAll(_ context.Context) ([]models.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(models.TimeEntry) bool { return true }), nil
}

func (m *memStore) GetByStatus(_ context.Context, s models.Status) ([]models.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(e models.TimeEntry) bool { return e.Status == s }), nil
}

func (m *memStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.Status]int)
	for _, e := range m.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (m *memStore) sorted(keep func(models.TimeEntry) bool) []models.TimeEntry {
	var out []models.TimeEntry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memStore) status(id string) models.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id].Status
}

type fakeSettingsStore struct {
	mu       sync.Mutex
	settings *models.Settings
	saves    int
	LoadErr  error
	SaveErr  error
}

func (f *fakeSettingsStore) Save(_ context.Context, s models.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.saves++
	f.settings = &s
	return nil
}

func (f *fakeSettingsStore) Load(_ context.Context) (*models.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return nil, f.LoadErr
	}
	return f.settings, nil
}

type fakeClient struct {
	AuthenticateFunc func(ctx context.Context, creds models.Credentials) error
	GetProjectsFunc  func(ctx context.Context) ([]models.Project, error)
	SubmitFunc       func(ctx context.Context, e models.TimeEntry) (remote.Confirmation, error)

	mu        sync.Mutex
	submitted []string
}

func (f *fakeClient) Authenticate(ctx context.Context, creds models.Credentials) error {
	if f.AuthenticateFunc == nil {
		return nil
	}
	return f.AuthenticateFunc(ctx, creds)
}

func (f *fakeClient) GetProjects(ctx context.Context) ([]models.Project, error) {
	if f.GetProjectsFunc == nil {
		return []models.Project{{ID: "1", Name: "Project A"}}, nil
	}
	return f.GetProjectsFunc(ctx)
}

func (f *fakeClient) SubmitTimeEntry(ctx context.Context, e models.TimeEntry) (remote.Confirmation, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, e.ID)
	f.mu.Unlock()
	if f.SubmitFunc == nil {
		return remote.Confirmation{ID: "R-" + e.ID}, nil
	}
	return f.SubmitFunc(ctx, e)
}

func (f *fakeClient) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func factoryFor(c remote.Client) func(models.Settings) (remote.Client, error) {
	return func(models.Settings) (remote.Client, error) { return c, nil }
}

func validSettings() models.Settings {
	return models.Settings{
		RemoteBaseURL: "https://1234567.app.netsuite.com",
		Credentials:   models.Credentials{Password: &models.PasswordCredentials{Username: "u", Password: "p"}},
	}
}
