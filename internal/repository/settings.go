package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

// SettingsKey is the constant id of the single settings record.
const SettingsKey = "app"

// SQLSettingsRepository stores the settings record in the settings table.
type SQLSettingsRepository struct {
	// DB is the database handle for executing queries.
	DB *sqlx.DB
}

// NewSQLSettingsRepository creates a new SQLSettingsRepository with the given handle.
func NewSQLSettingsRepository(db *sqlx.DB) *SQLSettingsRepository {
	return &SQLSettingsRepository{DB: db}
}

// Save overwrites the settings record. Credentials are stored as given, without encryption.
func (r *SQLSettingsRepository) Save(ctx context.Context, settings models.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return storageErr("save settings", err)
	}
	query := r.DB.Rebind(`
		INSERT INTO settings (id, data) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`)
	if _, err := r.DB.ExecContext(ctx, query, SettingsKey, string(data)); err != nil {
		return storageErr("save settings", err)
	}
	return nil
}

// Load returns the settings record, or nil when none has been saved yet.
func (r *SQLSettingsRepository) Load(ctx context.Context) (*models.Settings, error) {
	var data string
	err := r.DB.GetContext(ctx, &data, r.DB.Rebind(`SELECT data FROM settings WHERE id = ?`), SettingsKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load settings", err)
	}

	var settings models.Settings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, storageErr("decode settings", err)
	}
	return &settings, nil
}
