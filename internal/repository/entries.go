// Package repository provides the local store: durable time entries with a
// status index and the single settings record, on top of sqlite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

// createdAtLayout is fixed-width so that text ordering equals chronological ordering.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

const entryColumns = `id, date, project, hours, description, status, remote_id, last_error, created_at`

const upsertEntry = `
	INSERT INTO time_entries (id, date, project, hours, description, status, remote_id, last_error, created_at)
	VALUES (:id, :date, :project, :hours, :description, :status, :remote_id, :last_error, :created_at)
	ON CONFLICT (id) DO UPDATE SET
		date = excluded.date,
		project = excluded.project,
		hours = excluded.hours,
		description = excluded.description,
		status = excluded.status,
		remote_id = excluded.remote_id,
		last_error = excluded.last_error,
		created_at = excluded.created_at
`

// entryRow is the persisted shape of a models.TimeEntry.
type entryRow struct {
	ID          string `db:"id"`
	Date        string `db:"date"`
	Project     string `db:"project"`
	Hours       string `db:"hours"`
	Description string `db:"description"`
	Status      string `db:"status"`
	RemoteID    string `db:"remote_id"`
	LastError   string `db:"last_error"`
	CreatedAt   string `db:"created_at"`
}

// formatHours keeps the scale of d, so 2.50 is stored as "2.50" and reads back unchanged.
func formatHours(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func toRow(e models.TimeEntry) entryRow {
	return entryRow{
		ID:          e.ID,
		Date:        e.Date,
		Project:     e.Project,
		Hours:       formatHours(e.Hours),
		Description: e.Description,
		Status:      string(e.Status),
		RemoteID:    e.RemoteID,
		LastError:   e.LastError,
		CreatedAt:   e.Timestamp.UTC().Format(createdAtLayout),
	}
}

func (r entryRow) toModel() (models.TimeEntry, error) {
	status := models.Status(r.Status)
	if !status.Valid() {
		return models.TimeEntry{}, fmt.Errorf("entry %s: unknown status %q", r.ID, r.Status)
	}
	hours, err := decimal.NewFromString(r.Hours)
	if err != nil {
		return models.TimeEntry{}, fmt.Errorf("entry %s: hours: %w", r.ID, err)
	}
	ts, err := time.Parse(createdAtLayout, r.CreatedAt)
	if err != nil {
		return models.TimeEntry{}, fmt.Errorf("entry %s: created_at: %w", r.ID, err)
	}
	return models.TimeEntry{
		ID:          r.ID,
		Date:        r.Date,
		Project:     r.Project,
		Hours:       hours,
		Description: r.Description,
		Status:      status,
		Timestamp:   ts,
		RemoteID:    r.RemoteID,
		LastError:   r.LastError,
	}, nil
}

// SQLEntryRepository stores time entries in the time_entries table.
type SQLEntryRepository struct {
	// DB is the database handle for executing queries.
	DB *sqlx.DB
}

// NewSQLEntryRepository creates a new SQLEntryRepository using the provided handle.
func NewSQLEntryRepository(db *sqlx.DB) *SQLEntryRepository {
	return &SQLEntryRepository{DB: db}
}

// Put inserts the entry or replaces the one with the same id.
// The upsert is a single statement, so readers never see a partial record.
func (r *SQLEntryRepository) Put(ctx context.Context, entry models.TimeEntry) error {
	if entry.ID == "" {
		return storageErr("put entry", errors.New("empty id"))
	}
	if _, err := r.DB.NamedExecContext(ctx, upsertEntry, toRow(entry)); err != nil {
		return storageErr("put entry", err)
	}
	return nil
}

// Get returns the entry with the given id or an error wrapping ErrNotFound.
func (r *SQLEntryRepository) Get(ctx context.Context, id string) (models.TimeEntry, error) {
	var row entryRow
	query := r.DB.Rebind(`SELECT ` + entryColumns + ` FROM time_entries WHERE id = ?`)
	if err := r.DB.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TimeEntry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
		}
		return models.TimeEntry{}, storageErr("get entry", err)
	}
	entry, err := row.toModel()
	if err != nil {
		return models.TimeEntry{}, storageErr("decode entry", err)
	}
	return entry, nil
}

// GetAll returns every entry in insertion order.
func (r *SQLEntryRepository) GetAll(ctx context.Context) ([]models.TimeEntry, error) {
	return r.list(ctx, "get all entries",
		`SELECT `+entryColumns+` FROM time_entries ORDER BY created_at, id`)
}

// GetByStatus returns the entries whose status equals the given one, in insertion order.
// The query is served by idx_time_entries_status.
func (r *SQLEntryRepository) GetByStatus(ctx context.Context, status models.Status) ([]models.TimeEntry, error) {
	return r.list(ctx, "get entries by status",
		r.DB.Rebind(`SELECT `+entryColumns+` FROM time_entries WHERE status = ? ORDER BY created_at, id`),
		string(status))
}

// CountByStatus returns the number of entries per status.
func (r *SQLEntryRepository) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := r.DB.QueryxContext(ctx, `SELECT status, COUNT(*) FROM time_entries GROUP BY status`)
	if err != nil {
		return nil, storageErr("count entries", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int, len(models.Statuses))
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr("count entries", err)
		}
		counts[models.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("count entries", err)
	}
	return counts, nil
}

func (r *SQLEntryRepository) list(ctx context.Context, op, query string, args ...any) ([]models.TimeEntry, error) {
	var rows []entryRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr(op, err)
	}
	entries := make([]models.TimeEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toModel()
		if err != nil {
			return nil, storageErr(op, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
