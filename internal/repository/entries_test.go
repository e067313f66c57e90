package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

var entryCols = []string{"id", "date", "project", "hours", "description", "status", "remote_id", "last_error", "created_at"}

func setupMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func sampleEntry() models.TimeEntry {
	return models.TimeEntry{
		ID:          "e1",
		Date:        "2024-01-01",
		Project:     "7",
		Hours:       decimal.RequireFromString("2.5"),
		Description: "x",
		Status:      models.StatusPending,
		Timestamp:   time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPut_Success(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectExec(`INSERT INTO time_entries .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("e1", "2024-01-01", "7", "2.5", "x", "pending", "", "", "2024-01-01T09:00:00.000000000Z").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Put(context.Background(), sampleEntry()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPut_Error(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectExec(`INSERT INTO time_entries`).WillReturnError(errors.New("disk full"))

	err := repo.Put(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "put entry", se.Op)
}

func TestPut_EmptyID(t *testing.T) {
	db, _ := setupMock(t)
	e := sampleEntry()
	e.ID = ""
	assert.ErrorIs(t, NewSQLEntryRepository(db).Put(context.Background(), e), ErrStorage)
}

func TestGet_Success(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM time_entries WHERE id = ?`)).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("e1", "2024-01-01", "7", "2.5", "x", "submitted", "R-1", "", "2024-01-01T09:00:00.000000000Z"))

	e, err := repo.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, e.Status)
	assert.Equal(t, "R-1", e.RemoteID)
	assert.True(t, decimal.RequireFromString("2.5").Equal(e.Hours))
	assert.True(t, e.Timestamp.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectQuery(`FROM time_entries WHERE id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(entryCols))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrStorage))
}

func TestGet_CorruptStatus(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectQuery(`FROM time_entries WHERE id`).
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("e1", "2024-01-01", "7", "1", "", "done", "", "", "2024-01-01T09:00:00.000000000Z"))

	_, err := repo.Get(context.Background(), "e1")
	assert.ErrorIs(t, err, ErrStorage)
}

func TestGetByStatus_Success(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status = ? ORDER BY created_at, id`)).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("a", "2024-01-01", "7", "1", "", "pending", "", "", "2024-01-01T09:00:00.000000000Z").
			AddRow("b", "2024-01-01", "7", "2", "", "pending", "", "", "2024-01-01T09:00:01.000000000Z"))

	entries, err := repo.GetByStatus(context.Background(), models.StatusPending)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAll_Error(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectQuery(`SELECT .* FROM time_entries ORDER BY`).WillReturnError(errors.New("locked"))

	_, err := repo.GetAll(context.Background())
	assert.ErrorIs(t, err, ErrStorage)
}

func TestCountByStatus(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) FROM time_entries GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 2).
			AddRow("error", 1))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.StatusPending])
	assert.Equal(t, 1, counts[models.StatusError])
	assert.Equal(t, 0, counts[models.StatusSubmitted])
}

func TestFormatHours_KeepsScale(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2.50", "2.50"},
		{"2.5", "2.5"},
		{"8", "8"},
		{"0.25", "0.25"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, formatHours(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestGet_BadHours(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewSQLEntryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM time_entries WHERE id = ?`)).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("e1", "2024-01-01", "7", "two", "x", "pending", "", "", "2024-01-01T09:00:00.000000000Z"))

	_, err := repo.Get(context.Background(), "e1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hours")
}
