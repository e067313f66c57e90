// Package erp is the in-memory bookkeeping behind the ERP stand-in server:
// the project catalogue, booked time records and issued bearer tokens.
package erp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atinyakov/TimeKeeper/internal/models"
)

var (
	// ErrUnknownProject is returned when a booking references a project that does not exist.
	ErrUnknownProject = errors.New("invalid project reference")
	// ErrInvalidBooking is returned for malformed bookings.
	ErrInvalidBooking = errors.New("invalid time entry")
)

var maxHours = decimal.NewFromInt(24)

// Booking is a request to record time.
type Booking struct {
	Project     string
	Date        string
	Hours       decimal.Decimal
	Description string
	Employee    string
	// ExternalID is the client's entry id; repeated bookings with the same
	// external id return the first record.
	ExternalID string
}

// Record is a booked time record.
type Record struct {
	ID          string
	Project     string
	Date        string
	Hours       decimal.Decimal
	Description string
	Employee    string
	ExternalID  string
	CreatedAt   time.Time
}

// Ledger stores projects and time records in memory.
type Ledger struct {
	log *zap.Logger

	mu         sync.RWMutex
	projects   []models.Project
	records    []Record
	byExternal map[string]int
	nextID     int64
}

// NewLedger returns a ledger serving the given projects.
func NewLedger(projects []models.Project, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		log:        log,
		projects:   append([]models.Project(nil), projects...),
		byExternal: make(map[string]int),
		nextID:     1000,
	}
}

// Projects returns the project catalogue.
func (l *Ledger) Projects() []models.Project {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.Project(nil), l.projects...)
}

// Book validates and stores a booking.
func (l *Ledger) Book(b Booking) (Record, error) {
	if _, err := time.Parse(models.DateLayout, b.Date); err != nil {
		return Record{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidBooking, b.Date)
	}
	if !b.Hours.IsPositive() || b.Hours.GreaterThan(maxHours) {
		return Record{}, fmt.Errorf("%w: hours must be between 0 and 24, got %s", ErrInvalidBooking, b.Hours)
	}
	project := strings.TrimSpace(b.Project)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := models.FindProject(l.projects, project); !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownProject, project)
	}
	if b.ExternalID != "" {
		if i, ok := l.byExternal[b.ExternalID]; ok {
			return l.records[i], nil
		}
	}

	l.nextID++
	rec := Record{
		ID:          strconv.FormatInt(l.nextID, 10),
		Project:     project,
		Date:        b.Date,
		Hours:       b.Hours,
		Description: b.Description,
		Employee:    b.Employee,
		ExternalID:  b.ExternalID,
		CreatedAt:   time.Now().UTC(),
	}
	l.records = append(l.records, rec)
	if b.ExternalID != "" {
		l.byExternal[b.ExternalID] = len(l.records) - 1
	}
	l.log.Info("time booked",
		zap.String("record_id", rec.ID),
		zap.String("project", rec.Project),
		zap.String("hours", rec.Hours.String()))
	return rec, nil
}

// Records returns every booked record in booking order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Record(nil), l.records...)
}
