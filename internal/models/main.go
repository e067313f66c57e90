// Package models defines the core data structures for time entries, settings and projects.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for TimeEntry.Date.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidTransition is returned when a status change is not allowed by the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidEntry is returned when entry input fails validation.
	ErrInvalidEntry = errors.New("invalid time entry")
)

// maxHours bounds a single booking to one calendar day.
var maxHours = decimal.NewFromInt(24)

// Status is the synchronization state of a TimeEntry.
type Status string

const (
	// StatusPending marks an entry that has not been pushed to the ERP yet.
	StatusPending Status = "pending"
	// StatusSubmitted marks an entry the ERP has accepted.
	StatusSubmitted Status = "submitted"
	// StatusError marks an entry whose push failed.
	StatusError Status = "error"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusPending, StatusSubmitted, StatusError}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusSubmitted || s == StatusError
}

// CanTransition reports whether s may change to next.
// Only pending → submitted and pending → error are allowed.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusSubmitted || next == StatusError)
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// TimeEntry is a single booking of labor hours against a project.
type TimeEntry struct {
	// ID is the unique identifier assigned at creation.
	ID string `json:"id"`
	// Date is the calendar day the work was performed on (YYYY-MM-DD).
	Date string `json:"date"`
	// Project references a project known to the ERP.
	Project string `json:"project"`
	// Hours is the booked quantity, always positive.
	Hours decimal.Decimal `json:"hours"`
	// Description is a free-text note.
	Description string `json:"description"`
	// Status is the synchronization state.
	Status Status `json:"status"`
	// Timestamp is the creation instant.
	Timestamp time.Time `json:"timestamp"`
	// RemoteID is the confirmation id returned by the ERP.
	RemoteID string `json:"remoteId,omitempty"`
	// LastError holds the message of the failed push.
	LastError string `json:"lastError,omitempty"`
}

// Transition moves the entry to next, enforcing the status state machine.
func (e *TimeEntry) Transition(next Status) error {
	if !e.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s (entry %s)", ErrInvalidTransition, e.Status, next, e.ID)
	}
	e.Status = next
	return nil
}

// EntryInput carries the user-supplied fields of a new TimeEntry.
type EntryInput struct {
	Date        string
	Project     string
	Hours       decimal.Decimal
	Description string
}

// Validate checks the input and returns an error wrapping ErrInvalidEntry.
func (in EntryInput) Validate() error {
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		return fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidEntry, in.Date)
	}
	if strings.TrimSpace(in.Project) == "" {
		return fmt.Errorf("%w: project is required", ErrInvalidEntry)
	}
	if !in.Hours.IsPositive() {
		return fmt.Errorf("%w: hours must be positive, got %s", ErrInvalidEntry, in.Hours)
	}
	if in.Hours.GreaterThan(maxHours) {
		return fmt.Errorf("%w: hours must not exceed %s, got %s", ErrInvalidEntry, maxHours, in.Hours)
	}
	return nil
}

// NewTimeEntry builds a pending entry from validated input.
func NewTimeEntry(id string, in EntryInput, now time.Time) TimeEntry {
	return TimeEntry{
		ID:          id,
		Date:        in.Date,
		Project:     strings.TrimSpace(in.Project),
		Hours:       in.Hours,
		Description: in.Description,
		Status:      StatusPending,
		Timestamp:   now.UTC(),
	}
}
