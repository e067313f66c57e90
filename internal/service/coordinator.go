package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/atinyakov/TimeKeeper/internal/models"
	"github.com/atinyakov/TimeKeeper/internal/remote"
)

// DefaultPushTimeout bounds a single submission when no option overrides it.
const DefaultPushTimeout = 30 * time.Second

// ErrNotConfigured is returned when an operation needs a remote client and none is active.
var ErrNotConfigured = errors.New("remote client not configured")

// EntryStore is the persistence the coordinator needs.
type EntryStore interface {
	Put(ctx context.Context, entry models.TimeEntry) error
	Get(ctx context.Context, id string) (models.TimeEntry, error)
	GetAll(ctx context.Context) ([]models.TimeEntry, error)
	GetByStatus(ctx context.Context, status models.Status) ([]models.TimeEntry, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}

// Hooks are notified after state changes; nil fields are ignored.
type Hooks struct {
	// OnEntryChanged runs after an entry was created or its status was persisted.
	OnEntryChanged func(models.TimeEntry)
	// OnConnectivityChanged runs after the online flag flipped.
	OnConnectivityChanged func(online bool)
}

// SweepResult summarizes one reconnect sweep.
type SweepResult struct {
	Attempted int
	Submitted int
	Failed    int
	// Skipped counts entries that were no longer pending when their turn came.
	Skipped int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPushTimeout bounds every SubmitTimeEntry call.
func WithPushTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pushTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithHooks installs change callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Coordinator) { c.hooks = h }
}

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDGenerator replaces the UUID generator for entry ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// Coordinator writes entries locally first and pushes them to the ERP,
// moving each from pending to submitted or error exactly once.
type Coordinator struct {
	store   EntryStore
	session *Session
	log     *zap.Logger
	hooks   Hooks

	pushTimeout time.Duration
	now         func() time.Time
	newID       func() string

	// pushMu serializes pushes including their status write.
	pushMu sync.Mutex
	sweeps singleflight.Group

	sweepMu  sync.Mutex
	sweepRun *sweepRun
	sweepGen uint64
}

// NewCoordinator returns a Coordinator over store and session.
func NewCoordinator(store EntryStore, session *Session, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		session:     session,
		log:         zap.NewNop(),
		pushTimeout: DefaultPushTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateEntry validates and persists a new pending entry, then pushes it right away
// when the session is online and has a client. A storage failure is returned and
// nothing is pushed; a failed push only shows in the returned entry's status.
func (c *Coordinator) CreateEntry(ctx context.Context, in models.EntryInput) (models.TimeEntry, error) {
	if err := in.Validate(); err != nil {
		return models.TimeEntry{}, err
	}

	entry := models.NewTimeEntry(c.newID(), in, c.now())
	if err := c.store.Put(ctx, entry); err != nil {
		return models.TimeEntry{}, fmt.Errorf("save entry: %w", err)
	}
	c.log.Info("time entry saved", zap.String("entry_id", entry.ID), zap.String("project", entry.Project))
	c.notifyEntry(entry)

	if !c.session.Online() || c.session.Client() == nil {
		return entry, nil
	}
	updated, _, err := c.push(ctx, entry.ID)
	if err != nil {
		return entry, err
	}
	return updated, nil
}

type pushOutcome int

const (
	outcomeSkipped pushOutcome = iota
	outcomeSubmitted
	outcomeFailed
)

// push submits one entry. It re-reads the entry under pushMu and does nothing
// unless it is still pending, so concurrent triggers cannot submit twice.
func (c *Coordinator) push(ctx context.Context, id string) (models.TimeEntry, pushOutcome, error) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	entry, err := c.store.Get(ctx, id)
	if err != nil {
		return models.TimeEntry{}, outcomeSkipped, fmt.Errorf("reload entry: %w", err)
	}
	if entry.Status != models.StatusPending {
		return entry, outcomeSkipped, nil
	}
	client := c.session.Client()
	if client == nil {
		return entry, outcomeSkipped, nil
	}

	pushCtx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	conf, pushErr := client.SubmitTimeEntry(pushCtx, entry)
	cancel()

	// the caller gave up: the push did not fail on its own, keep the entry pending
	if pushErr != nil && ctx.Err() != nil {
		return entry, outcomeSkipped, ctx.Err()
	}

	next, outcome := models.StatusSubmitted, outcomeSubmitted
	if pushErr != nil {
		next, outcome = models.StatusError, outcomeFailed
		entry.LastError = pushErr.Error()
		c.log.Warn("failed to submit time entry",
			zap.String("entry_id", entry.ID),
			zap.Bool("transient", remote.IsTransient(pushErr)),
			zap.Error(pushErr))
	} else {
		entry.RemoteID = conf.ID
	}
	if err := entry.Transition(next); err != nil {
		return entry, outcomeSkipped, err
	}

	if err := c.store.Put(ctx, entry); err != nil {
		return entry, outcome, fmt.Errorf("update entry status: %w", err)
	}
	if outcome == outcomeSubmitted {
		c.log.Info("time entry submitted", zap.String("entry_id", entry.ID), zap.String("remote_id", entry.RemoteID))
	}
	c.notifyEntry(entry)
	return entry, outcome, nil
}

// SetOnline delivers a connectivity event. Going online triggers a sweep;
// going offline only records the state. Repeated events are no-ops.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) (SweepResult, error) {
	if !c.session.setOnline(online) {
		return SweepResult{}, nil
	}
	c.log.Info("connectivity changed", zap.Bool("online", online))
	if c.hooks.OnConnectivityChanged != nil {
		c.hooks.OnConnectivityChanged(online)
	}
	if !online || c.session.Client() == nil {
		return SweepResult{}, nil
	}
	return c.Sweep(ctx)
}

// Sweep pushes every pending entry sequentially in store order. Entries in error
// are not retried. Concurrent callers share one sweep and its result; each caller
// stops waiting when its own ctx is done. The running sweep is cancelled only when
// every caller waiting on it has given up.
func (c *Coordinator) Sweep(ctx context.Context) (SweepResult, error) {
	c.sweepMu.Lock()
	if c.sweepRun == nil || c.sweepRun.ctx.Err() != nil {
		c.sweepGen++
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.sweepRun = &sweepRun{key: strconv.FormatUint(c.sweepGen, 10), ctx: runCtx, cancel: cancel}
	}
	run := c.sweepRun
	run.waiters++
	c.sweepMu.Unlock()

	ch := c.sweeps.DoChan(run.key, func() (interface{}, error) {
		defer c.endSweep(run)
		return c.sweep(run.ctx)
	})

	select {
	case r := <-ch:
		c.leaveSweep(run)
		res, _ := r.Val.(SweepResult)
		return res, r.Err
	case <-ctx.Done():
		c.leaveSweep(run)
		return SweepResult{}, ctx.Err()
	}
}

// sweepRun is the context shared by the callers of one in-flight sweep.
type sweepRun struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (c *Coordinator) leaveSweep(run *sweepRun) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	run.waiters--
	if run.waiters == 0 {
		run.cancel()
	}
}

func (c *Coordinator) endSweep(run *sweepRun) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.sweepRun == run {
		c.sweepRun = nil
	}
}

func (c *Coordinator) sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if c.session.Client() == nil {
		return res, ErrNotConfigured
	}

	pending, err := c.store.GetByStatus(ctx, models.StatusPending)
	if err != nil {
		return res, fmt.Errorf("list pending entries: %w", err)
	}
	if len(pending) == 0 {
		return res, nil
	}
	c.log.Info("sweeping pending entries", zap.Int("count", len(pending)))

	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, outcome, err := c.push(ctx, e.ID)
		switch outcome {
		case outcomeSubmitted:
			res.Attempted++
			res.Submitted++
		case outcomeFailed:
			res.Attempted++
			res.Failed++
		default:
			if err == nil {
				res.Skipped++
			}
		}
		if err != nil {
			return res, err
		}
	}
	c.log.Info("sweep finished",
		zap.Int("submitted", res.Submitted),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// Entries returns every stored entry in creation order.
func (c *Coordinator) Entries(ctx context.Context) ([]models.TimeEntry, error) {
	return c.store.GetAll(ctx)
}

// Pending returns the entries still waiting for a push.
func (c *Coordinator) Pending(ctx context.Context) ([]models.TimeEntry, error) {
	return c.store.GetByStatus(ctx, models.StatusPending)
}

// EntriesByStatus returns the entries with the given status.
func (c *Coordinator) EntriesByStatus(ctx context.Context, status models.Status) ([]models.TimeEntry, error) {
	return c.store.GetByStatus(ctx, status)
}

// Counts returns the number of entries per status.
func (c *Coordinator) Counts(ctx context.Context) (map[models.Status]int, error) {
	return c.store.CountByStatus(ctx)
}

func (c *Coordinator) notifyEntry(e models.TimeEntry) {
	if c.hooks.OnEntryChanged != nil {
		c.hooks.OnEntryChanged(e)
	}
}
