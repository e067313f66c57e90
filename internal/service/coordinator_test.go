package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/TimeKeeper/internal/models"
	"github.com/atinyakov/TimeKeeper/internal/remote"
	"github.com/atinyakov/TimeKeeper/internal/service"
)

func sampleInput() models.EntryInput {
	return models.EntryInput{Date: "2024-01-01", Project: "1", Hours: decimal.RequireFromString("2.5"), Description: "x"}
}

type harness struct {
	store   *memStore
	client  *fakeClient
	session *service.Session
	coord   *service.Coordinator
}

// newHarness builds a coordinator whose session has an authenticated fake client.
// The session starts offline.
func newHarness(t *testing.T, opts ...service.Option) *harness {
	t.Helper()
	h := &harness{store: newMemStore(), client: &fakeClient{}}
	s := validSettings()
	h.session = service.NewSession(&fakeSettingsStore{settings: &s}, factoryFor(h.client), nil)
	require.NoError(t, h.session.Restore(context.Background()))
	require.NotNil(t, h.session.Client())

	var seq int64
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	opts = append([]service.Option{
		service.WithClock(func() time.Time { return base.Add(time.Duration(atomic.AddInt64(&seq, 1)) * time.Second) }),
		service.WithIDGenerator(func() string { return fmt.Sprintf("e%d", atomic.LoadInt64(&seq)+1) }),
	}, opts...)
	h.coord = service.NewCoordinator(h.store, h.session, opts...)
	return h
}

func (h *harness) goOnline(t *testing.T) {
	t.Helper()
	_, err := h.coord.SetOnline(context.Background(), true)
	require.NoError(t, err)
}

func TestCreateEntry_OfflineStaysPending(t *testing.T) {
	h := newHarness(t)

	e, err := h.coord.CreateEntry(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, e.Status)
	assert.Equal(t, models.StatusPending, h.store.status(e.ID))
	assert.Empty(t, h.client.calls(), "no network call while offline")
}

func TestCreateEntry_OnlineSubmitted(t *testing.T) {
	h := newHarness(t)
	h.goOnline(t)

	e, err := h.coord.CreateEntry(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, e.Status)
	assert.Equal(t, "R-"+e.ID, e.RemoteID)

	stored, err := h.store.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, stored.Status)
	assert.Equal(t, []string{e.ID}, h.client.calls())
}

func TestCreateEntry_FailedPushIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.client.SubmitFunc = func(context.Context, models.TimeEntry) (remote.Confirmation, error) {
		return remote.Confirmation{}, fmt.Errorf("%w: connection reset", remote.ErrRemoteUnavailable)
	}
	h.goOnline(t)

	e, err := h.coord.CreateEntry(context.Background(), sampleInput())
	require.NoError(t, err, "remote failures are not propagated")
	assert.Equal(t, models.StatusError, e.Status)
	assert.Contains(t, e.LastError, "connection reset")

	_, err = h.coord.SetOnline(context.Background(), false)
	require.NoError(t, err)
	res, err := h.coord.SetOnline(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
	assert.Len(t, h.client.calls(), 1, "error entries are not swept")
	assert.Equal(t, models.StatusError, h.store.status(e.ID))
}

func TestReconnectSweep_SequentialInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.coord.CreateEntry(ctx, sampleInput())
	require.NoError(t, err)
	second, err := h.coord.CreateEntry(ctx, sampleInput())
	require.NoError(t, err)

	var observed []models.Status
	h.client.SubmitFunc = func(_ context.Context, e models.TimeEntry) (remote.Confirmation, error) {
		if e.ID == second.ID {
			observed = append(observed, h.store.status(first.ID))
		}
		return remote.Confirmation{ID: "ok"}, nil
	}

	res, err := h.coord.SetOnline(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{Attempted: 2, Submitted: 2}, res)
	assert.Equal(t, []string{first.ID, second.ID}, h.client.calls())
	assert.Equal(t, []models.Status{models.StatusSubmitted}, observed,
		"first status write must be visible before the second push starts")
}

func TestSetOnline_RepeatedEventIsNoop(t *testing.T) {
	var events []bool
	h := newHarness(t, service.WithHooks(service.Hooks{
		OnConnectivityChanged: func(online bool) { events = append(events, online) },
	}))
	ctx := context.Background()

	_, err := h.coord.CreateEntry(ctx, sampleInput())
	require.NoError(t, err)

	h.goOnline(t)
	h.goOnline(t)
	_, err = h.coord.SetOnline(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, events)
	assert.Len(t, h.client.calls(), 1)
}

func TestCreateEntry_ValidationAndStorageFailure(t *testing.T) {
	h := newHarness(t)
	h.goOnline(t)

	bad := sampleInput()
	bad.Hours = decimal.Zero
	_, err := h.coord.CreateEntry(context.Background(), bad)
	assert.ErrorIs(t, err, models.ErrInvalidEntry)

	h.store.PutFunc = func(models.TimeEntry) error { return errors.New("disk full") }
	_, err = h.coord.CreateEntry(context.Background(), sampleInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, h.client.calls(), "nothing is pushed when the local write fails")

	all, err := h.coord.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPush_StatusWriteFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.goOnline(t)

	h.store.PutFunc = func(e models.TimeEntry) error {
		if e.Status == models.StatusSubmitted {
			return errors.New("read-only")
		}
		return nil
	}
	_, err := h.coord.CreateEntry(context.Background(), sampleInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update entry status")
}

func TestPush_TimeoutMarksError(t *testing.T) {
	h := newHarness(t, service.WithPushTimeout(20*time.Millisecond))
	h.client.SubmitFunc = func(ctx context.Context, _ models.TimeEntry) (remote.Confirmation, error) {
		<-ctx.Done()
		return remote.Confirmation{}, fmt.Errorf("%w: %w", remote.ErrRemoteUnavailable, ctx.Err())
	}
	h.goOnline(t)

	e, err := h.coord.CreateEntry(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, e.Status)
	assert.Contains(t, e.LastError, context.DeadlineExceeded.Error())
}

func TestPush_CallerCancellationKeepsPending(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.client.SubmitFunc = func(pushCtx context.Context, _ models.TimeEntry) (remote.Confirmation, error) {
		cancel()
		<-pushCtx.Done()
		return remote.Confirmation{}, pushCtx.Err()
	}
	_, err := h.coord.CreateEntry(context.Background(), sampleInput())
	require.NoError(t, err)

	_, err = h.coord.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	pending, err := h.coord.Pending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSweep_ConcurrentCallersShareOneRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.CreateEntry(ctx, sampleInput())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.client.SubmitFunc = func(context.Context, models.TimeEntry) (remote.Confirmation, error) {
		close(entered)
		<-release
		return remote.Confirmation{ID: "ok"}, nil
	}

	var wg sync.WaitGroup
	results := make([]service.SweepResult, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = h.coord.Sweep(ctx)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = h.coord.Sweep(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, h.client.calls(), 1)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, 1, results[0].Submitted)
}

func TestSweep_JoinedCallerCancelsOnlyItsOwnWait(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.CreateEntry(context.Background(), sampleInput())
	require.NoError(t, err)

	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	h.client.SubmitFunc = func(pushCtx context.Context, _ models.TimeEntry) (remote.Confirmation, error) {
		once.Do(func() { close(entered) })
		select {
		case <-release:
			return remote.Confirmation{ID: "ok"}, nil
		case <-pushCtx.Done():
			return remote.Confirmation{}, pushCtx.Err()
		}
	}

	type outcome struct {
		res service.SweepResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := h.coord.Sweep(context.Background())
		first <- outcome{res, err}
	}()
	<-entered

	joinCtx, cancel := context.WithCancel(context.Background())
	joined := make(chan error, 1)
	go func() {
		_, err := h.coord.Sweep(joinCtx)
		joined <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-joined:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("joined caller kept waiting after its context was cancelled")
	}

	close(release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.res.Submitted)

	submitted, err := h.coord.EntriesByStatus(context.Background(), models.StatusSubmitted)
	require.NoError(t, err)
	assert.Len(t, submitted, 1)
}

func TestSweep_FirstCallerCancelDoesNotFailJoinedCaller(t *testing.T) {
	h := newHarness(t)
	_, err := h.coord.CreateEntry(context.Background(), sampleInput())
	require.NoError(t, err)

	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	h.client.SubmitFunc = func(pushCtx context.Context, _ models.TimeEntry) (remote.Confirmation, error) {
		once.Do(func() { close(entered) })
		select {
		case <-release:
			return remote.Confirmation{ID: "ok"}, nil
		case <-pushCtx.Done():
			return remote.Confirmation{}, pushCtx.Err()
		}
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := h.coord.Sweep(firstCtx)
		first <- err
	}()
	<-entered

	type outcome struct {
		res service.SweepResult
		err error
	}
	joined := make(chan outcome, 1)
	go func() {
		res, err := h.coord.Sweep(context.Background())
		joined <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	got := <-joined
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.res.Submitted)
}

func TestSweep_NotConfigured(t *testing.T) {
	session := service.NewSession(&fakeSettingsStore{}, factoryFor(&fakeClient{}), nil)
	require.NoError(t, session.Restore(context.Background()))
	coord := service.NewCoordinator(newMemStore(), session)

	_, err := coord.Sweep(context.Background())
	assert.ErrorIs(t, err, service.ErrNotConfigured)

	res, err := coord.SetOnline(context.Background(), true)
	require.NoError(t, err, "going online without a client only records the state")
	assert.Zero(t, res)
	assert.True(t, session.Online())
}

func TestStatusNeverLeavesTerminalState(t *testing.T) {
	var mu sync.Mutex
	history := make(map[string][]models.Status)
	h := newHarness(t, service.WithHooks(service.Hooks{
		OnEntryChanged: func(e models.TimeEntry) {
			mu.Lock()
			history[e.ID] = append(history[e.ID], e.Status)
			mu.Unlock()
		},
	}))
	ctx := context.Background()

	var n int32
	h.client.SubmitFunc = func(context.Context, models.TimeEntry) (remote.Confirmation, error) {
		if atomic.AddInt32(&n, 1)%2 == 0 {
			return remote.Confirmation{}, &remote.RejectedError{StatusCode: 400, Message: "bad"}
		}
		return remote.Confirmation{ID: "ok"}, nil
	}

	for i := 0; i < 6; i++ {
		_, err := h.coord.CreateEntry(ctx, sampleInput())
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := h.coord.SetOnline(ctx, true)
		require.NoError(t, err)
		_, err = h.coord.Sweep(ctx)
		require.NoError(t, err)
		_, err = h.coord.SetOnline(ctx, false)
		require.NoError(t, err)
	}

	counts, err := h.coord.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.StatusSubmitted])
	assert.Equal(t, 3, counts[models.StatusError])

	mu.Lock()
	defer mu.Unlock()
	for id, seq := range history {
		require.Len(t, seq, 2, id)
		assert.Equal(t, models.StatusPending, seq[0], id)
		assert.True(t, seq[1].Terminal(), id)
	}
}
