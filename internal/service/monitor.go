package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Prober reports whether the ERP is reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Monitor turns periodic probes into connectivity events for the coordinator.
type Monitor struct {
	prober   Prober
	coord    *Coordinator
	interval time.Duration
	log      *zap.Logger
}

// NewMonitor returns a Monitor probing every interval.
func NewMonitor(prober Prober, coord *Coordinator, interval time.Duration, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{prober: prober, coord: coord, interval: interval, log: log}
}

// Run probes immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.check(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Start runs the monitor in the background.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		_ = m.Run(ctx)
	}()
}

func (m *Monitor) check(ctx context.Context) {
	online := m.prober.Probe(ctx)
	if ctx.Err() != nil {
		return
	}
	res, err := m.coord.SetOnline(ctx, online)
	if err != nil {
		m.log.Warn("reconnect sweep failed", zap.Error(err))
		return
	}
	if res.Attempted > 0 {
		m.log.Info("reconnect sweep",
			zap.Int("submitted", res.Submitted),
			zap.Int("failed", res.Failed))
	}
}
