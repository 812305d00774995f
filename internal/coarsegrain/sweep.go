package coarsegrain

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultSweepInterval is the default period between reconciliation sweeps.
const defaultSweepInterval = 30 * time.Minute

// sweepBatchSize bounds how many pending nodes a single sweep re-schedules,
// so a large backlog is worked off gradually rather than all at once.
const sweepBatchSize = 200

// Sweeper periodically re-schedules nodes that should have been
// coarse-grained but weren't — because the queue was full when they were
// first scheduled, or because a transient failure dropped them. This makes
// the engine's "best-effort" coarse-graining self-healing without requiring
// the original schedule to have succeeded.
type Sweeper struct {
	grainer  *Grainer
	store    NodeStore
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeper constructs a [Sweeper]. If interval is zero, a 30 minute
// default is used.
func NewSweeper(grainer *Grainer, store NodeStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		grainer:  grainer,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the periodic sweep loop in a background goroutine. The
// goroutine runs until [Sweeper.Stop] is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the sweep loop. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	pending, err := s.store.NodesPendingSummary(ctx, sweepBatchSize)
	if err != nil {
		slog.Warn("coarsegrain: reconciliation sweep failed to list pending nodes", "error", err)
		return
	}
	for _, n := range pending {
		s.grainer.Schedule(n.NodeID)
	}
	if len(pending) > 0 {
		slog.Info("coarsegrain: reconciliation sweep rescheduled nodes", "count", len(pending))
	}
}
