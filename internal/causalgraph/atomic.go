package causalgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Atomic publishes a Graph for concurrent, lock-free reads. Readers take a
// cheap pointer load, never a lock; the offline builder (or a periodic
// rebuild loop) replaces the whole snapshot with [Atomic.Store].
type Atomic struct {
	ptr atomic.Pointer[Graph]
}

// NewAtomic returns an Atomic initialized to an empty graph.
func NewAtomic() *Atomic {
	a := &Atomic{}
	a.Store(New())
	return a
}

// Load returns the current graph snapshot.
func (a *Atomic) Load() *Graph {
	return a.ptr.Load()
}

// Store publishes g as the current graph snapshot.
func (a *Atomic) Store(g *Graph) {
	a.ptr.Store(g)
}

// LoadFromDisk reads the node-link JSON at path and atomically publishes it,
// replacing whatever snapshot was previously live.
func (a *Atomic) LoadFromDisk(path string) error {
	g, err := Load(path)
	if err != nil {
		return fmt.Errorf("causalgraph: reload from disk: %w", err)
	}
	a.Store(g)
	return nil
}

// WatchReload starts a background loop that re-reads path off disk every
// interval and republishes it, so a causalgraphbuild run picked up by the
// running service without a restart. It stops when ctx is cancelled.
func (a *Atomic) WatchReload(ctx context.Context, path string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.LoadFromDisk(path); err != nil {
					slog.Warn("causalgraph: periodic reload failed", "path", path, "error", err)
				}
			}
		}
	}()
}
