package coarsegrain

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// defaultQueueSize is used when Config.QueueSize is zero.
const defaultQueueSize = 256

// defaultWorkers is used when Config.Workers is zero.
const defaultWorkers = 4

// Config configures a [Grainer].
type Config struct {
	// Store reads/writes nodes. Required.
	Store NodeStore

	// Summarizer compresses a parent/child pair into a summary. Required.
	Summarizer Summarizer

	// QueueSize bounds the number of pending schedule requests. When full,
	// Schedule drops the oldest pending request to make room for the new
	// one rather than blocking the caller's request goroutine. Defaults to
	// 256.
	QueueSize int

	// Workers is the number of goroutines draining the queue. Defaults to 4.
	Workers int
}

// Grainer runs coarse-graining as a best-effort, fire-and-forget background
// pipeline. Scheduling a node never blocks and never fails visibly to the
// caller: a summarization failure is logged and the node simply remains
// eligible for the next periodic sweep.
type Grainer struct {
	store      NodeStore
	summarizer Summarizer

	queue chan uuid.UUID

	// inFlight deduplicates concurrent/duplicate schedules for the same
	// node so a hot node isn't summarized twice in a row.
	inFlight sync.Map // uuid.UUID -> struct{}

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// New constructs a [Grainer] and starts its worker pool. Callers must call
// [Grainer.Close] to stop the workers on shutdown.
func New(cfg Config) *Grainer {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	g := &Grainer{
		store:      cfg.Store,
		summarizer: cfg.Summarizer,
		queue:      make(chan uuid.UUID, queueSize),
		stop:       make(chan struct{}),
	}

	g.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go g.worker()
	}
	return g
}

// Schedule enqueues nodeID for coarse-graining. It never blocks: if the
// queue is full, the oldest pending entry is dropped to make room. If
// nodeID is already queued or currently being processed, the call is a
// no-op.
func (g *Grainer) Schedule(nodeID uuid.UUID) {
	if _, alreadyQueued := g.inFlight.LoadOrStore(nodeID, struct{}{}); alreadyQueued {
		return
	}

	select {
	case g.queue <- nodeID:
		return
	default:
	}

	// Queue is full: drop the oldest pending item and retry once.
	select {
	case dropped := <-g.queue:
		g.inFlight.Delete(dropped)
		slog.Warn("coarsegrain: queue full, dropped oldest pending node", "dropped_node_id", dropped)
	default:
	}

	select {
	case g.queue <- nodeID:
	default:
		// Another goroutine raced us for the slot we just freed; give up
		// silently, the periodic sweep will pick nodeID up later.
		g.inFlight.Delete(nodeID)
	}
}

// Close stops accepting new work and waits for in-flight summarizations to
// finish. Safe to call multiple times.
func (g *Grainer) Close() {
	g.once.Do(func() {
		close(g.stop)
	})
	g.wg.Wait()
}

func (g *Grainer) worker() {
	defer g.wg.Done()
	for {
		select {
		case <-g.stop:
			return
		case nodeID := <-g.queue:
			g.process(nodeID)
		}
	}
}

// process performs a single node's coarse-graining. Each invocation uses a
// fresh, short-lived context rather than reusing the context of whatever
// turn originally scheduled the node — that turn may have already returned
// to its caller by the time this runs.
func (g *Grainer) process(nodeID uuid.UUID) {
	defer g.inFlight.Delete(nodeID)

	ctx := context.Background()

	node, err := g.store.GetNode(ctx, nodeID)
	if err != nil {
		slog.Warn("coarsegrain: failed to load node", "node_id", nodeID, "error", err)
		return
	}
	if node.Summary != nil {
		// Already summarized by a prior schedule or the reconciliation sweep.
		return
	}
	if node.ParentID == nil {
		// Root nodes have nothing to coarse-grain against.
		return
	}

	parent, err := g.store.GetNode(ctx, *node.ParentID)
	if err != nil {
		slog.Warn("coarsegrain: failed to load parent node", "node_id", nodeID, "parent_id", *node.ParentID, "error", err)
		return
	}

	summary, err := g.summarizer.Summarize(ctx, parent, node)
	if err != nil {
		slog.Warn("coarsegrain: summarization failed, will retry on next sweep", "node_id", nodeID, "error", err)
		return
	}

	if err := g.store.SetSummary(ctx, nodeID, summary); err != nil {
		slog.Warn("coarsegrain: failed to persist summary", "node_id", nodeID, "error", err)
	}
}
