package vectorindex

import (
	"context"
	"fmt"
	"runtime"
)

// queryJob is one unit of work submitted to the async worker pool.
type queryJob struct {
	ctx    context.Context
	text   string
	k      int
	result chan<- queryResult
}

type queryResult struct {
	text string
	err  error
}

// querier is the slice of Store that the async pool dispatches onto.
// Defined as an interface so the worker pool's scheduling behavior can be
// tested without a live database.
type querier interface {
	Query(ctx context.Context, text string, k int) (string, error)
}

// AsyncStore wraps a Store with a bounded worker pool so that Query calls
// never run on the caller's own goroutine — the idiomatic Go equivalent of
// the original's ThreadPoolExecutor(max_workers=3): search is CPU-bound in
// the embedding/distance step and must not stall whatever goroutine issued
// the request.
type AsyncStore struct {
	store querier
	jobs  chan queryJob
}

// NewAsyncStore starts a worker pool of runtime.GOMAXPROCS(0) goroutines
// fronting store. Callers must call Close on shutdown.
func NewAsyncStore(store querier) *AsyncStore {
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}

	a := &AsyncStore{
		store: store,
		jobs:  make(chan queryJob, workers*4),
	}
	for i := 0; i < workers; i++ {
		go a.worker()
	}
	return a
}

func (a *AsyncStore) worker() {
	for job := range a.jobs {
		text, err := a.store.Query(job.ctx, job.text, job.k)
		job.result <- queryResult{text: text, err: err}
	}
}

// Query submits text/k to the worker pool and blocks until a worker
// processes it or ctx is cancelled, whichever comes first.
func (a *AsyncStore) Query(ctx context.Context, text string, k int) (string, error) {
	result := make(chan queryResult, 1)
	select {
	case a.jobs <- queryJob{ctx: ctx, text: text, k: k, result: result}:
	case <-ctx.Done():
		return "", fmt.Errorf("vectorindex: async query: %w", ctx.Err())
	}

	select {
	case r := <-result:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("vectorindex: async query: %w", ctx.Err())
	}
}

// Close stops accepting new queries. In-flight workers drain naturally once
// the jobs channel is closed and empty.
func (a *AsyncStore) Close() {
	close(a.jobs)
}
