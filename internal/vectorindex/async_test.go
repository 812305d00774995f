package vectorindex

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeQuerier struct {
	calls int32
	delay time.Duration
	err   error
}

func (f *fakeQuerier) Query(ctx context.Context, text string, k int) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "result for " + text, nil
}

func TestAsyncStore_QueryReturnsResult(t *testing.T) {
	fq := &fakeQuerier{}
	a := NewAsyncStore(fq)
	defer a.Close()

	result, err := a.Query(context.Background(), "hello", 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result != "result for hello" {
		t.Errorf("result = %q", result)
	}
}

func TestAsyncStore_PropagatesError(t *testing.T) {
	fq := &fakeQuerier{err: errors.New("boom")}
	a := NewAsyncStore(fq)
	defer a.Close()

	_, err := a.Query(context.Background(), "hello", 5)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestAsyncStore_RunsOffCallerGoroutine(t *testing.T) {
	fq := &fakeQuerier{delay: 20 * time.Millisecond}
	a := NewAsyncStore(fq)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := a.Query(ctx, "slow", 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}
