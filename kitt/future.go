package kitt

import (
	"context"
	"sync"
)

// Future completes exactly once with the accumulator produced by a rule action
type Future struct {
	once sync.Once
	done chan struct{}
	resp BlockingResponse
}

// NewFuture that is not yet resolved
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// ResolvedFuture is already complete with resp
func ResolvedFuture(resp BlockingResponse) *Future {
	f := NewFuture()
	f.Resolve(resp)
	return f
}

// Resolve the future, only the first call has an effect
func (f *Future) Resolve(resp BlockingResponse) {
	f.once.Do(func() {
		f.resp = resp
		close(f.done)
	})
}

// Done is closed once resolved
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Resolved without blocking
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait for the response or the context to expire
func (f *Future) Wait(ctx context.Context) (BlockingResponse, error) {
	select {
	case <-f.done:
		return f.resp, nil
	case <-ctx.Done():
		return BlockingResponse{}, ctx.Err()
	}
}
