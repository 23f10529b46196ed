package worker

import (
	"context"

	"github.com/converso-ai/chat-backend/pkg/utils"
)

// CleanupPool caps the number of concurrent vector store cleanup operations
// in the whole process. One pool is shared by every cascade; its width is a
// hard ceiling, not a rate limit — excess work waits for a free slot.
//
// The pool is constructed by the host process and injected into the deletion
// engine, so tests can substitute a pool of width 1 for deterministic
// ordering.
type CleanupPool struct {
	sem chan struct{}
}

// NewCleanupPool returns a pool with the given width. A width below 1 is
// clamped to 1.
func NewCleanupPool(width int) *CleanupPool {
	if width < 1 {
		width = 1
	}
	return &CleanupPool{
		sem: make(chan struct{}, width),
	}
}

// Width returns the concurrency ceiling of the pool.
func (p *CleanupPool) Width() int {
	return cap(p.sem)
}

// Submit blocks until a slot is free, then runs fn on its own goroutine,
// releasing the slot when fn returns. If the context is cancelled before a
// slot frees up, fn is never run and the context error is returned. Panics
// in fn are recovered so a single bad task can't take the pool down.
func (p *CleanupPool) Submit(ctx context.Context, name string, fn func()) error {
	// Checked up front so a cancelled context never wins a slot through the
	// select race below.
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	go utils.GoRecover(func() {
		defer func() { <-p.sem }()
		fn()
	}, name)

	return nil
}
