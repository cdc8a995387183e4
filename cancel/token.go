package cancel

import (
	"context"
	"sync"
)

// Token is a set of zero-argument callbacks fired once by the request owner.
// The zero value is not usable; use New.
type Token struct {
	mu        sync.Mutex
	callbacks []func()
	spent     bool
}

// New returns a fresh, unspent token.
func New() *Token {
	return &Token{}
}

// Subscribe appends cb to the token. It reports false (and drops cb) if the
// token has already been cancelled, since there is nothing left to cancel.
func (t *Token) Subscribe(cb func()) bool {
	if cb == nil {
		return !t.Cancelled()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.spent {
		return false
	}
	t.callbacks = append(t.callbacks, cb)
	return true
}

// Cancel invokes every subscribed callback exactly once, in subscription
// order, and marks the token spent. Calling Cancel again is a no-op.
func (t *Token) Cancel() {
	t.mu.Lock()
	if t.spent {
		t.mu.Unlock()
		return
	}
	t.spent = true
	cbs := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	// Callbacks run outside the lock so they may inspect the token.
	for _, cb := range cbs {
		cb()
	}
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// Len returns the number of pending callbacks.
func (t *Token) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callbacks)
}

// Context derives a context from parent that is cancelled when the token
// fires. The returned CancelFunc releases the context's resources and must
// be called once the guarded operation finishes.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if !t.Subscribe(cancel) {
		cancel()
	}
	return ctx, cancel
}
