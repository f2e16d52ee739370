// Package txn carries transaction-completion callbacks through a context.
//
// Stores attach Hooks when they open a transaction. Code running inside the
// transaction registers work that must only happen once the commit is durable
// (scheduling a match) and compensation for side effects outside the database
// (index entries) that must be undone if the transaction does not commit.
package txn

import (
	"context"
	"sync"
)

type hooksKey struct{}

// Hooks collects callbacks for one transaction.
type Hooks struct {
	mu       sync.Mutex
	commit   []func(context.Context)
	rollback []func(context.Context)
}

// Begin returns a context carrying fresh hooks.
func Begin(ctx context.Context) (context.Context, *Hooks) {
	h := &Hooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

// FromContext returns the hooks of the enclosing transaction, or nil.
func FromContext(ctx context.Context) *Hooks {
	h, _ := ctx.Value(hooksKey{}).(*Hooks)
	return h
}

// AfterCommit runs fn once the enclosing transaction commits. Outside a
// transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	h := FromContext(ctx)
	if h == nil {
		fn(context.WithoutCancel(ctx))
		return
	}
	h.mu.Lock()
	h.commit = append(h.commit, fn)
	h.mu.Unlock()
}

// OnRollback runs fn if the enclosing transaction rolls back or fails to
// commit. Callbacks run in reverse registration order. Outside a transaction
// it is a no-op.
func OnRollback(ctx context.Context, fn func(context.Context)) {
	h := FromContext(ctx)
	if h == nil {
		return
	}
	h.mu.Lock()
	h.rollback = append(h.rollback, fn)
	h.mu.Unlock()
}

// Committed runs the commit callbacks in registration order.
func (h *Hooks) Committed(ctx context.Context) {
	h.mu.Lock()
	fns := h.commit
	h.commit, h.rollback = nil, nil
	h.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, fn := range fns {
		fn(ctx)
	}
}

// RolledBack runs the rollback callbacks, most recent first.
func (h *Hooks) RolledBack(ctx context.Context) {
	h.mu.Lock()
	fns := h.rollback
	h.commit, h.rollback = nil, nil
	h.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](ctx)
	}
}
