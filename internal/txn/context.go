// Package txn models the caller's transaction as seen by the refresh
// coordinator: an identity plus the ability to run work after commit or
// on rollback.
//
// The active transaction travels in a context.Context. Code that starts a
// transaction binds it with WithTx; code that reacts to it looks it up with
// FromContext or Require.
package txn

import (
	"context"
	"errors"
)

var (
	// ErrNoActiveTransaction is returned by operations that require a
	// transaction when ctx carries none.
	ErrNoActiveTransaction = errors.New("txn: no active transaction")

	// ErrTxDone is returned when registering work on, or finishing, a
	// transaction that has already committed or rolled back.
	ErrTxDone = errors.New("txn: transaction already finished")
)

// Context is the transaction a caller is running in.
type Context interface {
	// ID identifies the transaction; it is unique for the process lifetime.
	ID() string
	// RunAfterCommit schedules fn to run once the transaction commits.
	RunAfterCommit(fn func()) error
	// RunOnRollback schedules fn to run if the transaction rolls back.
	RunOnRollback(fn func()) error
}

type ctxKey struct{}

// WithTx returns a copy of ctx carrying tx.
func WithTx(ctx context.Context, tx Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

// FromContext returns the transaction bound to ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	tx, ok := ctx.Value(ctxKey{}).(Context)
	return tx, ok && tx != nil
}

// Require is FromContext that fails with ErrNoActiveTransaction.
func Require(ctx context.Context) (Context, error) {
	tx, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoActiveTransaction
	}
	return tx, nil
}

// Detach returns a context that keeps ctx's values but is never cancelled
// and carries no transaction. Work scheduled after commit runs under it.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), ctxKey{}, nil)
}
