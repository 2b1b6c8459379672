package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLTx is a database transaction whose callbacks follow the outcome of
// the underlying *sql.Tx.
type SQLTx struct {
	*Tx
	sqlTx *sql.Tx
}

// BeginSQL starts a database transaction on db.
func BeginSQL(ctx context.Context, db *sql.DB, opts *sql.TxOptions) (*SQLTx, error) {
	sqlTx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &SQLTx{Tx: Begin(), sqlTx: sqlTx}, nil
}

// SQL returns the underlying database transaction.
func (t *SQLTx) SQL() *sql.Tx { return t.sqlTx }

// Commit commits the database transaction, then runs the after-commit
// callbacks. If the database commit fails the rollback callbacks run
// instead and the commit error is returned.
func (t *SQLTx) Commit() error {
	if t.Done() {
		return fmt.Errorf("%w: %s", ErrTxDone, t.ID())
	}
	if err := t.sqlTx.Commit(); err != nil {
		_ = t.Tx.Rollback()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return t.Tx.Commit()
}

// Rollback rolls back the database transaction and runs the rollback
// callbacks.
func (t *SQLTx) Rollback() error {
	if t.Done() {
		return fmt.Errorf("%w: %s", ErrTxDone, t.ID())
	}
	err := t.sqlTx.Rollback()
	_ = t.Tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// SQLFromContext returns the database transaction bound to ctx, if the
// active transaction has one.
func SQLFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	s, ok := tx.(interface{ SQL() *sql.Tx })
	if !ok {
		return nil, false
	}
	return s.SQL(), true
}

// RunInTx runs fn inside a database transaction bound to the context fn
// receives. The transaction commits when fn returns nil and rolls back
// when it returns an error or panics.
func RunInTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	tx, err := BeginSQL(ctx, db, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
