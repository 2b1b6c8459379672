package txn

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/zjrosen/modreg/internal/log"
)

type state int

const (
	stateActive state = iota
	stateCommitted
	stateRolledBack
)

func (s state) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateCommitted:
		return "committed"
	case stateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Tx is an in-memory transaction. It holds no data of its own; it only
// sequences the callbacks registered against it.
type Tx struct {
	id string

	mu          sync.Mutex
	state       state
	afterCommit []func()
	onRollback  []func()
}

var _ Context = (*Tx)(nil)

// Begin starts a new transaction.
func Begin() *Tx {
	tx := &Tx{id: uuid.NewString()}
	log.Debug(log.CatTx, "transaction started", "tx", tx.id)
	return tx
}

// ID implements Context.
func (t *Tx) ID() string { return t.id }

// Done reports whether the transaction has committed or rolled back.
func (t *Tx) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != stateActive
}

// RunAfterCommit implements Context.
func (t *Tx) RunAfterCommit(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateActive {
		return fmt.Errorf("%w: %s is %s", ErrTxDone, t.id, t.state)
	}
	t.afterCommit = append(t.afterCommit, fn)
	return nil
}

// RunOnRollback implements Context.
func (t *Tx) RunOnRollback(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateActive {
		return fmt.Errorf("%w: %s is %s", ErrTxDone, t.id, t.state)
	}
	t.onRollback = append(t.onRollback, fn)
	return nil
}

// Commit finishes the transaction and runs the after-commit callbacks in
// registration order.
func (t *Tx) Commit() error {
	callbacks, err := t.finish(stateCommitted)
	if err != nil {
		return err
	}
	log.Debug(log.CatTx, "transaction committed", "tx", t.id, "callbacks", len(callbacks))
	t.run("after-commit", callbacks)
	return nil
}

// Rollback finishes the transaction and runs the rollback callbacks in
// reverse registration order.
func (t *Tx) Rollback() error {
	callbacks, err := t.finish(stateRolledBack)
	if err != nil {
		return err
	}
	slices.Reverse(callbacks)
	log.Debug(log.CatTx, "transaction rolled back", "tx", t.id, "callbacks", len(callbacks))
	t.run("rollback", callbacks)
	return nil
}

func (t *Tx) finish(to state) ([]func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrTxDone, t.id, t.state)
	}
	t.state = to
	var callbacks []func()
	if to == stateCommitted {
		callbacks = t.afterCommit
	} else {
		callbacks = t.onRollback
	}
	t.afterCommit, t.onRollback = nil, nil
	return callbacks, nil
}

// run invokes every callback; a panicking callback is logged and does not
// stop the rest.
func (t *Tx) run(phase string, callbacks []func()) {
	for i, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error(log.CatTx, "transaction callback panicked",
						"tx", t.id, "phase", phase, "index", i, "panic", r)
				}
			}()
			fn()
		}()
	}
}
