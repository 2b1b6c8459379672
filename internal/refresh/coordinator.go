// Package refresh ties namespace refreshes to the caller's transaction.
//
// Three protocols are offered. Deferred refreshes run once after the
// transaction commits. Immediate refreshes run now and are never undone.
// Immediate-with-rollback refreshes run now and reinstate the previous
// namespace if the transaction rolls back.
package refresh

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/namespace"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/txn"
)

// Mode selects a refresh protocol.
type Mode string

const (
	ModeDeferred  Mode = "deferred"
	ModeImmediate Mode = "immediate"
	ModeRollback  Mode = "rollback"
)

// ParseMode converts a config value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDeferred, ModeImmediate, ModeRollback:
		return m, nil
	default:
		return "", fmt.Errorf("unknown refresh mode %q (want deferred, immediate or rollback)", s)
	}
}

// Registry is the part of the scope registry the coordinator drives.
type Registry interface {
	Refresh(ctx context.Context, id scope.ID) (*namespace.Namespace, error)
	Current(id scope.ID) (*namespace.Namespace, bool)
	ReplaceWithoutRebuilding(ctx context.Context, id scope.ID, previous *namespace.Namespace) error
}

type pendingKey struct {
	tx    string
	scope scope.ID
}

// Coordinator schedules refreshes against a Registry.
type Coordinator struct {
	registry Registry

	mu      sync.Mutex
	pending map[pendingKey]struct{}
}

// NewCoordinator creates a coordinator for registry.
func NewCoordinator(registry Registry) *Coordinator {
	return &Coordinator{
		registry: registry,
		pending:  make(map[pendingKey]struct{}),
	}
}

// Refresh dispatches to the protocol named by mode. The namespace is nil
// for deferred refreshes.
func (c *Coordinator) Refresh(ctx context.Context, mode Mode, id scope.ID) (*namespace.Namespace, error) {
	switch mode {
	case ModeDeferred:
		return nil, c.RefreshDeferred(ctx, id)
	case ModeImmediate:
		return c.RefreshImmediate(ctx, id)
	case ModeRollback:
		return c.RefreshImmediateWithRollback(ctx, id)
	default:
		return nil, fmt.Errorf("unknown refresh mode %q", mode)
	}
}

// RefreshDeferred refreshes id once the transaction in ctx commits.
// Repeated calls for the same scope within one transaction schedule a
// single refresh. Nothing happens if the transaction rolls back.
func (c *Coordinator) RefreshDeferred(ctx context.Context, id scope.ID) error {
	tx, err := txn.Require(ctx)
	if err != nil {
		return err
	}
	key := pendingKey{tx: tx.ID(), scope: id}

	c.mu.Lock()
	if _, ok := c.pending[key]; ok {
		c.mu.Unlock()
		log.Debug(log.CatRefresh, "deferred refresh already scheduled", "scope", id, "tx", key.tx)
		return nil
	}
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	detached := txn.Detach(ctx)
	err = tx.RunAfterCommit(func() {
		c.clear(key)
		if _, err := c.registry.Refresh(detached, id); err != nil {
			log.ErrorErr(log.CatRefresh, "deferred refresh failed", err, "scope", id, "tx", key.tx)
			return
		}
		log.Debug(log.CatRefresh, "deferred refresh applied", "scope", id, "tx", key.tx)
	})
	if err == nil {
		err = tx.RunOnRollback(func() { c.clear(key) })
	}
	if err != nil {
		c.clear(key)
		return fmt.Errorf("schedule refresh of %s: %w", id, err)
	}
	log.Debug(log.CatRefresh, "deferred refresh scheduled", "scope", id, "tx", key.tx)
	return nil
}

// RefreshImmediate refreshes id now. A surrounding transaction, if any, has
// no effect on the result.
func (c *Coordinator) RefreshImmediate(ctx context.Context, id scope.ID) (*namespace.Namespace, error) {
	ns, err := c.registry.Refresh(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatRefresh, "immediate refresh applied", "scope", id, "namespace", ns.ID())
	return ns, nil
}

// RefreshImmediateWithRollback refreshes id now and, if the transaction
// in ctx rolls back, reinstates the namespace that was current before the
// call (or resets id to ABSENT if there was none).
func (c *Coordinator) RefreshImmediateWithRollback(ctx context.Context, id scope.ID) (*namespace.Namespace, error) {
	tx, err := txn.Require(ctx)
	if err != nil {
		return nil, err
	}

	previous, _ := c.registry.Current(id)

	// Register first so a finished transaction fails before any state
	// changes. The compensation only acts once the refresh has applied.
	var (
		mu      sync.Mutex
		applied bool
	)
	detached := txn.Detach(ctx)
	err = tx.RunOnRollback(func() {
		mu.Lock()
		ok := applied
		mu.Unlock()
		if !ok {
			return
		}
		if err := c.registry.ReplaceWithoutRebuilding(detached, id, previous); err != nil {
			log.ErrorErr(log.CatRefresh, "rollback compensation failed", err, "scope", id, "tx", tx.ID())
			return
		}
		log.Info(log.CatRefresh, "refresh rolled back", "scope", id, "tx", tx.ID(), "absent", previous == nil)
	})
	if err != nil {
		return nil, fmt.Errorf("register rollback for %s: %w", id, err)
	}

	ns, err := c.registry.Refresh(ctx, id)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	applied = true
	mu.Unlock()

	log.Debug(log.CatRefresh, "refresh applied with rollback", "scope", id, "namespace", ns.ID(), "tx", tx.ID())
	return ns, nil
}

// Pending reports how many deferred refreshes are waiting for a commit.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) clear(key pendingKey) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}
