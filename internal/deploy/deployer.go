// Package deploy changes the artifact mapping of a scope and refreshes the
// scope's namespace as part of the same transaction.
package deploy

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/namespace"
	"github.com/zjrosen/modreg/internal/refresh"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/tracing"
	"github.com/zjrosen/modreg/internal/txn"
)

// Store persists scope artifact mappings.
type Store interface {
	ReplaceArtifacts(ctx context.Context, id scope.ID, artifacts []artifact.Artifact) (bool, error)
	DeleteScope(ctx context.Context, id scope.ID) (bool, error)
}

// Refresher runs a refresh under a given protocol.
type Refresher interface {
	Refresh(ctx context.Context, mode refresh.Mode, id scope.ID) (*namespace.Namespace, error)
}

// Result describes the outcome of a deployment.
type Result struct {
	Scope   scope.ID
	Changed bool
	// Namespace is the published namespace for immediate modes. It is nil
	// for deferred refreshes and for deployments that changed nothing.
	Namespace *namespace.Namespace
}

// Deployer applies deployments.
type Deployer struct {
	db        *sql.DB
	store     Store
	refresher Refresher
	kinds     *scope.Kinds
	mode      refresh.Mode
	tracer    trace.Tracer
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithMode sets the refresh protocol. Defaults to refresh.ModeRollback.
func WithMode(mode refresh.Mode) Option {
	return func(d *Deployer) { d.mode = mode }
}

// WithKinds sets the accepted scope kinds.
func WithKinds(kinds *scope.Kinds) Option {
	return func(d *Deployer) { d.kinds = kinds }
}

// WithTracer traces deployments.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Deployer) { d.tracer = tracer }
}

// New creates a Deployer. db is used to open a transaction when the
// caller's context does not already carry one.
func New(db *sql.DB, store Store, refresher Refresher, opts ...Option) *Deployer {
	d := &Deployer{
		db:        db,
		store:     store,
		refresher: refresher,
		kinds:     scope.DefaultKindSet(),
		mode:      refresh.ModeRollback,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the configured refresh protocol.
func (d *Deployer) Mode() refresh.Mode {
	return d.mode
}

// Deploy replaces the artifact mapping of id. The scope is refreshed once,
// and only if the mapping changed.
func (d *Deployer) Deploy(ctx context.Context, id scope.ID, artifacts []artifact.Artifact) (Result, error) {
	return d.apply(ctx, tracing.SpanDeploy, id, func(ctx context.Context) (bool, error) {
		return d.store.ReplaceArtifacts(ctx, id, artifacts)
	}, attribute.Int(tracing.AttrArtifactCount, len(artifacts)))
}

// Undeploy removes the artifact mapping of id and refreshes it once if
// anything was removed.
func (d *Deployer) Undeploy(ctx context.Context, id scope.ID) (Result, error) {
	return d.apply(ctx, tracing.SpanUndeploy, id, func(ctx context.Context) (bool, error) {
		return d.store.DeleteScope(ctx, id)
	})
}

func (d *Deployer) apply(
	ctx context.Context,
	spanName string,
	id scope.ID,
	write func(ctx context.Context) (bool, error),
	attrs ...attribute.KeyValue,
) (res Result, err error) {
	if err := d.kinds.Validate(id); err != nil {
		return Result{}, err
	}

	ctx, span := tracing.Start(ctx, d.tracer, spanName, append(attrs,
		attribute.String(tracing.AttrScope, id.String()),
		attribute.String(tracing.AttrRefreshMode, string(d.mode)),
	)...)
	defer func() { tracing.Finish(span, err) }()

	res = Result{Scope: id}
	run := func(ctx context.Context) error {
		if tx, ok := txn.FromContext(ctx); ok {
			span.SetAttributes(attribute.String(tracing.AttrTxID, tx.ID()))
		}
		changed, err := write(ctx)
		if err != nil {
			return err
		}
		res.Changed = changed
		if !changed {
			return nil
		}
		ns, err := d.refresher.Refresh(ctx, d.mode, id)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", id, err)
		}
		res.Namespace = ns
		return nil
	}

	if _, ok := txn.SQLFromContext(ctx); ok {
		err = run(ctx)
	} else {
		err = txn.RunInTx(ctx, d.db, run)
	}
	if err != nil {
		log.ErrorErr(log.CatDeploy, "deployment failed", err, "scope", id, "mode", d.mode)
		return Result{}, err
	}

	span.SetAttributes(attribute.Bool(tracing.AttrDeployChanged, res.Changed))
	log.Info(log.CatDeploy, "deployment applied", "scope", id, "changed", res.Changed, "mode", d.mode)
	return res, nil
}
