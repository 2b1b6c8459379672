// Package registry caches the current namespace of every scope.
//
// Reads are lock-free: each scope has an entry holding an atomic pointer to
// its current namespace. A miss builds the namespace once per scope no
// matter how many callers ask concurrently; refreshes, restores and
// removals serialize per entry and never touch other scopes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/namespace"
	"github.com/zjrosen/modreg/internal/pubsub"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/tracing"
)

var (
	// ErrStopped is returned by every operation after Stop.
	ErrStopped = errors.New("registry: stopped")

	// errEntryGone signals that the entry a build targeted was evicted
	// while the build ran; the caller retries against the live entry.
	errEntryGone = errors.New("registry: entry evicted during build")
)

type entry struct {
	current atomic.Pointer[namespace.Namespace]

	mu    sync.Mutex
	epoch uint64 // bumped on every publish or eviction
	dead  bool   // evicted; never reused
}

// Registry maps scope IDs to their current namespace.
type Registry struct {
	source  artifact.Source
	builder *namespace.Builder
	kinds   *scope.Kinds
	tracer  trace.Tracer
	broker  *pubsub.Broker[Event]

	entries    sync.Map // scope.ID -> *entry
	flights    singleflight.Group
	generation atomic.Uint64
	fetches    atomic.Uint64
	stopped    atomic.Bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithKinds sets the accepted scope kinds. Defaults to scope.DefaultKindSet.
func WithKinds(kinds *scope.Kinds) Option {
	return func(r *Registry) { r.kinds = kinds }
}

// WithBuilder replaces the namespace builder.
func WithBuilder(b *namespace.Builder) Option {
	return func(r *Registry) { r.builder = b }
}

// WithTracer traces builds and refreshes.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) { r.tracer = tracer }
}

// New creates a registry that builds namespaces from source.
func New(source artifact.Source, opts ...Option) *Registry {
	r := &Registry{
		source:  source,
		builder: namespace.NewBuilder(),
		kinds:   scope.DefaultKindSet(),
		broker:  pubsub.NewBroker[Event](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kinds returns the scope kinds this registry accepts.
func (r *Registry) Kinds() *scope.Kinds {
	return r.kinds
}

// Subscribe streams lifecycle events until ctx is cancelled or the
// registry is stopped.
func (r *Registry) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return r.broker.Subscribe(ctx)
}

// Fetches reports how many times the artifact source has been called.
func (r *Registry) Fetches() uint64 {
	return r.fetches.Load()
}

func (r *Registry) check(id scope.ID) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	return r.kinds.Validate(id)
}

func (r *Registry) entryFor(id scope.ID) *entry {
	if v, ok := r.entries.Load(id); ok {
		return v.(*entry)
	}
	v, _ := r.entries.LoadOrStore(id, &entry{})
	return v.(*entry)
}

// Get returns the current namespace of id, building it if the scope is
// ABSENT. Concurrent misses for the same scope share one build.
func (r *Registry) Get(ctx context.Context, id scope.ID) (*namespace.Namespace, error) {
	if err := r.check(id); err != nil {
		return nil, err
	}
	for {
		e := r.entryFor(id)
		if ns := e.current.Load(); ns != nil {
			return ns, nil
		}

		v, err, shared := r.flights.Do(id.String(), func() (any, error) {
			return r.buildMiss(ctx, id, e)
		})
		if errors.Is(err, errEntryGone) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if shared {
			log.Debug(log.CatRegistry, "joined in-flight build", "scope", id)
		}
		return v.(*namespace.Namespace), nil
	}
}

func (r *Registry) buildMiss(ctx context.Context, id scope.ID, e *entry) (ns *namespace.Namespace, err error) {
	// The emptiness check and the epoch snapshot share one critical
	// section, so a publish cannot slip between them.
	e.mu.Lock()
	if cur := e.current.Load(); cur != nil {
		e.mu.Unlock()
		return cur, nil
	}
	if e.dead {
		e.mu.Unlock()
		return nil, errEntryGone
	}
	epoch := e.epoch
	e.mu.Unlock()

	ctx, span := r.startSpan(ctx, tracing.SpanBuild, id)
	defer func() {
		if errors.Is(err, errEntryGone) {
			span.SetAttributes(attribute.Bool(tracing.AttrDiscarded, true))
			tracing.Finish(span, nil)
			return
		}
		tracing.Finish(span, err)
	}()

	ns, err = r.build(ctx, id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if r.stopped.Load() {
		ns.Retire()
		return nil, ErrStopped
	}
	if e.dead {
		ns.Retire()
		return nil, errEntryGone
	}
	if e.epoch != epoch {
		// Lost to a refresh or restore that published first.
		ns.Retire()
		span.SetAttributes(attribute.Bool(tracing.AttrDiscarded, true))
		log.Debug(log.CatRegistry, "discarded build that lost publish race",
			"scope", id, "namespace", ns.ID())
		if cur := e.current.Load(); cur != nil {
			return cur, nil
		}
		return nil, errEntryGone
	}

	r.publishLocked(ctx, e, ns, EventPublished)
	return ns, nil
}

// Refresh rebuilds id from the artifact source and publishes the result,
// retiring the previous namespace. It works on ABSENT scopes too.
func (r *Registry) Refresh(ctx context.Context, id scope.ID) (ns *namespace.Namespace, err error) {
	if err := r.check(id); err != nil {
		return nil, err
	}

	ctx, span := r.startSpan(ctx, tracing.SpanRefresh, id)
	defer func() { tracing.Finish(span, err) }()

	ns, err = r.build(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.publish(ctx, id, ns, EventPublished); err != nil {
		return nil, err
	}
	log.Info(log.CatRegistry, "scope refreshed", "scope", id, "namespace", ns.ID(), "generation", ns.Generation())
	return ns, nil
}

// Current returns the published namespace of id without building.
func (r *Registry) Current(id scope.ID) (*namespace.Namespace, bool) {
	if r.check(id) != nil {
		return nil, false
	}
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	ns := v.(*entry).current.Load()
	return ns, ns != nil
}

// ReplaceWithoutRebuilding reinstates previous as the content of id
// without consulting the artifact source. The published namespace is a
// clone of previous with a new identity. A nil previous resets id to
// ABSENT.
func (r *Registry) ReplaceWithoutRebuilding(ctx context.Context, id scope.ID, previous *namespace.Namespace) error {
	if err := r.check(id); err != nil {
		return err
	}
	if previous == nil {
		r.evict(id)
		return nil
	}
	if previous.Scope() != id {
		return fmt.Errorf("registry: cannot restore namespace of %s into %s", previous.Scope(), id)
	}

	ctx, span := tracing.Start(ctx, r.tracer, tracing.SpanRestore,
		attribute.String(tracing.AttrScope, id.String()),
		attribute.String(tracing.AttrNamespaceID, previous.ID()),
	)
	restored := previous.Clone(r.generation.Add(1))
	if err := r.publish(ctx, id, restored, EventRestored); err != nil {
		tracing.Finish(span, err)
		return err
	}
	span.SetAttributes(attribute.Int64(tracing.AttrGeneration, int64(restored.Generation())))
	tracing.Finish(span, nil)

	log.Info(log.CatRegistry, "scope restored without rebuild",
		"scope", id, "from", previous.ID(), "namespace", restored.ID())
	return nil
}

// Remove evicts id. The next Get rebuilds from scratch. Other scopes are
// unaffected.
func (r *Registry) Remove(id scope.ID) error {
	if err := r.check(id); err != nil {
		return err
	}
	r.evict(id)
	return nil
}

// RemoveAll evicts every scope of kind and returns how many had a
// published namespace.
func (r *Registry) RemoveAll(kind scope.Kind) (int, error) {
	if r.stopped.Load() {
		return 0, ErrStopped
	}
	if !r.kinds.Has(kind) {
		return 0, fmt.Errorf("%w: %q", scope.ErrUnknownKind, kind)
	}

	var ids []scope.ID
	r.entries.Range(func(key, _ any) bool {
		if id := key.(scope.ID); id.Kind == kind {
			ids = append(ids, id)
		}
		return true
	})

	removed := 0
	for _, id := range ids {
		if r.evict(id) {
			removed++
		}
	}
	log.Info(log.CatRegistry, "scopes removed", "kind", kind, "count", removed)
	return removed, nil
}

// Scopes lists scopes with a published namespace, sorted by name.
func (r *Registry) Scopes() []scope.ID {
	var out []scope.ID
	r.entries.Range(func(key, value any) bool {
		if value.(*entry).current.Load() != nil {
			out = append(out, key.(scope.ID))
		}
		return true
	})
	slices.SortFunc(out, func(a, b scope.ID) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		default:
			return 0
		}
	})
	return out
}

// Stop evicts every scope and rejects further calls. Subscriptions are
// closed.
func (r *Registry) Stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	r.entries.Range(func(key, _ any) bool {
		r.evict(key.(scope.ID))
		return true
	})
	r.broker.Close()
	log.Info(log.CatRegistry, "registry stopped")
}

func (r *Registry) startSpan(ctx context.Context, name string, id scope.ID) (context.Context, trace.Span) {
	return tracing.Start(ctx, r.tracer, name,
		attribute.String(tracing.AttrScope, id.String()),
		attribute.String(tracing.AttrScopeKind, string(id.Kind)),
	)
}

// build fetches the artifacts of id and indexes them. The caller owns the
// span in ctx.
func (r *Registry) build(ctx context.Context, id scope.ID) (*namespace.Namespace, error) {
	span := trace.SpanFromContext(ctx)

	r.fetches.Add(1)
	artifacts, err := r.source.ListArtifacts(ctx, id)
	if err != nil {
		var srcErr *artifact.SourceError
		if !errors.As(err, &srcErr) {
			err = &artifact.SourceError{Scope: id, Err: err}
		}
		log.ErrorErr(log.CatSource, "artifact source failed", err, "scope", id)
		return nil, err
	}
	span.AddEvent(tracing.EventSourceFetched, trace.WithAttributes(
		attribute.Int(tracing.AttrArtifactCount, len(artifacts)),
	))

	parent, _ := id.Parent()
	ns, err := r.builder.Build(id, parent, artifacts, r.generation.Add(1))
	if err != nil {
		return nil, fmt.Errorf("build namespace for %s: %w", id, err)
	}
	span.SetAttributes(
		attribute.String(tracing.AttrNamespaceID, ns.ID()),
		attribute.Int64(tracing.AttrGeneration, int64(ns.Generation())),
	)
	return ns, nil
}

// publish installs ns into the live entry for id, whatever entry that is
// by the time the build finished. Stop is re-checked under the entry lock:
// an entry created after Stop ranged over the map would otherwise survive
// it.
func (r *Registry) publish(ctx context.Context, id scope.ID, ns *namespace.Namespace, kind pubsub.EventType) error {
	for {
		if r.stopped.Load() {
			ns.Retire()
			return ErrStopped
		}
		e := r.entryFor(id)
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		if r.stopped.Load() {
			e.mu.Unlock()
			ns.Retire()
			return ErrStopped
		}
		r.publishLocked(ctx, e, ns, kind)
		e.mu.Unlock()
		return nil
	}
}

func (r *Registry) publishLocked(ctx context.Context, e *entry, ns *namespace.Namespace, kind pubsub.EventType) {
	old := e.current.Swap(ns)
	e.epoch++
	r.broker.Publish(kind, Event{Scope: ns.Scope(), NamespaceID: ns.ID(), Generation: ns.Generation()})
	trace.SpanFromContext(ctx).AddEvent(tracing.EventPublished, trace.WithAttributes(
		attribute.String(tracing.AttrNamespaceID, ns.ID()),
	))
	if old != nil {
		r.retire(ctx, old)
	}
}

func (r *Registry) retire(ctx context.Context, ns *namespace.Namespace) {
	if ns.Retire() {
		r.broker.Publish(EventRetired, Event{Scope: ns.Scope(), NamespaceID: ns.ID(), Generation: ns.Generation()})
		trace.SpanFromContext(ctx).AddEvent(tracing.EventRetired, trace.WithAttributes(
			attribute.String(tracing.AttrNamespaceID, ns.ID()),
		))
	}
}

// evict marks the entry for id dead and drops it from the map. Reports
// whether a namespace was published at the time.
func (r *Registry) evict(id scope.ID) bool {
	v, ok := r.entries.Load(id)
	if !ok {
		return false
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return false
	}
	e.dead = true
	e.epoch++
	old := e.current.Swap(nil)
	r.entries.CompareAndDelete(id, e)

	if old == nil {
		return false
	}
	r.retire(context.Background(), old)
	r.broker.Publish(EventRemoved, Event{Scope: id, NamespaceID: old.ID(), Generation: old.Generation()})
	log.Debug(log.CatRegistry, "scope evicted", "scope", id, "namespace", old.ID())
	return true
}
