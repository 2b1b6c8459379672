// Package resolver answers module and resource lookups for a scope.
//
// A lookup tries the scope's own namespace first and then walks the parent
// chain. Each step asks the registry for the parent's current namespace, so
// a refresh of Global is seen by every local scope on its next lookup.
package resolver

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/namespace"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/tracing"
)

// Registry is the part of the scope registry the resolver reads.
type Registry interface {
	Get(ctx context.Context, id scope.ID) (*namespace.Namespace, error)
}

// Resolution is a resolved module.
type Resolution struct {
	// Data is a private copy of the module bytes.
	Data []byte
	// Owner is the scope whose namespace supplied the module.
	Owner scope.ID
	// Artifact names the artifact the module came from.
	Artifact string
	// Namespace and Generation identify the snapshot that answered.
	Namespace  string
	Generation uint64
}

// Resolver is the read-side facade over a registry.
type Resolver struct {
	registry Registry
	tracer   trace.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTracer traces each lookup.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Resolver) { r.tracer = tracer }
}

// New creates a resolver reading from registry.
func New(registry Registry, opts ...Option) *Resolver {
	r := &Resolver{registry: registry}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveModule looks up module name for id. The boolean is false when no
// scope in the chain declares it; the caller then falls back to its base
// environment.
func (r *Resolver) ResolveModule(ctx context.Context, id scope.ID, name string) (Resolution, bool, error) {
	var res Resolution
	found, err := r.walk(ctx, tracing.SpanResolveModule, id, name, func(ns *namespace.Namespace) bool {
		data, from, ok := ns.LookupModule(name)
		if !ok {
			return false
		}
		res = Resolution{
			Data:       data,
			Owner:      ns.Scope(),
			Artifact:   from,
			Namespace:  ns.ID(),
			Generation: ns.Generation(),
		}
		return true
	})
	if err != nil || !found {
		log.Debug(log.CatResolve, "module not resolved", "scope", id, "name", name)
		return Resolution{}, false, err
	}
	log.Debug(log.CatResolve, "module resolved", "scope", id, "name", name, "owner", res.Owner)
	return res, true, nil
}

// ResolveResource looks up resource name for id with the same precedence
// as ResolveModule. The returned bytes are a private copy.
func (r *Resolver) ResolveResource(ctx context.Context, id scope.ID, name string) ([]byte, bool, error) {
	var out []byte
	found, err := r.walk(ctx, tracing.SpanResolveResource, id, name, func(ns *namespace.Namespace) bool {
		data, _, ok := ns.LookupResource(name)
		out = data
		return ok
	})
	if err != nil || !found {
		return nil, false, err
	}
	return out, true, nil
}

// walk visits id's namespace and then each ancestor's, stopping at the
// first one for which visit reports true.
func (r *Resolver) walk(ctx context.Context, spanName string, id scope.ID, name string, visit func(*namespace.Namespace) bool) (found bool, err error) {
	ctx, span := tracing.Start(ctx, r.tracer, spanName,
		attribute.String(tracing.AttrScope, id.String()),
		attribute.String(tracing.AttrResolveName, name),
	)
	defer func() { tracing.Finish(span, err) }()

	for current := id; ; {
		ns, err := r.registry.Get(ctx, current)
		if err != nil {
			return false, err
		}
		if visit(ns) {
			span.SetAttributes(attribute.String(tracing.AttrResolveOwner, current.String()))
			return true, nil
		}
		parent, ok := ns.Parent()
		if !ok {
			return false, nil
		}
		current = parent
	}
}
