// Package namespace builds immutable, per-scope snapshots of everything a
// scope can resolve.
//
// A Namespace never points at its parent namespace. It records only the
// parent scope ID; delegation goes back through the registry so that a
// parent refresh never leaves descendants holding a stale parent.
package namespace

import (
	"bytes"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/scope"
)

// Namespace is an immutable snapshot of a scope's artifacts. Only the
// retired flag changes after construction, and it changes at most once.
type Namespace struct {
	id         string
	scope      scope.ID
	parent     scope.ID
	artifacts  []artifact.Artifact
	modules    map[string]artifact.Entry
	resources  map[string]artifact.Entry
	generation uint64
	builtAt    time.Time
	retired    atomic.Bool
}

// ID is a unique identity for this snapshot. Content-equal snapshots built
// at different times have different IDs.
func (n *Namespace) ID() string { return n.id }

// Scope returns the scope this namespace belongs to.
func (n *Namespace) Scope() scope.ID { return n.scope }

// Parent returns the parent scope, if any.
func (n *Namespace) Parent() (scope.ID, bool) {
	if n.parent.IsZero() {
		return scope.ID{}, false
	}
	return n.parent, true
}

// Generation is the per-scope publish counter at build time.
func (n *Namespace) Generation() uint64 { return n.generation }

// BuiltAt is the construction time.
func (n *Namespace) BuiltAt() time.Time { return n.builtAt }

// Retired reports whether a newer snapshot has superseded this one.
func (n *Namespace) Retired() bool { return n.retired.Load() }

// Retire marks the namespace superseded. It returns true only for the call
// that performed the transition.
func (n *Namespace) Retire() bool {
	return n.retired.CompareAndSwap(false, true)
}

// Artifacts returns the artifacts in source order. Content is shared and
// must not be modified.
func (n *Namespace) Artifacts() []artifact.Artifact {
	return slices.Clone(n.artifacts)
}

// ETag summarises the artifact set this namespace was built from.
func (n *Namespace) ETag() string {
	return artifact.SetETag(n.artifacts)
}

// LookupModule returns a copy of module name's bytes and the artifact that
// supplied it. Only this scope's own artifacts are consulted.
func (n *Namespace) LookupModule(name string) (data []byte, from string, ok bool) {
	return lookup(n.modules, name)
}

// LookupResource returns a copy of resource name's bytes and the artifact
// that supplied it. Only this scope's own artifacts are consulted.
func (n *Namespace) LookupResource(name string) (data []byte, from string, ok bool) {
	return lookup(n.resources, name)
}

func lookup(index map[string]artifact.Entry, name string) ([]byte, string, bool) {
	e, ok := index[name]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(e.Data), e.Artifact, true
}

// Modules lists module names, sorted.
func (n *Namespace) Modules() []string { return sortedKeys(n.modules) }

// Resources lists resource names, sorted.
func (n *Namespace) Resources() []string { return sortedKeys(n.resources) }

func sortedKeys(m map[string]artifact.Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Clone returns a content-equal namespace with a new identity and the given
// generation. The clone is not retired even if n is.
func (n *Namespace) Clone(generation uint64) *Namespace {
	return &Namespace{
		id:         uuid.NewString(),
		scope:      n.scope,
		parent:     n.parent,
		artifacts:  n.artifacts,
		modules:    n.modules,
		resources:  n.resources,
		generation: generation,
		builtAt:    time.Now(),
	}
}
