package namespace

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/scope"
)

// ErrInvalidArtifact is returned when an artifact cannot be indexed.
var ErrInvalidArtifact = errors.New("namespace: invalid artifact")

// Builder turns an artifact list into a Namespace.
type Builder struct {
	moduleSuffix  string
	maxMemberSize int64
}

// Option configures a Builder.
type Option func(*Builder)

// WithModuleSuffix sets the suffix that marks archive members as modules.
func WithModuleSuffix(suffix string) Option {
	return func(b *Builder) {
		if suffix != "" {
			b.moduleSuffix = suffix
		}
	}
}

// WithMaxMemberSize caps the uncompressed size of each archive member.
func WithMaxMemberSize(n int64) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxMemberSize = n
		}
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		moduleSuffix:  artifact.DefaultModuleSuffix,
		maxMemberSize: artifact.DefaultMaxMemberSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build indexes artifacts into a new Namespace for id. parent is the zero
// ID for the Global scope. When two artifacts provide the same name the one
// declared last wins. Every call returns a fresh identity.
func (b *Builder) Build(id scope.ID, parent scope.ID, artifacts []artifact.Artifact, generation uint64) (*Namespace, error) {
	owned := make([]artifact.Artifact, len(artifacts))
	modules := make(map[string]artifact.Entry)
	resources := make(map[string]artifact.Entry)

	for i, a := range artifacts {
		if a.Name == "" {
			return nil, fmt.Errorf("%w: artifact #%d in scope %s has no name", ErrInvalidArtifact, i, id)
		}
		owned[i] = a.Clone()

		entries, err := artifact.Entries(owned[i], b.moduleSuffix, b.maxMemberSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		for _, e := range entries {
			index := resources
			if e.Kind == artifact.EntryModule {
				index = modules
			}
			if prev, ok := index[e.Name]; ok && !bytes.Equal(prev.Data, e.Data) {
				log.Debug(log.CatBuild, "name shadowed by later artifact",
					"scope", id, "name", e.Name, "kind", e.Kind, "was", prev.Artifact, "now", e.Artifact)
			}
			index[e.Name] = e
		}
	}

	ns := &Namespace{
		id:         uuid.NewString(),
		scope:      id,
		parent:     parent,
		artifacts:  owned,
		modules:    modules,
		resources:  resources,
		generation: generation,
		builtAt:    time.Now(),
	}
	log.Debug(log.CatBuild, "namespace built",
		"scope", id, "namespace", ns.id, "generation", generation,
		"artifacts", len(owned), "modules", len(modules), "resources", len(resources))
	return ns, nil
}
