package artifact

import (
	"context"
	"fmt"

	"github.com/zjrosen/modreg/internal/scope"
)

// Source supplies the ordered artifacts currently mapped to a scope.
// Implementations must reflect committed state (or the state visible to the
// transaction bound to ctx) at call time.
type Source interface {
	ListArtifacts(ctx context.Context, id scope.ID) ([]Artifact, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, id scope.ID) ([]Artifact, error)

// ListArtifacts calls f(ctx, id).
func (f SourceFunc) ListArtifacts(ctx context.Context, id scope.ID) ([]Artifact, error) {
	return f(ctx, id)
}

var _ Source = SourceFunc(nil)

// SourceError wraps a failure reported by a Source during a namespace build.
type SourceError struct {
	Scope scope.ID
	Err   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("artifact source failed for scope %s: %v", e.Scope, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
