package testutil

import (
	"context"
	"sync"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/scope"
)

// MemSource is an in-memory artifact.Source. Scopes with no artifacts set
// list as empty. Calls can be gated to hold a fetch open while a test
// arranges a race.
type MemSource struct {
	mu        sync.Mutex
	artifacts map[scope.ID][]artifact.Artifact
	failures  map[scope.ID]error
	gates     map[scope.ID]chan struct{}
	entered   map[scope.ID]chan struct{}
	calls     map[scope.ID]int
}

var _ artifact.Source = (*MemSource)(nil)

// NewMemSource creates an empty source.
func NewMemSource() *MemSource {
	return &MemSource{
		artifacts: make(map[scope.ID][]artifact.Artifact),
		failures:  make(map[scope.ID]error),
		gates:     make(map[scope.ID]chan struct{}),
		entered:   make(map[scope.ID]chan struct{}),
		calls:     make(map[scope.ID]int),
	}
}

// Set replaces the artifacts listed for id.
func (s *MemSource) Set(id scope.ID, artifacts ...artifact.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[id] = artifacts
}

// Fail makes every fetch of id return err until cleared with a nil err.
func (s *MemSource) Fail(id scope.ID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, id)
		return
	}
	s.failures[id] = err
}

// Gate blocks the next fetches of id until release is called. entered is
// closed once the first gated fetch has started.
func (s *MemSource) Gate(id scope.ID) (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	in := make(chan struct{})
	s.gates[id] = gate
	s.entered[id] = in
	var once sync.Once
	return in, func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[id] == gate {
				delete(s.gates, id)
				delete(s.entered, id)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls reports how many fetches of id have started.
func (s *MemSource) Calls(id scope.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

// ListArtifacts implements artifact.Source. The artifact list is read
// after any gate opens, so a test can change content while a fetch waits.
func (s *MemSource) ListArtifacts(ctx context.Context, id scope.ID) ([]artifact.Artifact, error) {
	s.mu.Lock()
	s.calls[id]++
	gate := s.gates[id]
	if in, ok := s.entered[id]; ok {
		delete(s.entered, id)
		close(in)
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[id]; err != nil {
		return nil, err
	}
	out := make([]artifact.Artifact, len(s.artifacts[id]))
	for i, a := range s.artifacts[id] {
		out[i] = a.Clone()
	}
	return out, nil
}
