package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/scope"
)

// Source is a mock of artifact.Source.
type Source struct {
	mock.Mock
}

// NewSource creates a mock that asserts its expectations on cleanup.
func NewSource(t interface {
	mock.TestingT
	Cleanup(func())
}) *Source {
	m := &Source{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ artifact.Source = (*Source)(nil)

func (m *Source) ListArtifacts(ctx context.Context, id scope.ID) ([]artifact.Artifact, error) {
	args := m.Called(ctx, id)
	var out []artifact.Artifact
	if v := args.Get(0); v != nil {
		out = v.([]artifact.Artifact)
	}
	return out, args.Error(1)
}
