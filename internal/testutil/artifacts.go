// Package testutil provides fixtures shared by package tests: artifact
// constructors, an in-memory artifact source and a scratch SQLite database.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modreg/internal/artifact"
)

// ArtifactOption configures an artifact built by Module, Resource or Archive.
type ArtifactOption func(*artifact.Artifact)

// Version sets an explicit version, which becomes the artifact's ETag.
func Version(v string) ArtifactOption {
	return func(a *artifact.Artifact) { a.Version = v }
}

// FileName overrides the default file name.
func FileName(name string) ArtifactOption {
	return func(a *artifact.Artifact) { a.FileName = name }
}

func apply(a artifact.Artifact, opts []ArtifactOption) artifact.Artifact {
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Module creates a single-module artifact.
func Module(name, body string, opts ...ArtifactOption) artifact.Artifact {
	return apply(artifact.Artifact{
		Name:     name,
		FileName: name + artifact.DefaultModuleSuffix,
		Type:     artifact.TypeModule,
		Content:  []byte(body),
	}, opts)
}

// Resource creates a single-resource artifact.
func Resource(name, body string, opts ...ArtifactOption) artifact.Artifact {
	return apply(artifact.Artifact{
		Name:     name,
		FileName: name,
		Type:     artifact.TypeResource,
		Content:  []byte(body),
	}, opts)
}

// Archive creates a zip artifact holding files, written in the order of
// names.
func Archive(t testing.TB, name string, names []string, files map[string]string, opts ...ArtifactOption) artifact.Artifact {
	t.Helper()
	raw := make(map[string][]byte, len(files))
	for k, v := range files {
		raw[k] = []byte(v)
	}
	content, err := artifact.BuildArchive(names, raw)
	require.NoError(t, err)
	return apply(artifact.Artifact{
		Name:     name,
		FileName: name + ".zip",
		Type:     artifact.TypeArchive,
		Content:  content,
	}, opts)
}
