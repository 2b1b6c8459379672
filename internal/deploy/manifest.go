package deploy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/scope"
)

// Manifest describes one deployment on disk:
//
//	scope: process/1
//	artifacts:
//	  - name: LocalResource1
//	    type: archive
//	    file: build/local-resource-1.zip
//	    version: "1.4.0"
type Manifest struct {
	Scope     string             `yaml:"scope"`
	Artifacts []ManifestArtifact `yaml:"artifacts"`

	dir string
}

// ManifestArtifact is one artifact entry. File is relative to the
// manifest's directory unless absolute.
type ManifestArtifact struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	File    string `yaml:"file"`
	Version string `yaml:"version,omitempty"`
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// ScopeID parses the manifest's scope.
func (m *Manifest) ScopeID() (scope.ID, error) {
	return scope.Parse(m.Scope)
}

// Load reads every artifact file, in manifest order.
func (m *Manifest) Load() ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, 0, len(m.Artifacts))
	for i, entry := range m.Artifacts {
		if entry.Name == "" {
			return nil, fmt.Errorf("artifact %d: name is required", i)
		}
		typ, err := artifact.ParseType(entry.Type)
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", entry.Name, err)
		}
		file := entry.File
		if file == "" {
			return nil, fmt.Errorf("artifact %q: file is required", entry.Name)
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(m.dir, file)
		}
		content, err := os.ReadFile(file) //nolint:gosec // G304: listed in the operator's manifest
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", entry.Name, err)
		}
		out = append(out, artifact.Artifact{
			Name:     entry.Name,
			FileName: filepath.Base(file),
			Type:     typ,
			Content:  content,
			Version:  entry.Version,
		})
	}
	return out, nil
}
