// Package fsource serves artifacts from a directory tree:
//
//	<root>/global/<files>
//	<root>/<kind>/<instance>/<files>
//
// Files are listed in name order. Files ending in ".zip" are archives,
// files ending in the module suffix are modules (named without the suffix)
// and everything else is a resource. Hidden files and subdirectories of a
// scope directory are ignored.
package fsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/scope"
)

// ArchiveSuffix marks archive files.
const ArchiveSuffix = ".zip"

// Source is a directory-backed artifact.Source.
type Source struct {
	root         string
	kinds        *scope.Kinds
	moduleSuffix string
}

var _ artifact.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithKinds sets the scope kinds recognised under root.
func WithKinds(kinds *scope.Kinds) Option {
	return func(s *Source) { s.kinds = kinds }
}

// WithModuleSuffix sets the file suffix that marks modules.
func WithModuleSuffix(suffix string) Option {
	return func(s *Source) {
		if suffix != "" {
			s.moduleSuffix = suffix
		}
	}
}

// New creates a source rooted at root.
func New(root string, opts ...Option) *Source {
	s := &Source{
		root:         filepath.Clean(root),
		kinds:        scope.DefaultKindSet(),
		moduleSuffix: artifact.DefaultModuleSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the root directory.
func (s *Source) Root() string { return s.root }

// Dir returns the directory holding id's artifacts.
func (s *Source) Dir(id scope.ID) string {
	if id.IsGlobal() {
		return filepath.Join(s.root, string(scope.KindGlobal))
	}
	return filepath.Join(s.root, string(id.Kind), id.Instance)
}

// ScopeOf maps a path under root to the scope whose artifacts it affects.
// Paths that name a kind directory, or that sit outside any scope, report
// false.
func (s *Source) ScopeOf(path string) (scope.ID, bool) {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return scope.ID{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if parts[0] == string(scope.KindGlobal) {
		return scope.Global, true
	}
	if len(parts) < 2 {
		return scope.ID{}, false
	}
	id := scope.New(scope.Kind(parts[0]), parts[1])
	if s.kinds.Validate(id) != nil {
		return scope.ID{}, false
	}
	return id, true
}

// Scopes lists every scope that has a directory under root.
func (s *Source) Scopes() ([]scope.ID, error) {
	var out []scope.ID
	if info, err := os.Stat(s.Dir(scope.Global)); err == nil && info.IsDir() {
		out = append(out, scope.Global)
	}
	for _, kind := range s.kinds.List() {
		if kind == scope.KindGlobal {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, string(kind)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", kind, err)
		}
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				out = append(out, scope.New(kind, e.Name()))
			}
		}
	}
	return out, nil
}

// ListArtifacts implements artifact.Source. A scope without a directory
// has no artifacts.
func (s *Source) ListArtifacts(ctx context.Context, id scope.ID) ([]artifact.Artifact, error) {
	dir := s.Dir(id)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var out []artifact.Artifact
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // G304: confined to the source root
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		out = append(out, s.classify(name, content))
	}
	log.Debug(log.CatSource, "listed directory artifacts", "scope", id, "dir", dir, "count", len(out))
	return out, nil
}

func (s *Source) classify(file string, content []byte) artifact.Artifact {
	a := artifact.Artifact{Name: file, FileName: file, Type: artifact.TypeResource, Content: content}
	switch {
	case strings.HasSuffix(file, ArchiveSuffix):
		a.Type = artifact.TypeArchive
		a.Name = strings.TrimSuffix(file, ArchiveSuffix)
	case strings.HasSuffix(file, s.moduleSuffix):
		a.Type = artifact.TypeModule
		a.Name = strings.TrimSuffix(file, s.moduleSuffix)
	}
	return a
}
