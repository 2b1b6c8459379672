package deploy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "build", "calc.mod"), "calc")
	writeFile(t, filepath.Join(dir, "banner.txt"), "hello")
	writeFile(t, filepath.Join(dir, "deploy.yaml"), `
scope: process/1
artifacts:
  - name: Calc
    type: module
    file: build/calc.mod
    version: "2"
  - name: banner.txt
    type: resource
    file: banner.txt
`)

	m, err := LoadManifest(filepath.Join(dir, "deploy.yaml"))
	require.NoError(t, err)
	id, err := m.ScopeID()
	require.NoError(t, err)
	require.Equal(t, testutil.Process1, id)

	arts, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, []artifact.Artifact{
		{Name: "Calc", FileName: "calc.mod", Type: artifact.TypeModule, Content: []byte("calc"), Version: "2"},
		{Name: "banner.txt", FileName: "banner.txt", Type: artifact.TypeResource, Content: []byte("hello")},
	}, arts)
}

func TestManifest_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"missing name": "scope: global\nartifacts:\n  - type: module\n    file: x\n",
		"bad type":     "scope: global\nartifacts:\n  - name: X\n    type: plugin\n    file: x\n",
		"missing file": "scope: global\nartifacts:\n  - name: X\n    type: module\n",
		"unreadable":   "scope: global\nartifacts:\n  - name: X\n    type: module\n    file: nope.mod\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			writeFile(t, path, body)
			m, err := LoadManifest(path)
			require.NoError(t, err)
			_, err = m.Load()
			require.Error(t, err)
		})
	}
}

func TestLoadManifest_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "scope: [unclosed")
	_, err := LoadManifest(path)
	require.Error(t, err)
}
