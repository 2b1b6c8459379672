package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modreg/internal/presentation"
)

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// workspace writes a config pointing at a scratch database and returns
// its path.
func workspace(t *testing.T) (dir, configFile string) {
	t.Helper()
	dir = t.TempDir()
	configFile = filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, "database:\n  path: "+filepath.Join(dir, "modreg.db")+"\nlog:\n  level: error\n")
	return dir, configFile
}

func TestLoadConfig_File(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configFile, `
source:
  type: fs
  root: /srv/artifacts
scopes:
  kinds: [tenant]
refresh:
  mode: immediate
  watch_debounce: 2s
`)

	c, err := loadConfig(viper.New(), configFile)
	require.NoError(t, err)
	require.Equal(t, "fs", c.Source.Type)
	require.Equal(t, "/srv/artifacts", c.Source.Root)
	require.Equal(t, []string{"tenant"}, c.Scopes.Kinds)
	require.Equal(t, "immediate", c.Refresh.Mode)
	require.Equal(t, 2*time.Second, c.Refresh.WatchDebounce)
	require.Equal(t, ".mod", c.Scopes.ModuleSuffix, "unset keys keep their defaults")
	require.True(t, c.Cache.Enabled)
	require.NoError(t, c.Validate())
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configFile, "refresh:\n  mode: immediate\n")
	t.Setenv("MODREG_REFRESH_MODE", "deferred")

	c, err := loadConfig(viper.New(), configFile)
	require.NoError(t, err)
	require.Equal(t, "deferred", c.Refresh.Mode)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "reading config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configFile, "refresh: [\n")

	_, err := loadConfig(viper.New(), configFile)
	require.Error(t, err)
}

func TestDeployResolveUndeploy(t *testing.T) {
	dir, configFile := workspace(t)
	writeFile(t, filepath.Join(dir, "global", "Shared.mod"), "global shared")
	writeFile(t, filepath.Join(dir, "global", "banner.txt"), "hello")
	writeFile(t, filepath.Join(dir, "global.yaml"), `
scope: global
artifacts:
  - name: Shared
    type: module
    file: global/Shared.mod
  - name: banner.txt
    type: resource
    file: global/banner.txt
`)
	writeFile(t, filepath.Join(dir, "p1", "LocalClass1.mod"), "local class")
	writeFile(t, filepath.Join(dir, "process-1.yaml"), `
scope: process/1
artifacts:
  - name: LocalClass1
    type: module
    file: p1/LocalClass1.mod
`)

	out, err := run(t, "--config", configFile, "--json", "deploy", "-f", filepath.Join(dir, "global.yaml"))
	require.NoError(t, err)
	var res presentation.DeployResultDTO
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, "global", res.Scope)
	require.True(t, res.Changed)
	require.Equal(t, "rollback", res.Mode)

	_, err = run(t, "--config", configFile, "deploy", "-f", filepath.Join(dir, "process-1.yaml"))
	require.NoError(t, err)

	out, err = run(t, "--config", configFile, "--json", "deploy", "-f", filepath.Join(dir, "process-1.yaml"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.False(t, res.Changed, "redeploying the same mapping changes nothing")

	out, err = run(t, "--config", configFile, "resolve", "process/1", "LocalClass1", "--content")
	require.NoError(t, err)
	require.Equal(t, "local class", out)

	out, err = run(t, "--config", configFile, "--json", "resolve", "process/1", "Shared")
	require.NoError(t, err)
	var resolution presentation.ResolutionDTO
	require.NoError(t, json.Unmarshal([]byte(out), &resolution))
	require.True(t, resolution.Found)
	require.Equal(t, "global", resolution.Owner)
	require.Equal(t, "Shared", resolution.Artifact)

	out, err = run(t, "--config", configFile, "resolve", "process/1", "banner.txt", "--resource", "--content")
	require.NoError(t, err)
	require.Equal(t, "hello", out)

	_, err = run(t, "--config", configFile, "resolve", "process/1", "Missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "module Missing not found in process/1")

	out, err = run(t, "--config", configFile, "--json", "scopes")
	require.NoError(t, err)
	var deployments []presentation.DeploymentDTO
	require.NoError(t, json.Unmarshal([]byte(out), &deployments))
	require.Len(t, deployments, 2)

	_, err = run(t, "--config", configFile, "undeploy", "process/1")
	require.NoError(t, err)

	_, err = run(t, "--config", configFile, "resolve", "process/1", "LocalClass1")
	require.Error(t, err)
}

func TestResolve_UnknownKind(t *testing.T) {
	_, configFile := workspace(t)

	_, err := run(t, "--config", configFile, "resolve", "galaxy/9", "Shared")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown kind")
}

func TestInspect(t *testing.T) {
	dir, configFile := workspace(t)
	writeFile(t, filepath.Join(dir, "a.mod"), "a")
	writeFile(t, filepath.Join(dir, "tenant.yaml"), "scope: tenant/a\nartifacts:\n  - {name: A, type: module, file: a.mod}\n")

	_, err := run(t, "--config", configFile, "deploy", "-f", filepath.Join(dir, "tenant.yaml"))
	require.NoError(t, err)

	out, err := run(t, "--config", configFile, "--json", "inspect", "tenant/a")
	require.NoError(t, err)
	var ns presentation.NamespaceDTO
	require.NoError(t, json.Unmarshal([]byte(out), &ns))
	require.Equal(t, "tenant/a", ns.Scope)
	require.Equal(t, "global", ns.Parent)
	require.Equal(t, []string{"A"}, ns.Modules)
}

func TestScopes_FileSystemSource(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "artifacts")
	writeFile(t, filepath.Join(root, "global", "Shared.mod"), "g")
	writeFile(t, filepath.Join(root, "tenant", "a", "TenantClass.mod"), "t")
	configFile := filepath.Join(dir, "config.yaml")
	writeFile(t, configFile, "source:\n  type: fs\n  root: "+root+"\nlog:\n  level: error\n")

	out, err := run(t, "--config", configFile, "--json", "scopes")
	require.NoError(t, err)
	var namespaces []presentation.NamespaceDTO
	require.NoError(t, json.Unmarshal([]byte(out), &namespaces))
	require.Len(t, namespaces, 2)

	_, err = run(t, "--config", configFile, "deploy", "-f", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestConfigInitAndSet(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "modreg", "config.yaml")

	_, err := run(t, "--config", configFile, "config", "init")
	require.NoError(t, err)

	_, err = run(t, "--config", configFile, "config", "init")
	require.Error(t, err, "init must not overwrite without --force")

	_, err = run(t, "--config", configFile, "config", "set", "refresh.mode", "deferred")
	require.NoError(t, err)
	_, err = run(t, "--config", configFile, "config", "kinds", "tenant", "build")
	require.NoError(t, err)

	c, err := loadConfig(viper.New(), configFile)
	require.NoError(t, err)
	require.Equal(t, "deferred", c.Refresh.Mode)
	require.Equal(t, []string{"tenant", "build"}, c.Scopes.Kinds)

	data, err := os.ReadFile(configFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "# modreg configuration")
}
