package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/source/fsource"
	"github.com/zjrosen/modreg/internal/watcher"
)

func start(t *testing.T, root string) <-chan []scope.ID {
	t.Helper()
	src := fsource.New(root)
	w, err := watcher.New(watcher.Config{
		Root:        root,
		Mapper:      src.ScopeOf,
		DebounceDur: 50 * time.Millisecond,
	})
	require.NoError(t, err, "failed to create watcher")
	t.Cleanup(func() { _ = w.Stop() })

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")
	return onChange
}

func mkdir(t *testing.T, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(d, 0o750))
	}
}

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "process", "1")
	mkdir(t, dir)
	onChange := start(t, root)

	// Rapid writes should coalesce into single notification
	for i := 0; i < 10; i++ {
		err := os.WriteFile(filepath.Join(dir, "Calc.mod"), []byte(fmt.Sprintf("v%d", i)), 0o600)
		require.NoError(t, err, "failed to write file")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case got := <-onChange:
		require.Equal(t, []scope.ID{scope.New("process", "1")}, got)
	case <-time.After(time.Second):
		t.Fatal("expected notification but got timeout")
	}

	select {
	case got := <-onChange:
		t.Fatalf("unexpected second notification: %v", got)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_BatchesScopes(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "global"), filepath.Join(root, "tenant", "a"))
	onChange := start(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "tenant", "a", "x.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "global", "g.mod"), []byte("g"), 0o600))

	select {
	case got := <-onChange:
		require.Equal(t, []scope.ID{scope.Global, scope.New("tenant", "a")}, got)
	case <-time.After(time.Second):
		t.Fatal("expected notification but got timeout")
	}
}

func TestWatcher_PicksUpNewScopeDirectories(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "process"))
	onChange := start(t, root)

	dir := filepath.Join(root, "process", "7")
	mkdir(t, dir)
	// Drain the notification for the directory creation itself.
	select {
	case <-onChange:
	case <-time.After(time.Second):
		t.Fatal("expected notification for new directory")
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "A.mod"), []byte("a"), 0o600))
	select {
	case got := <-onChange:
		require.Equal(t, []scope.ID{scope.New("process", "7")}, got)
	case <-time.After(time.Second):
		t.Fatal("expected notification for write in new directory")
	}
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "process", "1")
	mkdir(t, dir, filepath.Join(root, "cluster", "x"))
	onChange := start(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swp"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Calc.mod~"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cluster", "x", "a.mod"), []byte("x"), 0o600))

	select {
	case got := <-onChange:
		t.Fatalf("unexpected notification: %v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_Stop(t *testing.T) {
	root := t.TempDir()
	w, err := watcher.New(watcher.DefaultConfig(root, fsource.New(root).ScopeOf))
	require.NoError(t, err)
	_, err = w.Start()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	root := t.TempDir()
	w, err := watcher.New(watcher.DefaultConfig(root, fsource.New(root).ScopeOf))
	require.NoError(t, err)
	_, err = w.Start()
	require.NoError(t, err)

	first := w.Stop()
	require.NotPanics(t, func() {
		require.Equal(t, first, w.Stop())
	})
}

func TestNew_RequiresMapper(t *testing.T) {
	_, err := watcher.New(watcher.Config{Root: t.TempDir()})
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := watcher.DefaultConfig("/tmp/artifacts", nil)
	require.Equal(t, "/tmp/artifacts", cfg.Root)
	require.Equal(t, 500*time.Millisecond, cfg.DebounceDur)
}
