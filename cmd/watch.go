package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modreg/internal/app"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/presentation"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh namespaces as the artifact directory changes",
	Long: `Watch the artifact root (source.type: fs) and refresh a scope's namespace
whenever files under its directory change. Deleting a scope directory
evicts the scope. Registry events are printed as they happen.

Example:
  modreg watch --config fs.yaml`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, closeApp, err := openApp()
	if err != nil {
		return err
	}
	defer closeApp()

	if a.FS == nil {
		return errors.New("watch requires source.type \"fs\"")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	events := a.Registry.Subscribe(ctx)

	watchCfg := watcher.DefaultConfig(a.FS.Root(), a.FS.ScopeOf)
	if a.Config.Refresh.WatchDebounce > 0 {
		watchCfg.DebounceDur = a.Config.Refresh.WatchDebounce
	}
	w, err := watcher.New(watchCfg)
	if err != nil {
		return err
	}
	changes, err := w.Start()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	ids, err := a.FS.Scopes()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := a.Registry.Get(ctx, id); err != nil {
			log.ErrorErr(log.CatWatcher, "initial build failed", err, "scope", id)
		}
	}

	f := formatter(cmd)
	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (%d scopes). Press Ctrl+C to stop\n", a.FS.Root(), len(ids))

	for {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nReceived %s, shutting down...\n", sig)
			return nil
		case <-ctx.Done():
			return nil
		case batch := <-changes:
			for _, id := range batch {
				applyChange(ctx, a, id)
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := f.Event(presentation.FromEvent(ev)); err != nil {
				return err
			}
		}
	}
}

// applyChange refreshes id, or evicts it when its directory is gone.
func applyChange(ctx context.Context, a *app.App, id scope.ID) {
	if _, err := os.Stat(a.FS.Dir(id)); os.IsNotExist(err) {
		if err := a.Registry.Remove(id); err != nil {
			log.ErrorErr(log.CatWatcher, "evict failed", err, "scope", id)
		}
		return
	}
	if _, err := a.Coordinator.RefreshImmediate(ctx, id); err != nil {
		log.ErrorErr(log.CatWatcher, "refresh failed; keeping previous namespace", err, "scope", id)
	}
}
