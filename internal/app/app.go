// Package app assembles the registry stack described by a config.Config:
// artifact source, scope registry, refresh coordinator, resolver and,
// for the SQLite source, the deployer.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/cachemanager"
	"github.com/zjrosen/modreg/internal/config"
	"github.com/zjrosen/modreg/internal/deploy"
	"github.com/zjrosen/modreg/internal/infrastructure/sqlite"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/namespace"
	"github.com/zjrosen/modreg/internal/refresh"
	"github.com/zjrosen/modreg/internal/registry"
	"github.com/zjrosen/modreg/internal/resolver"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/source/fsource"
	"github.com/zjrosen/modreg/internal/tracing"
)

// ErrNoDatabase is returned by operations that need the SQLite source.
var ErrNoDatabase = errors.New("operation requires source.type \"sqlite\"")

// App holds the wired services. Fields for the source that is not
// configured are nil.
type App struct {
	Config      config.Config
	Kinds       *scope.Kinds
	Mode        refresh.Mode
	Registry    *registry.Registry
	Coordinator *refresh.Coordinator
	Resolver    *resolver.Resolver
	Tracing     *tracing.Provider

	// SQLite source.
	DB       *sqlite.DB
	Deployer *deploy.Deployer

	// Directory source.
	FS *fsource.Source
}

// New wires every service from cfg. The caller must Close the App.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mode := refresh.ModeRollback
	if cfg.Refresh.Mode != "" {
		m, err := refresh.ParseMode(cfg.Refresh.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	a := &App{
		Config:  cfg,
		Kinds:   cfg.Scopes.KindSet(),
		Mode:    mode,
		Tracing: provider,
	}

	var source artifact.Source
	switch cfg.Source.Type {
	case "fs":
		a.FS = fsource.New(cfg.Source.Root,
			fsource.WithKinds(a.Kinds),
			fsource.WithModuleSuffix(cfg.Scopes.ModuleSuffix),
		)
		source = a.FS
	default:
		var storeOpts []sqlite.StoreOption
		if cfg.Cache.Enabled {
			blobs := cachemanager.NewInMemoryCacheManager[string, []byte](
				"artifact-blobs", cfg.Cache.TTL, cfg.Cache.CleanupInterval)
			storeOpts = append(storeOpts, sqlite.WithBlobCache(blobs, cfg.Cache.TTL))
		}
		db, err := sqlite.NewDB(cfg.Database.Path, storeOpts...)
		if err != nil {
			_ = provider.Shutdown(context.Background())
			return nil, err
		}
		a.DB = db
		source = db.ArtifactStore()
	}

	a.Registry = registry.New(source,
		registry.WithKinds(a.Kinds),
		registry.WithBuilder(namespace.NewBuilder(
			namespace.WithModuleSuffix(cfg.Scopes.ModuleSuffix),
			namespace.WithMaxMemberSize(cfg.Scopes.MaxMemberBytes),
		)),
		registry.WithTracer(provider.Tracer()),
	)
	a.Coordinator = refresh.NewCoordinator(a.Registry)
	a.Resolver = resolver.New(a.Registry, resolver.WithTracer(provider.Tracer()))

	if a.DB != nil {
		a.Deployer = deploy.New(a.DB.Connection(), a.DB.ArtifactStore(), a.Coordinator,
			deploy.WithMode(mode),
			deploy.WithKinds(a.Kinds),
			deploy.WithTracer(provider.Tracer()),
		)
	}

	log.Info(log.CatConfig, "registry ready",
		"source", sourceName(cfg), "mode", mode, "kinds", a.Kinds.List(), "tracing", provider.Enabled())
	return a, nil
}

// ParseScope parses s and checks it against the configured kinds.
func (a *App) ParseScope(s string) (scope.ID, error) {
	id, err := scope.Parse(s)
	if err != nil {
		return scope.ID{}, err
	}
	if err := a.Kinds.Validate(id); err != nil {
		return scope.ID{}, err
	}
	return id, nil
}

// Deployments lists stored deployments.
func (a *App) Deployments(ctx context.Context) ([]sqlite.Deployment, error) {
	if a.DB == nil {
		return nil, ErrNoDatabase
	}
	return a.DB.ArtifactStore().Deployments(ctx)
}

// Close stops the registry, closes the database and flushes traces.
func (a *App) Close(ctx context.Context) error {
	a.Registry.Stop()

	var errs []error
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if err := a.Tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flushing traces: %w", err))
	}
	return errors.Join(errs...)
}

func sourceName(cfg config.Config) string {
	if cfg.Source.Type == "fs" {
		return "fs:" + cfg.Source.Root
	}
	return "sqlite:" + cfg.Database.Path
}
