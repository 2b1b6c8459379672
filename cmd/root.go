package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/modreg/internal/app"
	"github.com/zjrosen/modreg/internal/config"
	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/presentation"
)

const localConfigPath = ".modreg/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	jsonFlag  bool
	cfg       config.Config
	cfgErr    error
)

var rootCmd = &cobra.Command{
	Use:   "modreg",
	Short: "Scoped module and resource registry",
	Long: `modreg keeps one namespace of modules and resources per scope and
resolves names through the scope hierarchy: a local scope (process/1,
tenant/acme, ...) first, then the global scope.

Artifacts are deployed into a SQLite database or served from a directory
tree (source.type: fs).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cfgErr != nil {
			return cfgErr
		}
		return initLogging(cmd)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .modreg/config.yaml, then ~/.config/modreg/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"log at debug level")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false,
		"print results as JSON")
	rootCmd.PersistentFlags().String("db", "", "artifact database path (overrides database.path)")

	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
}

func initConfig() {
	cfg, cfgErr = loadConfig(viper.GetViper(), cfgFile)
}

// loadConfig reads configuration into v. Lookup order when path is empty:
// .modreg/config.yaml, then ~/.config/modreg/config.yaml. A missing file is
// not an error; defaults apply. Environment variables prefixed MODREG_
// override file values (MODREG_REFRESH_MODE=immediate).
func loadConfig(v *viper.Viper, path string) (config.Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("modreg")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(localConfigPath); err == nil {
		v.SetConfigFile(localConfigPath)
	} else {
		if dir := config.DefaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config.Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var c config.Config
	if err := v.Unmarshal(&c); err != nil {
		return config.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("source.type", d.Source.Type)
	v.SetDefault("source.root", d.Source.Root)
	v.SetDefault("scopes.kinds", d.Scopes.Kinds)
	v.SetDefault("scopes.module_suffix", d.Scopes.ModuleSuffix)
	v.SetDefault("scopes.max_member_bytes", d.Scopes.MaxMemberBytes)
	v.SetDefault("refresh.mode", d.Refresh.Mode)
	v.SetDefault("refresh.watch_debounce", d.Refresh.WatchDebounce)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

var logCleanup func()

func initLogging(cmd *cobra.Command) error {
	level := log.ParseLevel(cfg.Log.Level)
	if debugFlag {
		level = log.LevelDebug
	}

	if cfg.Log.File == "" {
		log.InitWriter(cmd.ErrOrStderr(), level)
		return nil
	}

	cleanup, err := log.Init(cfg.Log.File)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(level)
	logCleanup = cleanup
	return nil
}

// openApp wires the registry stack and returns a close function that
// flushes traces and releases the database.
func openApp() (*app.App, func(), error) {
	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			log.ErrorErr(log.CatConfig, "Error during shutdown", err)
		}
	}, nil
}

func formatter(cmd *cobra.Command) *presentation.Formatter {
	return presentation.NewFormatter(cmd.OutOrStdout(), jsonFlag)
}

// configPath is where `config` subcommands write: the --config flag, the
// file viper loaded, or the project-local default.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.FromSlash(localConfigPath)
}

// Execute runs the root command
func Execute() error {
	defer func() {
		if logCleanup != nil {
			logCleanup()
		}
	}()
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
