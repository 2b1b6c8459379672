package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modreg/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	// A --config path that does not exist yet is what init and set create.
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cfgErr != nil && !errors.Is(cfgErr, fs.ErrNotExist) {
			return cfgErr
		}
		return initLogging(cmd)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default configuration",
	Long: `Write the default configuration to path (default: .modreg/config.yaml or
the --config path). Refuses to overwrite an existing file unless --force.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration value",
	Long: `Set a dotted key in the configuration file, keeping its comments.

Examples:
  modreg config set refresh.mode immediate
  modreg config set source.root /srv/artifacts`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if err := config.SaveSetting(path, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
		return nil
	},
}

var configKindsCmd = &cobra.Command{
	Use:   "kinds <kind>...",
	Short: "Replace the list of local scope kinds",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if err := config.SaveKinds(path, args); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set scopes.kinds in %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfgErr != nil {
			return cfgErr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return formatter(cmd).JSON(cfg)
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configSetCmd, configKindsCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
