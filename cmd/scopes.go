package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/modreg/internal/presentation"
)

var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "List scopes that have artifacts",
	Long: `List the scopes with stored deployments (SQLite source) or with a
directory under the artifact root (fs source).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, closeApp, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp()

		if a.FS == nil {
			deployments, err := a.Deployments(cmd.Context())
			if err != nil {
				return err
			}
			return formatter(cmd).Deployments(presentation.FromDeployments(deployments))
		}

		ids, err := a.FS.Scopes()
		if err != nil {
			return err
		}
		dtos := make([]presentation.NamespaceDTO, 0, len(ids))
		for _, id := range ids {
			ns, err := a.Registry.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			dtos = append(dtos, presentation.FromNamespace(ns))
		}
		f := formatter(cmd)
		if jsonFlag {
			return f.JSON(dtos)
		}
		for _, dto := range dtos {
			if err := f.Namespace(dto); err != nil {
				return err
			}
		}
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <scope>",
	Short: "Build and show a scope's namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp()

		id, err := a.ParseScope(args[0])
		if err != nil {
			return err
		}
		ns, err := a.Registry.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return formatter(cmd).Namespace(presentation.FromNamespace(ns))
	},
}

func init() {
	rootCmd.AddCommand(scopesCmd)
	rootCmd.AddCommand(inspectCmd)
}
