package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/modreg/internal/app"
	"github.com/zjrosen/modreg/internal/presentation"
)

var undeployCmd = &cobra.Command{
	Use:   "undeploy <scope>",
	Short: "Remove a scope's artifacts",
	Long: `Delete a scope's stored artifact mapping and refresh its namespace, which
leaves the scope empty so every lookup falls through to the global scope.

Example:
  modreg undeploy tenant/acme`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := openApp()
		if err != nil {
			return err
		}
		defer closeApp()

		if a.Deployer == nil {
			return app.ErrNoDatabase
		}
		id, err := a.ParseScope(args[0])
		if err != nil {
			return err
		}

		res, err := a.Deployer.Undeploy(cmd.Context(), id)
		if err != nil {
			return err
		}
		return formatter(cmd).DeployResult(presentation.FromDeployResult(res, string(a.Deployer.Mode())))
	},
}

func init() {
	rootCmd.AddCommand(undeployCmd)
}
