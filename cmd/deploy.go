package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/modreg/internal/app"
	"github.com/zjrosen/modreg/internal/deploy"
	"github.com/zjrosen/modreg/internal/presentation"
)

var deployManifest string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the artifacts listed in a manifest",
	Long: `Replace a scope's artifact mapping with the artifacts listed in a manifest
and refresh the scope's namespace using the configured refresh mode.

A manifest names the scope and its artifacts in declaration order:

  scope: process/1
  artifacts:
    - name: LocalResource1
      type: archive
      file: build/local-resource-1.zip
    - name: banner.txt
      type: resource
      file: banner.txt

Deploying an identical mapping again changes nothing and does not refresh.

Examples:
  modreg deploy -f process-1.yaml
  modreg deploy -f process-1.yaml --json`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployManifest, "manifest", "f", "", "deployment manifest (required)")
	_ = deployCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	manifest, err := deploy.LoadManifest(deployManifest)
	if err != nil {
		return err
	}
	artifacts, err := manifest.Load()
	if err != nil {
		return fmt.Errorf("loading manifest artifacts: %w", err)
	}

	a, closeApp, err := openApp()
	if err != nil {
		return err
	}
	defer closeApp()

	if a.Deployer == nil {
		return app.ErrNoDatabase
	}
	id, err := a.ParseScope(manifest.Scope)
	if err != nil {
		return err
	}

	res, err := a.Deployer.Deploy(cmd.Context(), id, artifacts)
	if err != nil {
		return err
	}
	return formatter(cmd).DeployResult(presentation.FromDeployResult(res, string(a.Deployer.Mode())))
}
