package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/modreg/internal/presentation"
)

var (
	resolveResource bool
	resolveContent  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <scope> <name>",
	Short: "Resolve a module or resource for a scope",
	Long: `Look a name up in the scope's namespace, falling back to the global scope.
Exits with an error when the name is not found.

Examples:
  modreg resolve process/1 LocalClass1
  modreg resolve process/1 banner.txt --resource --content > banner.txt
  modreg resolve tenant/acme Shared --json`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVarP(&resolveResource, "resource", "r", false, "resolve a resource instead of a module")
	resolveCmd.Flags().BoolVar(&resolveContent, "content", false, "write the resolved bytes to stdout")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, closeApp, err := openApp()
	if err != nil {
		return err
	}
	defer closeApp()

	id, err := a.ParseScope(args[0])
	if err != nil {
		return err
	}
	name := args[1]

	var (
		dto  presentation.ResolutionDTO
		data []byte
	)
	if resolveResource {
		content, found, err := a.Resolver.ResolveResource(cmd.Context(), id, name)
		if err != nil {
			return err
		}
		dto, data = presentation.FromResourceResolution(id, name, content, found), content
	} else {
		res, found, err := a.Resolver.ResolveModule(cmd.Context(), id, name)
		if err != nil {
			return err
		}
		dto, data = presentation.FromModuleResolution(id, name, res, found), res.Data
	}

	if !dto.Found {
		_ = formatter(cmd).Resolution(dto)
		return errNotFound{kind: dto.Kind, name: name, scope: dto.Scope}
	}
	if resolveContent {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return formatter(cmd).Resolution(dto)
}

type errNotFound struct {
	kind, name, scope string
}

func (e errNotFound) Error() string {
	return e.kind + " " + e.name + " not found in " + e.scope
}
