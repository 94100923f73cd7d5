package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paccerr"
)

func init() {
	rootCmd.AddCommand(removeCmd)
}

var removeCmd = &cobra.Command{
	Use:   "remove <type> <name>",
	Short: "Remove an installed extension",
	Long: `Remove an extension's record and stored artifact from the
selected scope.

Examples:
  pacc remove hook fmt-check
  pacc remove agent reviewer --scope user`,
	Args: cobra.ExactArgs(2),
	RunE: runRemove,
}

func runRemove(c *cobra.Command, args []string) error {
	kind, ok := extension.ParseKind(args[0])
	if !ok {
		return paccerr.Validation("invalid_value", "unknown extension type %q", args[0])
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	existed, err := client.Remove(scopeKind(), kind, args[1])
	if err != nil {
		return err
	}
	if !existed {
		return paccerr.Filesystem("not_found", "%s %q is not installed in the %s scope", kind, args[1], scopeFlag)
	}
	fmt.Fprintf(c.OutOrStdout(), "%s %s\n", color.GreenString("removed"), args[1])
	return nil
}
