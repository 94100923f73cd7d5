package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/fragment"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/source"
)

var (
	fragForce  bool
	fragDryRun bool
	fragAll    bool
)

func init() {
	fragInstallCmd.Flags().BoolVarP(&fragForce, "force", "f", false,
		"overwrite an existing fragment")
	fragInstallCmd.Flags().BoolVar(&fragDryRun, "dry-run", false,
		"report what would be installed without changing anything")
	fragInstallCmd.Flags().BoolVar(&fragAll, "all", false,
		"install every fragment of a collection without prompting")
	fragmentCmd.AddCommand(fragInstallCmd)
	fragmentCmd.AddCommand(fragRemoveCmd)
	rootCmd.AddCommand(fragmentCmd)
}

var fragmentCmd = &cobra.Command{
	Use:   "fragment",
	Short: "Manage memory fragments",
	Long: `Memory fragments are markdown files stored under the scope's
fragment directory and referenced from the managed block in CLAUDE.md.`,
	Run: func(c *cobra.Command, _ []string) {
		_ = c.Help()
	},
}

var fragInstallCmd = &cobra.Command{
	Use:   "install <source>",
	Short: "Install a fragment or fragment collection",
	Long: `Install a memory fragment. A directory source is treated as a
collection: interactively a picker selects fragments, otherwise --all
installs every one.

Examples:
  pacc fragment install ./conventions.md
  pacc fragment install ./team-fragments --all`,
	Args: cobra.ExactArgs(1),
	RunE: runFragmentInstall,
}

func runFragmentInstall(c *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	result, err := client.InstallFragment(c.Context(), args[0], scopeKind(), fragment.Options{
		Force:       fragForce,
		DryRun:      fragDryRun,
		Interactive: interactive,
		InstallAll:  fragAll,
		Source:      source.Options{Timeout: sourceTimeout()},
	})
	if err != nil {
		return err
	}
	reportFragments(os.Stdout, result)
	if !result.Success {
		return result.Err
	}
	return nil
}

func reportFragments(w io.Writer, result *fragment.Result) {
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("warning:"), warning)
	}
	verb := "installed"
	if result.DryRun {
		verb = "would install"
	}
	for _, inst := range result.Installed {
		fmt.Fprintf(w, "%s %s (%s)\n", color.GreenString(verb), inst.Name, inst.ReferenceLine)
	}
}

var fragRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an installed fragment",
	Args:  cobra.ExactArgs(1),
	RunE:  runFragmentRemove,
}

func runFragmentRemove(c *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	existed, err := client.RemoveFragment(scopeKind(), args[0])
	if err != nil {
		return err
	}
	if !existed {
		return paccerr.Filesystem("not_found", "fragment %q is not installed in the %s scope", args[0], scopeFlag)
	}
	fmt.Fprintf(c.OutOrStdout(), "%s %s\n", color.GreenString("removed"), args[0])
	return nil
}
