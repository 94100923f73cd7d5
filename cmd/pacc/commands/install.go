package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/installer"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/source"
)

var (
	installType    string
	installForce   bool
	installDryRun  bool
	installMaxSize int64
)

func init() {
	installCmd.Flags().StringVarP(&installType, "type", "t", "",
		"extension type: hook, mcp, agent, command (default: auto-detect)")
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false,
		"overwrite an existing extension and skip validation failures")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false,
		"report what would be installed without changing anything")
	installCmd.Flags().Int64Var(&installMaxSize, "max-size", 0,
		"maximum download size in bytes (default 100 MiB)")
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install <source>",
	Short: "Install extensions from a file, directory, URL, or Git repository",
	Long: `Install one or more extensions into the selected scope.

The source may be a local file or directory, an archive URL
(.zip, .tar, .tar.gz, .tgz, .tar.bz2, .tbz2), or a Git repository.
Directories are scanned; with --interactive a picker narrows the set.

Examples:
  # Install a single hook
  pacc install ./fmt-check.json

  # Install everything from a repository into the user scope
  pacc install github.com/acme/extensions --scope user

  # Preview without writing
  pacc install ./extensions --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func runInstall(c *cobra.Command, args []string) error {
	kind := extension.KindNone
	if installType != "" {
		parsed, ok := extension.ParseKind(installType)
		if !ok {
			return paccerr.Validation("invalid_value", "unknown extension type %q", installType)
		}
		kind = parsed
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	result, err := client.Install(c.Context(), args[0], scopeKind(), installer.Options{
		TypeHint:    kind,
		Force:       installForce,
		DryRun:      installDryRun,
		Interactive: interactive,
		Source: source.Options{
			MaxSizeBytes: installMaxSize,
			Timeout:      sourceTimeout(),
		},
	})
	if err != nil {
		return err
	}
	reportInstall(os.Stdout, result)
	if !result.Success {
		return result.Err
	}
	return nil
}

func reportInstall(w io.Writer, result *installer.Result) {
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("warning:"), warning)
	}
	if result.DryRun {
		for _, change := range result.ChangesMade {
			fmt.Fprintf(w, "  %s\n", change)
		}
		return
	}
	for _, rec := range result.Installed {
		fmt.Fprintf(w, "%s %s\n", color.GreenString("installed"), rec.Name)
	}
}
