package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paccerr"
)

var infoJSON bool

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "output in JSON format")
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info <type> <name>",
	Short: "Show one installed extension",
	Long: `Show the record and stored artifact of one installed
extension.

Examples:
  pacc info hook fmt-check
  pacc info fragment conventions --json`,
	Args: cobra.ExactArgs(2),
	RunE: runInfo,
}

func runInfo(c *cobra.Command, args []string) error {
	kind, ok := extension.ParseKind(args[0])
	if !ok {
		return paccerr.Validation("invalid_value", "unknown extension type %q", args[0])
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	detail, err := client.Info(scopeKind(), kind, args[1])
	if err != nil {
		return err
	}

	w := c.OutOrStdout()
	if infoJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	}

	fmt.Fprintf(w, "Name:        %s\n", detail.Name)
	fmt.Fprintf(w, "Kind:        %s\n", detail.Kind)
	fmt.Fprintf(w, "Scope:       %s\n", detail.Scope)
	if detail.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", detail.Description)
	}
	if detail.Source != "" {
		fmt.Fprintf(w, "Source:      %s\n", detail.Source)
	}
	if detail.Version != "" {
		fmt.Fprintf(w, "Version:     %s\n", detail.Version)
	}
	if !detail.InstalledAt.IsZero() {
		fmt.Fprintf(w, "Installed:   %s\n", detail.InstalledAt.Format("2006-01-02 15:04:05"))
	}
	if detail.Path != "" {
		fmt.Fprintf(w, "Path:        %s\n", detail.Path)
		if detail.ArtifactExists {
			fmt.Fprintf(w, "Size:        %d bytes\n", detail.ArtifactSize)
		} else {
			fmt.Fprintln(w, "Artifact:    missing")
		}
	}
	return nil
}
