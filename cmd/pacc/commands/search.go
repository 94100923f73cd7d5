package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/registry"
)

var (
	searchKind string
	searchJSON bool
)

func init() {
	searchCmd.Flags().StringVarP(&searchKind, "kind", "k", "",
		"restrict to one kind (hooks, mcps, agents, commands, fragments, plugin)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output in JSON format")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the local registry catalog",
	Long: `Search the advisory catalog (registry.toml under the pacc
config directory, or the path named by PACC_REGISTRY). The catalog is a
local file; nothing is fetched.

Examples:
  pacc search postgres
  pacc search --kind plugin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func runSearch(_ *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	entries, err := client.SearchRegistry(query, searchKind)
	if err != nil {
		return err
	}
	return printEntries(os.Stdout, entries)
}

func printEntries(w io.Writer, entries []registry.Entry) error {
	if searchJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no matches")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tDESCRIPTION\tURL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Kind, e.Description, e.URL)
	}
	return tw.Flush()
}
