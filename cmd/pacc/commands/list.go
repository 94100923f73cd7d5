package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/query"
)

var (
	listKind      string
	listName      string
	listSearch    string
	listSort      string
	listJSON      bool
	listAllScopes bool
)

func init() {
	listCmd.Flags().StringVarP(&listKind, "kind", "k", "", "restrict to one extension type")
	listCmd.Flags().StringVar(&listName, "name", "", "glob pattern applied to names")
	listCmd.Flags().StringVar(&listSearch, "search", "", "match names and descriptions")
	listCmd.Flags().StringVar(&listSort, "sort", "name", "sort key: name, kind, installed_at")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output in JSON format")
	listCmd.Flags().BoolVarP(&listAllScopes, "all", "a", false, "list both scopes")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed extensions",
	Long: `List installed extensions in the selected scope, or both scopes
with --all.

Examples:
  # Everything in the project scope
  pacc list

  # Hooks across both scopes
  pacc list --kind hook --all

  # Fuzzy search
  pacc list --search review`,
	RunE: runList,
}

func runList(_ *cobra.Command, _ []string) error {
	return runListWithWriter(os.Stdout)
}

func runListWithWriter(w io.Writer) error {
	filter := query.Filter{
		NameGlob: listName,
		Search:   listSearch,
		SortBy:   query.SortKey(listSort),
	}
	if listKind != "" {
		kind, ok := extension.ParseKind(listKind)
		if !ok {
			return paccerr.Validation("invalid_value", "unknown extension type %q", listKind)
		}
		filter.Kinds = []extension.Kind{kind}
	}
	switch filter.SortBy {
	case query.SortName, query.SortKind, query.SortInstalledAt:
	default:
		return paccerr.Validation("invalid_value", "unknown sort key %q", listSort)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	var rows []query.ViewRow
	if listAllScopes {
		rows, err = client.List(filter)
	} else {
		rows, err = client.List(filter, scopeKind())
	}
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return printRows(w, rows)
}

func printRows(w io.Writer, rows []query.ViewRow) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no extensions installed")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSCOPE\tDESCRIPTION")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Name, row.Kind, row.Scope, row.Description)
	}
	return tw.Flush()
}

