package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/extension"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/source"
	"github.com/pacc-dev/pacc/internal/validate"
)

var (
	validateType   string
	validateFormat string
)

func init() {
	validateCmd.Flags().StringVarP(&validateType, "type", "t", "",
		"extension type: hook, mcp, agent, command, fragment (default: auto-detect)")
	validateCmd.Flags().StringVar(&validateFormat, "format", "text",
		"report format: text, json")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <source>",
	Short: "Validate extensions without installing them",
	Long: `Validate the extension files a source yields. Nothing is
written to any scope.

Examples:
  pacc validate ./fmt-check.json
  pacc validate ./extensions --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(c *cobra.Command, args []string) error {
	kind := extension.KindNone
	if validateType != "" {
		parsed, ok := extension.ParseKind(validateType)
		if !ok {
			return paccerr.Validation("invalid_value", "unknown extension type %q", validateType)
		}
		kind = parsed
	}
	var format validate.Format
	switch validateFormat {
	case "text":
		format = validate.FormatText
	case "json":
		format = validate.FormatJSON
	default:
		return paccerr.Validation("invalid_value", "unknown report format %q", validateFormat)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	results, err := client.Validate(c.Context(), args[0], kind, source.Options{
		Timeout: sourceTimeout(),
	})
	if err != nil {
		return err
	}

	reporter := validate.NewReporter(os.Stdout, format)
	if err := reporter.ReportAll(results); err != nil {
		return err
	}
	for _, res := range results {
		if !res.IsValid {
			return paccerr.Validation("invalid_extension", "%d file(s) failed validation", countInvalid(results))
		}
	}
	return nil
}

func countInvalid(results []*validate.Result) int {
	n := 0
	for _, res := range results {
		if !res.IsValid {
			n++
		}
	}
	return n
}
