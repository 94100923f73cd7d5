package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/doctor"
	"github.com/pacc-dev/pacc/internal/paccerr"
)

var doctorJSON bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output in JSON format")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify the structural health of the selected scope",
	Long: `Check that the scope's configuration files parse, recorded
artifacts exist inside the storage tree, and CLAUDE.md fragment
references agree with pacc.json.`,
	RunE: runDoctor,
}

func runDoctor(_ *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	scope, err := client.Scope(scopeKind())
	if err != nil {
		return err
	}
	report := doctor.VerifyScope(scope)
	if err := printReport(os.Stdout, report); err != nil {
		return err
	}
	if report.HasErrors() {
		return paccerr.Validation("doctor_failed", "scope verification failed")
	}
	return nil
}

func printReport(w io.Writer, report *doctor.Report) error {
	if doctorJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	for _, res := range report.Results {
		var tag string
		switch res.Status {
		case doctor.SeverityPass:
			tag = color.GreenString("✓")
		case doctor.SeverityWarning:
			tag = color.YellowString("!")
		default:
			tag = color.RedString("✗")
		}
		fmt.Fprintf(w, "%s %s: %s\n", tag, res.Name, res.Message)
	}
	return nil
}
