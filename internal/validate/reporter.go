package validate

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
)

// Format specifies the output format for validation reports.
type Format string

const (
	// FormatText produces human-readable text output.
	FormatText Format = "text"
	// FormatJSON produces machine-readable JSON output.
	FormatJSON Format = "json"
)

// Reporter formats and writes validation results.
type Reporter struct {
	out    io.Writer
	format Format
}

// NewReporter creates a new Reporter.
func NewReporter(out io.Writer, format Format) *Reporter {
	return &Reporter{
		out:    out,
		format: format,
	}
}

// Report writes one validation result to the output.
func (r *Reporter) Report(result *Result) error {
	if result == nil {
		return nil
	}

	switch r.format {
	case FormatJSON:
		return r.reportJSON(result)
	default:
		r.reportText(result)
		return nil
	}
}

// ReportAll writes a batch of results. In JSON mode the batch is encoded
// as a single array; in text mode results are printed in order with a
// trailing summary line.
func (r *Reporter) ReportAll(results []*Result) error {
	if r.format == FormatJSON {
		encoder := json.NewEncoder(r.out)
		encoder.SetIndent("", "  ")
		return errors.Wrap(encoder.Encode(results), "encoding JSON report")
	}

	passed, failed := 0, 0
	for _, result := range results {
		r.reportText(result)
		if result.IsValid {
			passed++
		} else {
			failed++
		}
	}
	if len(results) > 1 {
		fmt.Fprintf(r.out, "\n%d file(s): %s, %s\n", len(results),
			color.GreenString("%d passed", passed),
			color.RedString("%d failed", failed))
	}
	return nil
}

func (r *Reporter) reportJSON(result *Result) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return errors.Wrap(encoder.Encode(result), "encoding JSON report")
}

func (r *Reporter) reportText(result *Result) {
	header := result.FilePath
	if result.Kind != "" {
		header = fmt.Sprintf("%s (%s)", result.FilePath, result.Kind)
	}

	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		fmt.Fprintf(r.out, "%s %s\n", color.GreenString("✓"), header)
		return
	}

	summary := []string{}
	if len(result.Errors) > 0 {
		summary = append(summary, color.RedString("%d error(s)", len(result.Errors)))
	}
	if len(result.Warnings) > 0 {
		summary = append(summary, color.YellowString("%d warning(s)", len(result.Warnings)))
	}
	mark := color.YellowString("!")
	if len(result.Errors) > 0 {
		mark = color.RedString("✗")
	}
	fmt.Fprintf(r.out, "%s %s: %s\n", mark, header, strings.Join(summary, ", "))

	for _, d := range result.Errors {
		r.printDiagnostic(d, color.FgRed)
	}
	for _, d := range result.Warnings {
		r.printDiagnostic(d, color.FgYellow)
	}
}

func (r *Reporter) printDiagnostic(d Diagnostic, c color.Attribute) {
	printer := color.New(c).SprintFunc()

	// Format:  • CODE: message (line N)
	var sb strings.Builder
	sb.WriteString("  • ")
	sb.WriteString(printer(d.Code))
	sb.WriteString(": ")
	sb.WriteString(d.Message)

	if d.Line > 0 {
		sb.WriteString(color.New(color.FgHiBlack).Sprintf(" (line %d)", d.Line))
	}
	fmt.Fprintln(r.out, sb.String())

	if d.Suggestion != "" {
		fmt.Fprintf(r.out, "    %s\n", color.New(color.FgHiBlack).Sprint(d.Suggestion))
	}
}
