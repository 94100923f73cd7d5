package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/plugin"
)

var (
	syncEnv    string
	syncPolicy string
	syncPrune  bool
	syncDryRun bool
)

func init() {
	syncCmd.Flags().StringVarP(&syncEnv, "env", "e", "", "manifest environment to apply")
	syncCmd.Flags().StringVar(&syncPolicy, "policy", "local",
		"conflict policy: local, team, merge, prompt")
	syncCmd.Flags().BoolVar(&syncPrune, "prune", false,
		"remove installed repositories absent from the manifest")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false,
		"compute and print the plan without applying it")
	pluginCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pluginCmd)
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage plugin repositories",
	Run: func(c *cobra.Command, _ []string) {
		_ = c.Help()
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile installed plugins with the project manifest",
	Long: `Resolve the plugin set declared in pacc.json (plus the
environment overlay and pacc.local.json), diff it against the
installed state, and apply the difference.

Conflicts between pacc.json and pacc.local.json are settled by the
--policy flag: "local" prefers the local override, "team" prefers the
shared manifest, "merge" keeps the newer reference, and "prompt" asks.

Examples:
  pacc plugin sync
  pacc plugin sync --env staging --policy team
  pacc plugin sync --dry-run`,
	RunE: runPluginSync,
}

func runPluginSync(c *cobra.Command, _ []string) error {
	var policy plugin.ConflictPolicy
	switch syncPolicy {
	case "local":
		policy = plugin.PolicyLocal
	case "team":
		policy = plugin.PolicyTeam
	case "merge":
		policy = plugin.PolicyMerge
	case "prompt":
		policy = plugin.PolicyPrompt
	default:
		return paccerr.Validation("invalid_value", "unknown conflict policy %q", syncPolicy)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	result := client.SyncPlugins(c.Context(), plugin.Options{
		Environment: syncEnv,
		Policy:      policy,
		Prune:       syncPrune,
		DryRun:      syncDryRun,
		Interactive: interactive,
		Timeout:     sourceTimeout(),
	})
	reportSync(os.Stdout, result)
	if result.Err != nil {
		return result.Err
	}
	return nil
}

func reportSync(w io.Writer, result *plugin.Result) {
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("warning:"), warning)
	}
	if result.Plan == nil {
		return
	}
	if result.DryRun {
		printPlan(w, result.Plan)
		return
	}
	fmt.Fprintf(w, "%s %d installed, %d updated, %d removed, %d up to date\n",
		color.GreenString("synced:"),
		result.InstalledCount, result.UpdatedCount, result.RemovedCount, result.SkippedCount)
	for _, failed := range result.FailedPlugins {
		fmt.Fprintf(w, "%s %s\n", color.RedString("failed:"), failed)
	}
}

func printPlan(w io.Writer, plan *plugin.SyncPlan) {
	if plan.Empty() {
		fmt.Fprintln(w, "nothing to do")
		return
	}
	for _, step := range plan.Install {
		fmt.Fprintf(w, "  install %s@%s\n", step.Spec.Repository, shortSHA(step.SHA))
	}
	for _, step := range plan.Update {
		fmt.Fprintf(w, "  update  %s %s -> %s\n", step.Spec.Repository, shortSHA(step.OldSHA), shortSHA(step.NewSHA))
	}
	for _, repo := range plan.Remove {
		fmt.Fprintf(w, "  remove  %s\n", repo)
	}
	for _, step := range plan.Skip {
		fmt.Fprintf(w, "  skip    %s (%s)\n", step.Spec.Repository, step.Reason)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
