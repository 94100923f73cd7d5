// Package commands implements the CLI commands for pacc.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pacc-dev/pacc/cmd"
	"github.com/pacc-dev/pacc/internal/cli/prompt"
	"github.com/pacc-dev/pacc/internal/logging"
	"github.com/pacc-dev/pacc/internal/pacc"
	"github.com/pacc-dev/pacc/internal/paccerr"
	"github.com/pacc-dev/pacc/internal/paths"
)

// Persistent flag storage.
var (
	scopeFlag   string
	verbosity   int
	quiet       bool
	logFormat   string
	noColor     bool
	interactive bool
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&scopeFlag, "scope", "s", "project",
		"target scope: user, project")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"increase verbosity level (e.g., -v, -vv)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"log format: text, json")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&interactive, "interactive", "i", false,
		"prompt when a source yields multiple candidates")

	rootCmd.Version = cmd.Version
	rootCmd.SetVersionTemplate("pacc version {{.Version}}\n")

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

// initConfig wires viper: PACC_* environment variables and an optional
// config file under the XDG config home, plus a project-local .env.
func initConfig() {
	_ = godotenv.Load()

	viper.SetEnvPrefix("PACC")
	viper.AutomaticEnv()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(paths.ConfigHome())
	// A missing config file is the normal case.
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "pacc",
	Short: "Package manager for Claude Code extensions",
	Long: `pacc installs, validates, and manages Claude Code extensions:
hooks, MCP servers, agents, slash commands, memory fragments, and
plugin repositories.

Extensions install into one of two scopes: the user scope under your
home directory, or the project scope rooted at the nearest directory
carrying a pacc.json or .claude directory.`,
	Example: `  # Install a hook from a local file
  pacc install ./hooks/fmt-check.json

  # Install from a Git repository, project scope
  pacc install github.com/acme/extensions

  # Synchronize declared plugins
  pacc plugin sync

  # List everything installed
  pacc list`,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		if err := setupLogging(c); err != nil {
			return err
		}
		if noColor {
			color.NoColor = true
		}
		return validateScopeFlag(c)
	},
	Run: func(c *cobra.Command, _ []string) {
		_ = c.Help()
	},
}

func setupLogging(c *cobra.Command) error {
	if quiet && verbosity > 0 {
		return paccerr.Validation("invalid_flags", "cannot use --quiet and --verbose together")
	}

	level := slog.LevelWarn
	switch {
	case quiet:
		level = slog.LevelError
	case verbosity == 1:
		level = slog.LevelInfo
	case verbosity >= 2:
		level = slog.LevelDebug
	}

	logger := logging.New(logging.Config{
		Level:  level,
		Format: logging.Format(logFormat),
		Output: c.ErrOrStderr(),
	})
	slog.SetDefault(logger)
	return nil
}

func validateScopeFlag(c *cobra.Command) error {
	if c.Name() == "help" || c.Name() == "version" {
		return nil
	}
	switch paths.ScopeKind(scopeFlag) {
	case paths.ScopeUser, paths.ScopeProject:
		return nil
	}
	return paccerr.Validation("invalid_scope", "invalid scope %q (valid: user, project)", scopeFlag)
}

// scopeKind returns the selected scope.
func scopeKind() paths.ScopeKind {
	return paths.ScopeKind(scopeFlag)
}

// selector returns the prompt implementation for the session: the fuzzy
// finder on a terminal, the numbered fallback otherwise.
func selector() prompt.Selector {
	if logging.IsTTY(os.Stdout) {
		return prompt.NewFuzzy()
	}
	return prompt.NewPlain()
}

// newClient builds the façade client from the process environment and
// the persistent flags.
func newClient() (*pacc.Client, error) {
	return pacc.New(pacc.Environment{
		CacheDir:     viper.GetString("cache_dir"),
		RegistryPath: viper.GetString("registry"),
		Selector:     selector(),
		Clock:        time.Now,
		Logger:       slog.Default(),
	})
}

// sourceTimeout reads the configured source timeout, defaulting inside
// the resolver when unset.
func sourceTimeout() time.Duration {
	return viper.GetDuration("source_timeout")
}

// printError writes err to stderr in the CLI's standard shape.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
	var pe *paccerr.Error
	if errors.As(err, &pe) && pe.Suggestion() != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", color.HiBlackString(pe.Suggestion()))
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		return paccerr.ToExit(err).Code
	}
	return paccerr.ExitSuccess
}
