package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	quiet      bool
	logLevel   string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "inferline",
		Short: "Inferline - Declarative Dataflow Pipeline Compiler",
		Long: `Inferline compiles declarative dataflow pipeline plans into
build workspaces.

A compile run qualifies every name in the plan, merges the factors
into the executable process set, validates the result with policy and
graph gates, fans out the code generators, and promotes the workspace
once every fragment has landed.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file path (.cue, .yaml, or .json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "log to the build log only; re-emit errors on failure")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(newCompileCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
