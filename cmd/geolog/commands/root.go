package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	pluginFlags []string
	trace       bool
	metricsAddr string
	jsonOutput  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "geolog",
		Short: "geolog - logic programming with host predicates",
		Long: `geolog runs Prolog programs inside an embedded logic engine and exposes
host functionality to them as foreign predicates.

Features:
  - Plugins: directories of program files bound to a predicate namespace
  - SQLite access through the sqlite module
  - Starlark expressions through the starlark module
  - Host object handles, iterators and attribute access
  - Typed configs via YAML or CUE`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML or CUE)")
	rootCmd.PersistentFlags().StringArrayVarP(&pluginFlags, "plugin", "p", nil, "load a plugin, given as path=namespace (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "log every foreign predicate call")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newConsultCommand())
	rootCmd.AddCommand(newReplCommand())
	rootCmd.AddCommand(newPredicatesCommand())

	return rootCmd
}
