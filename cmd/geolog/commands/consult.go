package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geolog/geolog/pkg/interpreter"
)

func newConsultCommand() *cobra.Command {
	var queries []string

	cmd := &cobra.Command{
		Use:   "consult <file>...",
		Short: "Load program files, then run queries against them",
		Long: `Consult program files in order into one interpreter, then run every
--query against the loaded program.

Consult errors stop the command. Paths are passed to the engine as given.`,
		Example: `  # Check that a file loads
  geolog consult rules.pl

  # Load two files and query them
  geolog consult base.pl rules.pl -q 'route(a, X)'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInterpreter(cmd.Context(), func(i *interpreter.Interpreter) error {
				for _, path := range args {
					if err := i.Consult(cmd.Context(), path, interpreter.CatchErrors(false)); err != nil {
						return err
					}
					log.Debug().Str("path", path).Msg("Consulted")
				}

				for _, q := range queries {
					res, err := i.Query(cmd.Context(), q)
					if err != nil {
						return err
					}
					if err := printResult(cmd.OutOrStdout(), res, jsonOutput); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "query to run after loading (repeatable)")

	return cmd
}
