package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geolog/geolog/pkg/interpreter"
)

func newQueryCommand() *cobra.Command {
	var (
		failOnError bool
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "query <goal>",
		Short: "Run one query and print its solutions",
		Long: `Run one query against a freshly booted interpreter.

The result is printed as "true.", "false." or one line of variable
bindings per solution. Errors raised by the query are logged and reported
as "false." unless --fail-on-error is given.`,
		Example: `  # Query a plugin predicate
  geolog query 'sqlite:open(":memory:", Db)'

  # Load a plugin directory and trace one query
  geolog --plugin ./rules=mylib query --debug 'mylib:check(X)'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := args[0]
			log.Debug().Str("query", goal).Msg("Running query")

			return withInterpreter(cmd.Context(), func(i *interpreter.Interpreter) error {
				opts := []interpreter.CallOption{}
				if failOnError {
					opts = append(opts, interpreter.CatchErrors(false))
				}
				if debug {
					opts = append(opts, interpreter.Debug())
				}

				res, err := i.Query(cmd.Context(), goal, opts...)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), res, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "return query errors instead of logging them")
	cmd.Flags().BoolVar(&debug, "debug", false, "trace predicate calls for this query")

	return cmd
}
