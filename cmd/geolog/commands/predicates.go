package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geolog/geolog/pkg/interpreter"
)

func newPredicatesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "predicates",
		Short: "List the registered foreign predicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInterpreter(cmd.Context(), func(i *interpreter.Interpreter) error {
				indicators := i.Predicates()
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), indicators)
				}
				for _, ind := range indicators {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), ind); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
