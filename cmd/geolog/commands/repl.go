package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geolog/geolog/pkg/interpreter"
)

const replPrompt = "?- "

const replHelp = `Commands:
  :consult <file>        load a program file
  :plugin <path> <ns>    load a plugin directory into a namespace
  :predicates            list registered foreign predicates
  :reset                 drop every live handle
  :trace                 toggle predicate call tracing
  :help                  show this help
  :quit                  leave the loop
Anything else is run as a query.
`

func newReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive query loop",
		Long: `Read queries line by line and print their solutions.

Lines starting with ':' are loop commands; type :help for the list.
Errors are printed and the loop continues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInterpreter(cmd.Context(), func(i *interpreter.Interpreter) error {
				r := &repl{
					interp: i,
					in:     cmd.InOrStdin(),
					out:    cmd.OutOrStdout(),
					errOut: cmd.ErrOrStderr(),
				}
				if isTerminal(r.in) {
					return r.runTerminal(cmd.Context())
				}
				return r.run(cmd.Context())
			})
		},
	}
}

type repl struct {
	interp *interpreter.Interpreter
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// run reads lines until EOF, :quit or context cancellation. It serves piped
// and redirected input; terminals get the line editor in runTerminal.
func (r *repl) run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, replPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isQuit(line) {
			return nil
		}
		if err := r.eval(ctx, line); err != nil {
			fmt.Fprintf(r.errOut, "error: %v\n", err)
		}
	}
}

func (r *repl) eval(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, ":") {
		res, err := r.interp.Query(ctx, line, interpreter.CatchErrors(false))
		if err != nil {
			return err
		}
		return printResult(r.out, res, jsonOutput)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case ":help":
		_, err := fmt.Fprint(r.out, replHelp)
		return err
	case ":reset":
		r.interp.Reset()
		_, err := fmt.Fprintln(r.out, "handles cleared")
		return err
	case ":trace":
		on := !r.interp.Tracing()
		r.interp.SetTrace(on)
		_, err := fmt.Fprintf(r.out, "trace %s\n", onOff(on))
		return err
	case ":predicates":
		for _, ind := range r.interp.Predicates() {
			fmt.Fprintln(r.out, ind)
		}
		return nil
	case ":consult":
		if len(fields) != 2 {
			return fmt.Errorf("usage: :consult <file>")
		}
		return r.interp.Consult(ctx, fields[1], interpreter.CatchErrors(false))
	case ":plugin":
		if len(fields) != 3 {
			return fmt.Errorf("usage: :plugin <path> <namespace>")
		}
		return r.interp.AddPlugin(ctx, fields[1], fields[2])
	default:
		return fmt.Errorf("unknown command %s (try :help)", fields[0])
	}
}

func isQuit(line string) bool {
	return line == ":quit" || line == ":q"
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
