package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/geolog/geolog/pkg/engine"
	"github.com/geolog/geolog/pkg/interpreter"
	"github.com/geolog/geolog/pkg/term"
)

// printResult writes a query result in the toplevel style: "true.",
// "false." or one line of bindings per solution.
func printResult(w io.Writer, res interpreter.QueryResult, asJSON bool) error {
	if asJSON {
		return printJSON(w, resultJSON(res))
	}

	switch res.Outcome {
	case interpreter.True:
		_, err := fmt.Fprintln(w, "true.")
		return err
	case interpreter.False:
		_, err := fmt.Fprintln(w, "false.")
		return err
	}

	for _, sol := range res.Solutions {
		if _, err := fmt.Fprintln(w, formatSolution(sol)+"."); err != nil {
			return err
		}
	}
	return nil
}

func formatSolution(sol engine.Solution) string {
	names := make([]string, 0, len(sol))
	for name := range sol {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " = " + term.Format(sol[name])
	}
	return strings.Join(parts, ", ")
}

type jsonResult struct {
	Outcome   string           `json:"outcome"`
	Solutions []map[string]any `json:"solutions,omitempty"`
}

func resultJSON(res interpreter.QueryResult) jsonResult {
	out := jsonResult{Outcome: res.Outcome.String()}
	for _, sol := range res.Solutions {
		m := make(map[string]any, len(sol))
		for name, v := range sol {
			m[name] = jsonTerm(v)
		}
		out.Solutions = append(out.Solutions, m)
	}
	return out
}

// jsonTerm maps a term onto JSON values. Lists become arrays, primitives
// stay as they are and every other term is rendered as text.
func jsonTerm(t term.Term) any {
	switch x := t.(type) {
	case nil, int64, float64, bool, string:
		return x
	case term.Atom:
		return string(x)
	case []term.Term:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonTerm(e)
		}
		return out
	default:
		return term.Format(x)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
