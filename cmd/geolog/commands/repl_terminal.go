package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Italic(true)
)

// isTerminal reports whether in is an interactive terminal.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// runTerminal runs the loop as a bubbletea program with line editing and
// history. Results are printed above the input line.
func (r *repl) runTerminal(ctx context.Context) error {
	p := tea.NewProgram(newReplModel(ctx, r),
		tea.WithContext(ctx),
		tea.WithInput(r.in),
		tea.WithOutput(r.out),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// evalDoneMsg carries the output of one evaluated line back to the model.
type evalDoneMsg struct {
	out    string
	errOut string
}

type replModel struct {
	ctx   context.Context
	repl  *repl
	input textinput.Model

	history []string
	cursor  int

	// busy is set while a line is being evaluated; input is ignored until
	// the result arrives.
	busy bool
}

func newReplModel(ctx context.Context, r *repl) replModel {
	ti := textinput.New()
	ti.Prompt = replPrompt
	ti.PromptStyle = promptStyle
	ti.Placeholder = "query, or :help"
	ti.CharLimit = 4096
	ti.Focus()
	return replModel{ctx: ctx, repl: r, input: ti}
}

func (m replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case evalDoneMsg:
		m.busy = false
		var cmds []tea.Cmd
		if out := strings.TrimRight(msg.out, "\n"); out != "" {
			cmds = append(cmds, tea.Println(out))
		}
		if errOut := strings.TrimRight(msg.errOut, "\n"); errOut != "" {
			cmds = append(cmds, tea.Println(errorStyle.Render(errOut)))
		}
		return m, tea.Sequence(cmds...)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyCtrlD:
			if m.input.Value() == "" {
				return m, tea.Quit
			}
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyUp:
			m.recall(-1)
			return m, nil
		case tea.KeyDown:
			m.recall(1)
			return m, nil
		}
	}

	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit evaluates the current line off the update loop.
func (m replModel) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return m, nil
	}
	if isQuit(line) {
		return m, tea.Quit
	}
	m.history = append(m.history, line)
	m.cursor = len(m.history)
	m.busy = true
	return m, tea.Sequence(tea.Println(promptStyle.Render(replPrompt)+line), m.eval(line))
}

// recall moves through the history by delta and loads the entry into the
// input. Moving past the newest entry clears the input.
func (m *replModel) recall(delta int) {
	if m.busy || len(m.history) == 0 {
		return
	}
	m.cursor = max(0, min(len(m.history), m.cursor+delta))
	if m.cursor == len(m.history) {
		m.input.Reset()
		return
	}
	m.input.SetValue(m.history[m.cursor])
	m.input.CursorEnd()
}

func (m replModel) eval(line string) tea.Cmd {
	return func() tea.Msg {
		var out, errOut strings.Builder
		r := *m.repl
		r.out, r.errOut = &out, &errOut
		if err := r.eval(m.ctx, line); err != nil {
			fmt.Fprintf(&errOut, "error: %v\n", err)
		}
		return evalDoneMsg{out: out.String(), errOut: errOut.String()}
	}
}

func (m replModel) View() string {
	if m.busy {
		return busyStyle.Render("running...")
	}
	return m.input.View()
}
