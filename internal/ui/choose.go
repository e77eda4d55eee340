package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ChooseModel is the bubbletea model of a single choice from a list.
// up/k and down/j move the cursor, enter picks, esc/ctrl+c/q cancel.
type ChooseModel struct {
	Question string
	Options  []string

	cursor int
	chosen int
	done   bool
}

// NewChooseModel returns a model for question with the cursor on the
// first option.
func NewChooseModel(question string, options []string) *ChooseModel {
	return &ChooseModel{Question: question, Options: options, chosen: -1}
}

func (m *ChooseModel) Init() tea.Cmd { return nil }

func (m *ChooseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.Options)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		if len(m.Options) > 0 {
			m.chosen = m.cursor
		}
	case "esc", "ctrl+c", "q":
		m.chosen = -1
	default:
		return m, nil
	}
	m.done = true
	return m, tea.Quit
}

func (m *ChooseModel) View() string {
	var sb strings.Builder
	sb.WriteString(m.Question + "\n")
	if m.done {
		if m.chosen >= 0 {
			sb.WriteString("  " + m.Options[m.chosen] + "\n")
		}
		return sb.String()
	}
	for i, opt := range m.Options {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		fmt.Fprintf(&sb, "%s%s\n", marker, opt)
	}
	return sb.String()
}

// Chosen returns the index of the picked option, -1 if the prompt was
// cancelled or is still open.
func (m *ChooseModel) Chosen() int {
	return m.chosen
}

// Choose asks the user to pick one of options and returns its index, or
// -1 when nothing was picked. Without a terminal the options are printed
// with their index and one index is read from stdin.
func Choose(question string, options []string) (int, error) {
	if !IsInteractive() {
		fmt.Fprintln(os.Stdout, question)
		for i, opt := range options {
			fmt.Fprintf(os.Stdout, "  %d) %s\n", i, opt)
		}
		return ReadChoice(os.Stdin, len(options))
	}
	m := NewChooseModel(question, options)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return -1, fmt.Errorf("asking %q: %w", question, err)
	}
	return m.Chosen(), nil
}

// ReadChoice reads one line from r holding an index below n. An empty
// line or end of input is -1.
func ReadChoice(r io.Reader, n int) (int, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return -1, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return -1, nil
	}
	i, err := strconv.Atoi(line)
	if err != nil || i < 0 || i >= n {
		return -1, fmt.Errorf("%q is not a number between 0 and %d", line, n-1)
	}
	return i, nil
}
