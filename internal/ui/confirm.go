package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ConfirmModel is the bubbletea model of a yes/no question. y/Y/enter on
// a "yes" default answer yes; n/N/esc/ctrl+c answer no.
type ConfirmModel struct {
	Question string
	Default  bool

	answered bool
	answer   bool
}

// NewConfirmModel returns a model asking question, defaulting to no.
func NewConfirmModel(question string) *ConfirmModel {
	return &ConfirmModel{Question: question}
}

func (m *ConfirmModel) Init() tea.Cmd { return nil }

func (m *ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyEnter:
		m.answer = m.Default
	case tea.KeyEsc, tea.KeyCtrlC:
		m.answer = false
	default:
		switch strings.ToLower(key.String()) {
		case "y":
			m.answer = true
		case "n":
			m.answer = false
		default:
			return m, nil
		}
	}
	m.answered = true
	return m, tea.Quit
}

func (m *ConfirmModel) View() string {
	if m.answered {
		if m.answer {
			return m.Question + " yes\n"
		}
		return m.Question + " no\n"
	}
	hint := "[y/N]"
	if m.Default {
		hint = "[Y/n]"
	}
	return fmt.Sprintf("%s %s ", m.Question, hint)
}

// Answered reports whether the user has made a choice, and which.
func (m *ConfirmModel) Answered() (answered, yes bool) {
	return m.answered, m.answer
}

// Confirm asks question on the terminal. Without a terminal the answer is
// read as a line from stdin, so scripted runs can pipe "yes".
func Confirm(question string) (bool, error) {
	if !IsInteractive() {
		fmt.Fprintf(os.Stdout, "%s [y/N] ", question)
		return ReadAnswer(os.Stdin)
	}
	m := NewConfirmModel(question)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return false, fmt.Errorf("asking %q: %w", question, err)
	}
	_, yes := m.Answered()
	return yes, nil
}

// ReadAnswer reads one line from r and reports whether it is a yes.
// End of input is a no.
func ReadAnswer(r io.Reader) (bool, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
