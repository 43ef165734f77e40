// Package prompt asks the user for values one question at a time with a
// bubbletea text input.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user aborts with Esc or Ctrl+C.
var ErrCancelled = errors.New("prompt cancelled")

// Question describes a single prompt.
type Question struct {
	Key    string
	Prompt string
	// Default pre-fills the input.
	Default string
	// Required rejects blank answers.
	Required bool
	// Validate, when set, must accept the trimmed answer before the prompt
	// advances.
	Validate func(string) error
}

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))

// model is a bubbletea model that asks one question at a time.
type model struct {
	questions []Question
	idx       int
	inputs    []textinput.Model
	errMsg    string
	done      bool
}

func newModel(questions []Question) model {
	inputs := make([]textinput.Model, len(questions))
	for i, q := range questions {
		ti := textinput.New()
		ti.Placeholder = q.Prompt
		ti.CharLimit = 512
		ti.SetValue(q.Default)
		inputs[i] = ti
	}
	m := model{questions: questions, inputs: inputs}
	if len(inputs) > 0 {
		m.inputs[0].Focus()
	}
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if err := m.check(); err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
			m.errMsg = ""
			if m.idx < len(m.inputs)-1 {
				m.inputs[m.idx].Blur()
				m.idx++
				m.inputs[m.idx].Focus()
				return m, textinput.Blink
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.inputs[m.idx], cmd = m.inputs[m.idx].Update(msg)
	return m, cmd
}

// check validates the current answer.
func (m model) check() error {
	q := m.questions[m.idx]
	v := strings.TrimSpace(m.inputs[m.idx].Value())
	if q.Required && v == "" {
		return fmt.Errorf("%s is required", strings.ToLower(q.Prompt))
	}
	if q.Validate != nil {
		return q.Validate(v)
	}
	return nil
}

func (m model) View() string {
	if m.done || len(m.questions) == 0 {
		return ""
	}
	q := m.questions[m.idx]
	view := fmt.Sprintf("%s: %s\n", q.Prompt, m.inputs[m.idx].View())
	if m.errMsg != "" {
		view += errorStyle.Render(m.errMsg) + "\n"
	}
	return view
}

// answers returns trimmed answers keyed by Question.Key.
func (m model) answers() map[string]string {
	out := make(map[string]string, len(m.questions))
	for i, q := range m.questions {
		out[q.Key] = strings.TrimSpace(m.inputs[i].Value())
	}
	return out
}

// Option configures the program Ask runs.
type Option func(*[]tea.ProgramOption)

// WithIO runs the prompt on the given streams instead of the terminal.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(opts *[]tea.ProgramOption) {
		*opts = append(*opts, tea.WithInput(in), tea.WithOutput(out))
	}
}

// Ask runs the prompt and returns answers keyed by Question.Key.
func Ask(questions []Question, opts ...Option) (map[string]string, error) {
	if len(questions) == 0 {
		return map[string]string{}, nil
	}
	var popts []tea.ProgramOption
	for _, o := range opts {
		o(&popts)
	}
	result, err := tea.NewProgram(newModel(questions), popts...).Run()
	if err != nil {
		return nil, err
	}
	final, ok := result.(model)
	if !ok || !final.done {
		return nil, ErrCancelled
	}
	return final.answers(), nil
}
