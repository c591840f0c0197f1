// package ui implements the interactive terminal prompts for credential
// entry: email, masked password, and verification code.
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrPromptAborted is returned when the user cancels a prompt flow.
var ErrPromptAborted = errors.New("prompt aborted")

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Field describes one prompt in a flow.
type Field struct {
	Label    string
	Secret   bool
	Validate func(value string, previous []string) error
}

// promptModel collects one value per field, advancing on enter.
type promptModel struct {
	title   string
	fields  []Field
	inputs  []textinput.Model
	index   int
	errMsg  string
	done    bool
	aborted bool
	keys    keyMap
}

func newPromptModel(title string, fields []Field) promptModel {
	inputs := make([]textinput.Model, len(fields))
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = "> "
		ti.CharLimit = 256
		if f.Secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		inputs[i] = ti
	}
	if len(inputs) > 0 {
		inputs[0].Focus()
	}

	return promptModel{title: title, fields: fields, inputs: inputs, keys: newKeyMap()}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, m.keys.quit):
			m.aborted = true
			return m, tea.Quit

		case key.Matches(keyMsg, m.keys.submit):
			value := m.inputs[m.index].Value()
			if field := m.fields[m.index]; field.Validate != nil {
				if err := field.Validate(value, m.values(m.index)); err != nil {
					m.errMsg = err.Error()
					return m, nil
				}
			}

			m.errMsg = ""
			m.inputs[m.index].Blur()
			if m.index == len(m.fields)-1 {
				m.done = true
				return m, tea.Quit
			}

			m.index++
			m.inputs[m.index].Focus()
			return m, textinput.Blink
		}
	}

	var cmd tea.Cmd
	m.inputs[m.index], cmd = m.inputs[m.index].Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || m.aborted {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	for i := 0; i <= m.index; i++ {
		sb.WriteString(labelStyle.Render(m.fields[i].Label))
		sb.WriteString("\n")
		sb.WriteString(m.inputs[i].View())
		sb.WriteString("\n")
	}

	if m.errMsg != "" {
		sb.WriteString("\n")
		sb.WriteString(errStyle.Render(m.errMsg))
		sb.WriteString("\n")
	}

	return sb.String()
}

// values returns the entered values for fields before index.
func (m promptModel) values(index int) []string {
	vals := make([]string, index)
	for i := 0; i < index; i++ {
		vals[i] = m.inputs[i].Value()
	}
	return vals
}

// Prompt runs a prompt flow and returns the entered values in field order.
func Prompt(title string, fields []Field) ([]string, error) {
	final, err := tea.NewProgram(newPromptModel(title, fields)).Run()
	if err != nil {
		return nil, fmt.Errorf("prompt failed: %w", err)
	}

	m, ok := final.(promptModel)
	if !ok || m.aborted || !m.done {
		return nil, ErrPromptAborted
	}

	vals := make([]string, len(m.inputs))
	for i := range m.inputs {
		vals[i] = m.inputs[i].Value()
	}
	return vals, nil
}

func requireValue(label string) func(string, []string) error {
	return func(value string, _ []string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}

// LoginPrompt collects email and password.
func LoginPrompt() (email, password string, err error) {
	vals, err := Prompt("Log in to your account", []Field{
		{Label: "Email", Validate: requireValue("email")},
		{Label: "Password", Secret: true, Validate: requireValue("password")},
	})
	if err != nil {
		return "", "", err
	}
	return vals[0], vals[1], nil
}

// SignupPrompt collects email and a confirmed password.
func SignupPrompt() (email, password string, err error) {
	vals, err := Prompt("Create a new account", []Field{
		{Label: "Email", Validate: requireValue("email")},
		{Label: "Password (min 8 characters)", Secret: true, Validate: func(value string, _ []string) error {
			if len(value) < 8 {
				return errors.New("password must be at least 8 characters")
			}
			return nil
		}},
		{Label: "Confirm password", Secret: true, Validate: func(value string, previous []string) error {
			if value != previous[1] {
				return errors.New("passwords don't match")
			}
			return nil
		}},
	})
	if err != nil {
		return "", "", err
	}
	return vals[0], vals[1], nil
}

// CodePrompt collects the out-of-band verification code.
func CodePrompt() (string, error) {
	vals, err := Prompt("Check your email for a verification code", []Field{
		{Label: "Verification code", Validate: requireValue("verification code")},
	})
	if err != nil {
		return "", err
	}
	return vals[0], nil
}
