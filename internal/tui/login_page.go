package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/endolabs/endo-cli/internal/auth"
)

// LoginPageKeyMap holds key bindings for the login page actions
type LoginPageKeyMap struct {
	next   key.Binding
	submit key.Binding
	toggle key.Binding
	quit   key.Binding
}

func newLoginPageKeyMap() *LoginPageKeyMap {
	return &LoginPageKeyMap{
		next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "Next field"),
		),
		submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Submit"),
		),
		toggle: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "Switch login/register"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
	}
}

// Field indexes into LoginPageModel.inputs.
const (
	fieldEmail = iota
	fieldPassword
	fieldFirstName
	fieldLastName
	loginFieldCount
)

// LoginPageModel renders the combined login / register form.
type LoginPageModel struct {
	flow     *auth.Controller
	keys     *LoginPageKeyMap
	inputs   []textinput.Model
	focus    int
	register bool
	loading  bool
	errMsg   string
	okMsg    string
	width    int
}

func NewLoginPageModel(flow *auth.Controller) LoginPageModel {
	inputs := make([]textinput.Model, loginFieldCount)

	email := textinput.New()
	email.Placeholder = "Email"
	email.Focus()
	inputs[fieldEmail] = email

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword
	inputs[fieldPassword] = password

	first := textinput.New()
	first.Placeholder = "First name"
	inputs[fieldFirstName] = first

	last := textinput.New()
	last.Placeholder = "Last name"
	inputs[fieldLastName] = last

	return LoginPageModel{
		flow:   flow,
		keys:   newLoginPageKeyMap(),
		inputs: inputs,
	}
}

// SetNotice shows a one-off success line, e.g. after email confirmation.
func (m *LoginPageModel) SetNotice(msg string) {
	m.okMsg = msg
}

func (m LoginPageModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m LoginPageModel) Update(msg tea.Msg) (LoginPageModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case loginResultMsg:
		m.loading = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case registerResultMsg:
		m.loading = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		} else {
			m.reset()
		}
		return m, nil

	case tea.KeyMsg:
		if m.loading {
			return m, nil
		}
		// Typing clears a stale error, same as the form fields do.
		m.errMsg = ""

		switch {
		case key.Matches(msg, m.keys.toggle):
			m.register = !m.register
			m.okMsg = ""
			m.reset()
			return m, nil

		case key.Matches(msg, m.keys.next):
			m.focus = (m.focus + 1) % m.fieldCount()
			return m, m.applyFocus()

		case key.Matches(msg, m.keys.submit):
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m LoginPageModel) fieldCount() int {
	if m.register {
		return loginFieldCount
	}
	return 2 // email + password
}

func (m *LoginPageModel) applyFocus() tea.Cmd {
	var cmd tea.Cmd
	for i := range m.inputs {
		if i == m.focus {
			cmd = m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return cmd
}

func (m *LoginPageModel) reset() {
	for i := range m.inputs {
		m.inputs[i].SetValue("")
	}
	m.focus = fieldEmail
	m.applyFocus()
}

func (m LoginPageModel) submit() (LoginPageModel, tea.Cmd) {
	email := m.inputs[fieldEmail].Value()
	password := m.inputs[fieldPassword].Value()
	if email == "" || password == "" {
		m.errMsg = "Email and password are required"
		return m, nil
	}

	m.loading = true
	m.okMsg = ""

	if m.register {
		first := m.inputs[fieldFirstName].Value()
		last := m.inputs[fieldLastName].Value()
		return m, func() tea.Msg {
			return registerResultMsg{err: m.flow.Register(context.Background(), email, password, first, last)}
		}
	}
	return m, func() tea.Msg {
		return loginResultMsg{err: m.flow.Login(context.Background(), email, password)}
	}
}

func (m LoginPageModel) View() string {
	title := "Login to Endo"
	action := "Need an account? ctrl+r to register"
	if m.register {
		title = "Create Account"
		action = "Have an account? ctrl+r to log in"
	}

	rows := []string{
		titleStyle.Render(title),
		"",
		labelStyle.Render("Email") + "\n" + m.inputs[fieldEmail].View(),
		labelStyle.Render("Password") + "\n" + m.inputs[fieldPassword].View(),
	}
	if m.register {
		rows = append(rows,
			labelStyle.Render("First name")+"\n"+m.inputs[fieldFirstName].View(),
			labelStyle.Render("Last name")+"\n"+m.inputs[fieldLastName].View(),
		)
	}

	if m.loading {
		rows = append(rows, "", "Loading...")
	} else {
		rows = append(rows, "", helpStyle.Render("enter submit • tab next field • "+action+" • ctrl+c quit"))
	}
	if m.errMsg != "" {
		rows = append(rows, errorStyle(m.errMsg))
	}
	if m.okMsg != "" {
		rows = append(rows, successStyle(m.okMsg))
	}

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
