package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/endolabs/endo-cli/internal/auth"
)

// ConfirmPageKeyMap holds key bindings for the confirmation page
type ConfirmPageKeyMap struct {
	submit key.Binding
	resend key.Binding
	back   key.Binding
	quit   key.Binding
}

func newConfirmPageKeyMap() *ConfirmPageKeyMap {
	return &ConfirmPageKeyMap{
		submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
		resend: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "Resend code"),
		),
		back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back to login"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
	}
}

// ConfirmPageModel renders the email confirmation code entry.
type ConfirmPageModel struct {
	flow     *auth.Controller
	keys     *ConfirmPageKeyMap
	code     textinput.Model
	loading  bool
	resendIP bool
	errMsg   string
}

func NewConfirmPageModel(flow *auth.Controller) ConfirmPageModel {
	code := textinput.New()
	code.Placeholder = "Enter 6-digit code"
	code.CharLimit = 6
	code.Focus()

	return ConfirmPageModel{
		flow: flow,
		keys: newConfirmPageKeyMap(),
		code: code,
	}
}

func (m ConfirmPageModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ConfirmPageModel) Update(msg tea.Msg) (ConfirmPageModel, tea.Cmd) {
	switch msg := msg.(type) {
	case confirmResultMsg:
		m.loading = false
		// The code field is cleared in both directions: on success the
		// page is left, on failure a fresh code is expected.
		m.code.SetValue("")
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case resendResultMsg:
		m.resendIP = false
		if msg.err == nil {
			m.code.SetValue("")
		}
		return m, nil

	case tea.KeyMsg:
		if m.loading {
			return m, nil
		}
		m.errMsg = ""

		switch {
		case key.Matches(msg, m.keys.back):
			m.flow.BackToLogin()
			m.code.SetValue("")
			return m, nil

		case key.Matches(msg, m.keys.resend):
			if m.resendIP {
				return m, nil
			}
			m.resendIP = true
			return m, func() tea.Msg {
				return resendResultMsg{err: m.flow.ResendCode(context.Background())}
			}

		case key.Matches(msg, m.keys.submit):
			code := m.code.Value()
			if len(code) != 6 {
				return m, nil
			}
			m.loading = true
			return m, func() tea.Msg {
				return confirmResultMsg{err: m.flow.ConfirmEmail(context.Background(), code)}
			}
		}
	}

	var cmd tea.Cmd
	m.code, cmd = m.code.Update(msg)
	// Only digits, capped at six, whatever was typed or pasted.
	m.code.SetValue(auth.SanitizeCode(m.code.Value()))
	return m, cmd
}

func (m ConfirmPageModel) View() string {
	rows := []string{
		titleStyle.Render("Confirm Your Email"),
		"",
		"We've sent a verification code to " + m.flow.PendingEmail(),
		"",
		labelStyle.Render("Verification Code") + "\n" + m.code.View(),
	}

	switch {
	case m.loading:
		rows = append(rows, "", "Confirming...")
	case m.resendIP:
		rows = append(rows, "", "Sending...")
	default:
		rows = append(rows, "", helpStyle.Render("enter confirm • ctrl+r resend code • esc back to login"))
	}
	if m.errMsg != "" {
		rows = append(rows, errorStyle(m.errMsg))
	}

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
