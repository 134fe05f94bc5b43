package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/endolabs/endo-cli/internal/auth"
	"github.com/endolabs/endo-cli/internal/dexcom"
)

// AccountPageKeyMap holds key bindings for the account page actions
type AccountPageKeyMap struct {
	edit       key.Binding
	connect    key.Binding
	disconnect key.Binding
	logout     key.Binding
	deactivate key.Binding
	refresh    key.Binding
	quit       key.Binding
	// edit-mode bindings
	next   key.Binding
	save   key.Binding
	cancel key.Binding
}

func newAccountPageKeyMap() *AccountPageKeyMap {
	return &AccountPageKeyMap{
		edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "Edit profile"),
		),
		connect: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Connect Dexcom"),
		),
		disconnect: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Disconnect Dexcom"),
		),
		logout: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Sign out"),
		),
		deactivate: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Deactivate account"),
		),
		refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh status"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("ctrl+c/q", "Quit"),
		),
		next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "Next field"),
		),
		save: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Save"),
		),
		cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Cancel"),
		),
	}
}

// Profile edit field indexes.
const (
	profileFieldEmail = iota
	profileFieldFirstName
	profileFieldLastName
	profileFieldCount
)

// AccountPageModel renders the profile section and the Dexcom
// integration section, and forwards user intents to the controllers.
type AccountPageModel struct {
	flow      *auth.Controller
	connector *dexcom.Connector
	keys      *AccountPageKeyMap

	editing    bool
	inputs     []textinput.Model
	focus      int
	busy       bool
	confirmDel bool
	errMsg     string
	width      int
}

func NewAccountPageModel(flow *auth.Controller, connector *dexcom.Connector) AccountPageModel {
	inputs := make([]textinput.Model, profileFieldCount)
	for i := range inputs {
		inputs[i] = textinput.New()
	}
	inputs[profileFieldEmail].Placeholder = "Email"
	inputs[profileFieldFirstName].Placeholder = "First name"
	inputs[profileFieldLastName].Placeholder = "Last name"

	return AccountPageModel{
		flow:      flow,
		connector: connector,
		keys:      newAccountPageKeyMap(),
		inputs:    inputs,
	}
}

// Init refreshes the connection status; the queryStatus round-trip runs
// on every activation of this view.
func (m AccountPageModel) Init() tea.Cmd {
	return m.refreshStatus()
}

func (m AccountPageModel) refreshStatus() tea.Cmd {
	return func() tea.Msg {
		status, err := m.connector.Refresh(context.Background())
		return statusRefreshedMsg{status: status, err: err}
	}
}

func (m AccountPageModel) Update(msg tea.Msg) (AccountPageModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case statusRefreshedMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case profileSavedMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			return m, nil
		}
		m.editing = false
		return m, nil

	case authorizationStartedMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case disconnectResultMsg:
		m.busy = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case deactivateResultMsg:
		m.busy = false
		m.confirmDel = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		m.errMsg = ""
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateViewing(msg)
	}

	return m, nil
}

func (m AccountPageModel) updateViewing(msg tea.KeyMsg) (AccountPageModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.edit):
		user := m.flow.CurrentUser()
		if user == nil {
			return m, nil
		}
		m.editing = true
		m.confirmDel = false
		m.inputs[profileFieldEmail].SetValue(user.Email)
		m.inputs[profileFieldFirstName].SetValue(user.FirstName)
		m.inputs[profileFieldLastName].SetValue(user.LastName)
		m.focus = profileFieldEmail
		return m, m.applyFocus()

	case key.Matches(msg, m.keys.refresh):
		return m, m.refreshStatus()

	case key.Matches(msg, m.keys.connect):
		if m.connector.State() == dexcom.StateConnected {
			return m, nil
		}
		m.busy = true
		return m, func() tea.Msg {
			return authorizationStartedMsg{err: m.connector.BeginAuthorization(context.Background())}
		}

	case key.Matches(msg, m.keys.disconnect):
		if m.connector.State() != dexcom.StateConnected {
			return m, nil
		}
		m.busy = true
		return m, func() tea.Msg {
			return disconnectResultMsg{err: m.connector.Disconnect(context.Background())}
		}

	case key.Matches(msg, m.keys.logout):
		m.busy = true
		return m, func() tea.Msg {
			m.flow.Logout(context.Background())
			return logoutDoneMsg{}
		}

	case key.Matches(msg, m.keys.deactivate):
		if !m.confirmDel {
			m.confirmDel = true
			return m, nil
		}
		m.busy = true
		return m, func() tea.Msg {
			return deactivateResultMsg{err: m.flow.Deactivate(context.Background())}
		}
	}

	m.confirmDel = false
	return m, nil
}

func (m AccountPageModel) updateEditing(msg tea.KeyMsg) (AccountPageModel, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.editing = false
		return m, nil

	case key.Matches(msg, m.keys.next):
		m.focus = (m.focus + 1) % profileFieldCount
		return m, m.applyFocus()

	case key.Matches(msg, m.keys.save):
		email := m.inputs[profileFieldEmail].Value()
		first := m.inputs[profileFieldFirstName].Value()
		last := m.inputs[profileFieldLastName].Value()
		m.busy = true
		return m, func() tea.Msg {
			user, err := m.flow.UpdateProfile(context.Background(), email, first, last)
			return profileSavedMsg{user: user, err: err}
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *AccountPageModel) applyFocus() tea.Cmd {
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

func (m AccountPageModel) View() string {
	user := m.flow.CurrentUser()
	if user == nil {
		return docStyle.Render("Loading...")
	}

	rows := []string{
		titleStyle.Render("Endo — Account"),
		"",
		labelStyle.Render("Welcome, " + user.FirstName),
		"",
	}

	if m.editing {
		rows = append(rows,
			labelStyle.Render("Email")+"\n"+m.inputs[profileFieldEmail].View(),
			labelStyle.Render("First name")+"\n"+m.inputs[profileFieldFirstName].View(),
			labelStyle.Render("Last name")+"\n"+m.inputs[profileFieldLastName].View(),
			"",
			helpStyle.Render("enter save • tab next field • esc cancel"),
		)
	} else {
		rows = append(rows,
			"Email:      "+user.Email,
			"Name:       "+user.FirstName+" "+user.LastName,
			"Member since: "+user.CreatedAt,
			"",
			labelStyle.Render("Dexcom Integration"),
			m.dexcomLine(),
			"",
			helpStyle.Render("e edit • c connect • d disconnect • r refresh • l sign out • x deactivate • q quit"),
		)
		if m.confirmDel {
			rows = append(rows, errorStyle("Press x again to permanently deactivate your account"))
		}
	}

	if m.busy {
		rows = append(rows, "", "Working...")
	}
	if m.errMsg != "" {
		rows = append(rows, errorStyle(m.errMsg))
	}

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m AccountPageModel) dexcomLine() string {
	switch m.connector.State() {
	case dexcom.StateConnected:
		status := m.connector.ConnectionStatus()
		line := successStyle("Connected")
		if status.ExpiresAt != nil && *status.ExpiresAt != "" {
			line += helpStyle.Render("  (expires " + *status.ExpiresAt + ")")
		}
		return line
	case dexcom.StateAwaitingAuthorization:
		return "Waiting for authorization in your browser..."
	case dexcom.StateExchangingCode:
		return "Completing connection..."
	case dexcom.StateError:
		return errorStyle(m.connector.LastError())
	default:
		return "Not connected"
	}
}
