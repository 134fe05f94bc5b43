// Package tui renders the session and connection state and forwards
// user intents to the controllers. It holds no domain state of its own.
package tui

import (
	"context"
	"net/url"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/endolabs/endo-cli/internal/auth"
	"github.com/endolabs/endo-cli/internal/dexcom"
	"github.com/endolabs/endo-cli/internal/notify"
	"go.uber.org/fx"
)

// Page identifiers for the active view.
const (
	pageLogin    = "login"
	pageConfirm  = "confirm"
	pageAccount  = "account"
	pageCallback = "callback"
)

// AppModel is the main application model that manages page switching
type AppModel struct {
	flow      *auth.Controller
	connector *dexcom.Connector
	notices   *notify.Queue
	listener  *dexcom.Listener

	login    LoginPageModel
	confirm  ConfirmPageModel
	account  AccountPageModel
	lastPage string
	resuming bool

	// retained is the navigation state kept after a redirect was
	// processed; every consumed indicator has been stripped from it.
	retained url.Values
}

type AppParams struct {
	fx.In

	Flow      *auth.Controller
	Connector *dexcom.Connector
	Notices   *notify.Queue
	Listener  *dexcom.Listener
}

// NewAppModel creates the application model. The auth controller must
// already have restored the session, so the initial page reflects it.
func NewAppModel(params AppParams) AppModel {
	m := AppModel{
		flow:      params.Flow,
		connector: params.Connector,
		notices:   params.Notices,
		listener:  params.Listener,
		login:     NewLoginPageModel(params.Flow),
		confirm:   NewConfirmPageModel(params.Flow),
		account:   NewAccountPageModel(params.Flow, params.Connector),
	}
	m.lastPage = m.activePage()
	return m
}

func (m AppModel) activePage() string {
	if m.resuming {
		return pageCallback
	}
	switch m.flow.State() {
	case auth.StateLoggedIn:
		return pageAccount
	case auth.StatePendingConfirmation, auth.StateConfirming:
		return pageConfirm
	default:
		return pageLogin
	}
}

// Init initializes the AppModel
func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.login.Init(),
		m.confirm.Init(),
		m.waitForRedirect(),
		m.waitForNotices(),
	}
	if m.activePage() == pageAccount {
		cmds = append(cmds, m.account.Init())
	}
	return tea.Batch(cmds...)
}

func (m AppModel) waitForRedirect() tea.Cmd {
	return func() tea.Msg {
		values, ok := <-m.listener.Redirects()
		if !ok {
			return nil
		}
		return redirectMsg{values: values}
	}
}

func (m AppModel) waitForNotices() tea.Cmd {
	return func() tea.Msg {
		<-m.notices.Updates()
		return noticesChangedMsg{}
	}
}

// Update handles app-level messages and delegates to the page that owns
// the message.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		cmds = append(cmds, cmd)
		m.confirm, cmd = m.confirm.Update(msg)
		cmds = append(cmds, cmd)
		m.account, cmd = m.account.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case noticesChangedMsg:
		// Re-render happens by virtue of the message; just re-arm.
		return m, m.waitForNotices()

	case redirectMsg:
		m.resuming = true
		values := msg.values
		cmds = append(cmds,
			func() tea.Msg {
				retained := m.connector.Resume(context.Background(), values)
				return resumeFinishedMsg{retained: retained}
			},
			m.waitForRedirect(),
		)
		return m, tea.Batch(cmds...)

	case resumeFinishedMsg:
		m.resuming = false
		m.retained = msg.retained
		m.lastPage = m.activePage()
		if m.lastPage == pageAccount {
			return m, m.account.Init()
		}
		return m, nil
	}

	// Delegate result messages to the page that issued the call, and
	// everything else to the active page.
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case loginResultMsg, registerResultMsg:
		m.login, cmd = m.login.Update(msg)

	case confirmResultMsg:
		m.confirm, cmd = m.confirm.Update(msg)
		if msg.err == nil {
			m.login.SetNotice("Email confirmed successfully! You can now log in.")
		}

	case resendResultMsg:
		m.confirm, cmd = m.confirm.Update(msg)

	case statusRefreshedMsg, profileSavedMsg, authorizationStartedMsg,
		disconnectResultMsg, deactivateResultMsg:
		m.account, cmd = m.account.Update(msg)

	case logoutDoneMsg:
		// Nothing to deliver; the page flips below.

	default:
		switch m.activePage() {
		case pageLogin:
			m.login, cmd = m.login.Update(msg)
		case pageConfirm:
			m.confirm, cmd = m.confirm.Update(msg)
		case pageAccount:
			m.account, cmd = m.account.Update(msg)
		}
	}
	cmds = append(cmds, cmd)

	// Entering the account page activates the status query.
	if page := m.activePage(); page != m.lastPage {
		m.lastPage = page
		if page == pageAccount {
			cmds = append(cmds, m.account.Init())
		}
	}

	return m, tea.Batch(cmds...)
}

// View renders the toasts above the active page
func (m AppModel) View() string {
	var page string
	switch m.activePage() {
	case pageCallback:
		page = m.callbackView()
	case pageAccount:
		page = m.account.View()
	case pageConfirm:
		page = m.confirm.View()
	default:
		page = m.login.View()
	}

	toasts := renderToasts(m.notices)
	if toasts == "" {
		return page
	}
	return lipgloss.JoinVertical(lipgloss.Left, toasts, page)
}

func (m AppModel) callbackView() string {
	rows := []string{
		titleStyle.Render("Connecting to Dexcom"),
		"",
		"Processing your Dexcom authorization...",
	}
	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// Module provides the TUI dependencies
var Module = fx.Module("tui",
	fx.Provide(
		NewAppModel,
	),
)
