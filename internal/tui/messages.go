package tui

import (
	"net/url"

	"github.com/endolabs/endo-cli/internal/api"
)

// Messages produced by remote calls running as tea commands. Each call
// is a suspension point: it runs off the update loop and reports back
// through one of these.

type loginResultMsg struct{ err error }

type registerResultMsg struct{ err error }

type confirmResultMsg struct{ err error }

type resendResultMsg struct{ err error }

type logoutDoneMsg struct{}

type deactivateResultMsg struct{ err error }

type profileSavedMsg struct {
	user *api.User
	err  error
}

type statusRefreshedMsg struct {
	status api.ConnectionStatus
	err    error
}

type authorizationStartedMsg struct{ err error }

type disconnectResultMsg struct{ err error }

// redirectMsg carries the query values of an OAuth redirect captured by
// the loopback listener.
type redirectMsg struct{ values url.Values }

// resumeFinishedMsg is sent after the connector has processed a
// redirect; retained is the stripped navigation state the app keeps.
type resumeFinishedMsg struct{ retained url.Values }

// noticesChangedMsg is sent whenever the notification queue changes.
type noticesChangedMsg struct{}
