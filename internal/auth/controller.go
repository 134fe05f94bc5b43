// Package auth drives the login, registration and email-confirmation
// flow against the session store.
package auth

import (
	"context"
	"sync"

	"github.com/endolabs/endo-cli/internal/api"
	"github.com/endolabs/endo-cli/internal/logger"
	"github.com/endolabs/endo-cli/internal/notify"
	"github.com/endolabs/endo-cli/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// codeLength is the exact length of an email confirmation code.
const codeLength = 6

// State is the controller's position in the authentication flow.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateLoggedIn
	StatePendingConfirmation
	StateConfirming
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthenticating:
		return "authenticating"
	case StateLoggedIn:
		return "logged_in"
	case StatePendingConfirmation:
		return "pending_email_confirmation"
	case StateConfirming:
		return "confirming_email"
	default:
		return "unknown"
	}
}

// Controller owns the authentication state machine. Remote calls happen
// on whatever goroutine invokes them; state reads and writes are guarded
// so the render loop always sees a consistent snapshot.
type Controller struct {
	sessions *session.Store
	client   *api.Client
	notices  *notify.Queue

	mu           sync.Mutex
	state        State
	pendingEmail string
}

type ControllerParams struct {
	fx.In

	Sessions *session.Store
	Client   *api.Client
	Notices  *notify.Queue
}

func NewController(params ControllerParams) *Controller {
	return &Controller{
		sessions: params.Sessions,
		client:   params.Client,
		notices:  params.Notices,
		state:    StateLoggedOut,
	}
}

// Start restores any persisted session and sets the initial state.
// Corrupted or missing storage both land in LoggedOut; Start never fails.
func (c *Controller) Start() {
	if user := c.sessions.Restore(); user != nil {
		c.setState(StateLoggedIn)
	} else {
		c.setState(StateLoggedOut)
	}
}

// State returns the current flow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingEmail returns the address awaiting confirmation, if any.
func (c *Controller) PendingEmail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingEmail
}

// CurrentUser returns the logged-in user, or nil.
func (c *Controller) CurrentUser() *api.User {
	return c.sessions.CurrentUser()
}

// Login authenticates the user. On success the state becomes LoggedIn.
// A rejection for an unconfirmed email transitions to
// PendingEmailConfirmation without surfacing an error; every other
// failure returns the mapped message and lands back in LoggedOut.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	c.setState(StateAuthenticating)

	if _, err := c.sessions.Login(ctx, email, password); err != nil {
		kind, message := classifyAuthFailure(api.AsError(err))
		if kind == failureUnconfirmed {
			c.mu.Lock()
			c.state = StatePendingConfirmation
			c.pendingEmail = email
			c.mu.Unlock()
			logger.Info("login deferred to email confirmation", zap.String("email", email))
			return nil
		}
		c.setState(StateLoggedOut)
		return &api.Error{Message: message}
	}

	c.mu.Lock()
	c.state = StateLoggedIn
	c.pendingEmail = ""
	c.mu.Unlock()
	return nil
}

// Register submits a new account. On success the state becomes
// PendingEmailConfirmation for the submitted address.
func (c *Controller) Register(ctx context.Context, email, password, firstName, lastName string) error {
	c.setState(StateAuthenticating)

	var resp api.MessageResponse
	err := c.client.Post(ctx, "/v1/auth/register", api.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: firstName,
		LastName:  lastName,
	}, &resp)
	if err != nil {
		_, message := classifyAuthFailure(api.AsError(err))
		c.setState(StateLoggedOut)
		return &api.Error{Message: message}
	}

	c.mu.Lock()
	c.state = StatePendingConfirmation
	c.pendingEmail = email
	c.mu.Unlock()
	logger.Info("registration submitted", zap.String("email", email))
	return nil
}

// ConfirmEmail submits the 6-digit code for the pending address. Success
// lands in LoggedOut with a success notice; the user logs in explicitly
// afterwards. Failure stays in PendingEmailConfirmation with the mapped
// message enqueued, and the caller clears the code field.
func (c *Controller) ConfirmEmail(ctx context.Context, code string) error {
	c.mu.Lock()
	if c.state != StatePendingConfirmation {
		c.mu.Unlock()
		return &api.Error{Message: "No confirmation is pending"}
	}
	email := c.pendingEmail
	c.state = StateConfirming
	c.mu.Unlock()

	if len(code) != codeLength || SanitizeCode(code) != code {
		c.setState(StatePendingConfirmation)
		return &api.Error{Message: "Enter the 6-digit code from your email"}
	}

	err := c.client.Post(ctx, "/v1/auth/confirm-email", api.ConfirmEmailRequest{
		Email:            email,
		ConfirmationCode: code,
	}, nil)
	if err != nil {
		message := classifyConfirmFailure(api.AsError(err))
		c.setState(StatePendingConfirmation)
		c.notices.Error(message)
		return &api.Error{Message: message}
	}

	c.mu.Lock()
	c.state = StateLoggedOut
	c.pendingEmail = ""
	c.mu.Unlock()
	c.notices.Success("Email confirmed successfully! You can now log in.")
	logger.Info("email confirmed", zap.String("email", email))
	return nil
}

// ResendCode requests a fresh confirmation code. The state never moves
// away from PendingEmailConfirmation, on success or failure.
func (c *Controller) ResendCode(ctx context.Context) error {
	c.mu.Lock()
	email := c.pendingEmail
	c.mu.Unlock()
	if email == "" {
		return &api.Error{Message: "No confirmation is pending"}
	}

	err := c.client.Post(ctx, "/v1/auth/resend-confirmation", api.ResendConfirmationRequest{
		Email: email,
	}, nil)
	if err != nil {
		message := classifyResendFailure(api.AsError(err))
		c.notices.Error(message)
		return &api.Error{Message: message}
	}

	c.notices.Success("New verification code sent to your email.")
	return nil
}

// BackToLogin abandons the pending confirmation and returns to LoggedOut.
func (c *Controller) BackToLogin() {
	c.mu.Lock()
	c.state = StateLoggedOut
	c.pendingEmail = ""
	c.mu.Unlock()
}

// Logout always succeeds from the caller's perspective and lands in
// LoggedOut.
func (c *Controller) Logout(ctx context.Context) {
	c.sessions.Logout(ctx)
	c.setState(StateLoggedOut)
}

// UpdateProfile forwards a profile edit to the session store and
// normalizes any failure.
func (c *Controller) UpdateProfile(ctx context.Context, email, firstName, lastName string) (*api.User, error) {
	user, err := c.sessions.UpdateProfile(ctx, email, firstName, lastName)
	if err != nil {
		return nil, api.AsError(err)
	}
	return user, nil
}

// Deactivate deletes the account and, on success, behaves like logout.
func (c *Controller) Deactivate(ctx context.Context) error {
	if err := c.sessions.Deactivate(ctx); err != nil {
		return api.AsError(err)
	}
	c.setState(StateLoggedOut)
	c.notices.Success("Account deactivated successfully.")
	return nil
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Module provides the auth flow dependencies
var Module = fx.Module("auth",
	fx.Provide(
		NewController,
	),
)
