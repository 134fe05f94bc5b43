// Package dexcom brokers the third-party OAuth connection: authorization
// handoff, one-shot callback exchange, status and disconnect.
package dexcom

import (
	"context"
	"net/url"
	"sync"

	"github.com/endolabs/endo-cli/internal/api"
	"github.com/endolabs/endo-cli/internal/logger"
	"github.com/endolabs/endo-cli/internal/notify"
	"github.com/endolabs/endo-cli/internal/session"
	"github.com/rs/xid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// State is the connector's position in the authorization flow.
type State int

const (
	StateDisconnected State = iota
	StateAwaitingAuthorization
	StateExchangingCode
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateExchangingCode:
		return "exchanging_code"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateStore persists the pending authorization nonce so a redirect can
// be consumed exactly once, independent of any view's lifetime.
type StateStore interface {
	PutAuthState(state string) error
	ConsumeAuthState(state string) (bool, error)
	ConsumeAnyAuthState() (bool, error)
}

// Connector drives the Dexcom link for the current session's user. It is
// usable only while a session token is present; every call it makes
// carries the bearer header.
type Connector struct {
	client  *api.Client
	states  StateStore
	notices *notify.Queue

	// navigate performs the authorization handoff; replaced in tests.
	navigate func(url string) error

	mu        sync.Mutex
	state     State
	status    api.ConnectionStatus
	lastError string
}

type ConnectorParams struct {
	fx.In

	Client  *api.Client
	States  StateStore
	Notices *notify.Queue
}

func NewConnector(params ConnectorParams) *Connector {
	return &Connector{
		client:   params.Client,
		states:   params.States,
		notices:  params.Notices,
		navigate: openBrowser,
	}
}

// State returns the connector state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionStatus returns the last fetched status.
func (c *Connector) ConnectionStatus() api.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the message behind the Error state, if any.
func (c *Connector) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Refresh queries the remote connection status. A not-found response
// means the user never connected and is reported as Disconnected with no
// error; only genuine failures propagate.
func (c *Connector) Refresh(ctx context.Context) (api.ConnectionStatus, error) {
	var status api.ConnectionStatus
	if err := c.client.Get(ctx, "/dexcom/status", &status); err != nil {
		if api.AsError(err).NotFound() {
			c.mu.Lock()
			c.state = StateDisconnected
			c.status = api.ConnectionStatus{}
			c.mu.Unlock()
			return api.ConnectionStatus{}, nil
		}
		return api.ConnectionStatus{}, err
	}

	c.mu.Lock()
	c.status = status
	if status.Connected {
		c.state = StateConnected
	} else if c.state == StateConnected {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	return status, nil
}

// BeginAuthorization fetches the authorization URL, records the pending
// state nonce, and hands navigation off to the provider. Control returns
// only via the redirect consumed by Resume.
func (c *Connector) BeginAuthorization(ctx context.Context) error {
	attempt := xid.New().String()

	var resp api.AuthURLResponse
	if err := c.client.Get(ctx, "/dexcom/auth-url", &resp); err != nil {
		return api.AsError(err)
	}

	if err := c.states.PutAuthState(resp.State); err != nil {
		logger.Error("failed to record pending authorization state",
			zap.String("attempt", attempt), zap.Error(err))
		return &api.Error{Message: "An unexpected error occurred"}
	}

	c.setState(StateAwaitingAuthorization)
	logger.Info("authorization handoff",
		zap.String("attempt", attempt),
		zap.String("state", resp.State),
	)

	if err := c.navigate(resp.AuthorizationURL); err != nil {
		// The URL is still valid; the user can open it manually.
		logger.Warn("failed to open browser", zap.Error(err))
	}
	return nil
}

// Resume processes a redirect arriving from the provider or from the
// backend's post-exchange redirect. It returns the values the caller
// should retain as its navigation state: every processed indicator is
// stripped, so re-processing the retained state is a no-op. The code
// exchange itself happens at most once per pending authorization,
// guarded by the persisted nonce.
func (c *Connector) Resume(ctx context.Context, values url.Values) url.Values {
	retained := cloneValues(values)

	// Post-exchange success marker from the backend redirect.
	if values.Get("dexcom") == "connected" {
		retained.Del("dexcom")
		c.mu.Lock()
		c.state = StateConnected
		c.status.Connected = true
		c.mu.Unlock()
		c.notices.Success("Successfully connected to Dexcom!")
		return retained
	}

	retained.Del("code")
	retained.Del("error")
	retained.Del("state")

	if values.Get("error") != "" {
		// Explicit denial: no exchange is attempted, and any pending
		// nonce is dead.
		if state := values.Get("state"); state != "" {
			_, _ = c.states.ConsumeAuthState(state)
		} else {
			_, _ = c.states.ConsumeAnyAuthState()
		}
		c.fail("Dexcom authorization was denied or failed")
		return retained
	}

	code := values.Get("code")
	if code == "" {
		if values.Get("state") == "" {
			// Nothing authorization-related here. Replayed retained
			// navigation state lands on this path and must stay a no-op.
			return retained
		}
		// The provider echoed the state but delivered no code.
		_, _ = c.states.ConsumeAuthState(values.Get("state"))
		c.fail("No authorization code received from Dexcom")
		return retained
	}

	consumed, err := c.consumeNonce(values.Get("state"))
	if err != nil {
		logger.Error("failed to consume authorization state", zap.Error(err))
		c.fail("An unexpected error occurred")
		return retained
	}
	if !consumed {
		// Duplicate delivery of an already-processed redirect.
		logger.Debug("ignoring already-processed authorization redirect")
		return retained
	}

	c.setState(StateExchangingCode)
	err = c.client.Post(ctx, "/dexcom/callback", api.CallbackRequest{Code: code}, nil)
	if err != nil {
		apiErr := api.AsError(err)
		message := apiErr.Message
		if message == "" {
			message = "Failed to complete Dexcom connection"
		}
		c.fail(message)
		return retained
	}

	c.mu.Lock()
	c.state = StateConnected
	c.status.Connected = true
	c.lastError = ""
	c.mu.Unlock()
	c.notices.Success("Successfully connected to Dexcom!")
	return retained
}

// Disconnect revokes the connection. On failure the state is unchanged
// and the error surfaces to the caller.
func (c *Connector) Disconnect(ctx context.Context) error {
	var resp api.MessageResponse
	if err := c.client.Delete(ctx, "/dexcom/disconnect", &resp); err != nil {
		return api.AsError(err)
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.status = api.ConnectionStatus{}
	c.lastError = ""
	c.mu.Unlock()
	c.notices.Success("Dexcom disconnected")
	return nil
}

func (c *Connector) consumeNonce(state string) (bool, error) {
	if state != "" {
		return c.states.ConsumeAuthState(state)
	}
	return c.states.ConsumeAnyAuthState()
}

func (c *Connector) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Connector) fail(message string) {
	c.mu.Lock()
	c.state = StateError
	c.lastError = message
	c.mu.Unlock()
	c.notices.Error(message)
}

func cloneValues(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, v := range values {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Module provides the Dexcom connector dependencies
var Module = fx.Module("dexcom",
	fx.Provide(
		NewConnector,
		NewListener,
		func(db *session.DB) StateStore { return db },
	),
)
