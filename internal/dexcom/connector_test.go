package dexcom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/endolabs/endo-cli/internal/api"
	"github.com/endolabs/endo-cli/internal/config"
	"github.com/endolabs/endo-cli/internal/notify"
	"github.com/endolabs/endo-cli/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T, handler http.Handler) (*Connector, *notify.Queue) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		API:           config.APIConfig{BaseURL: srv.URL, Timeout: 2 * time.Second},
		Storage:       config.StorageConfig{Path: ":memory:"},
		Notifications: config.NotificationsConfig{TTL: time.Minute},
	}

	db, err := session.OpenDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	holder := api.NewTokenHolder()
	holder.Set("tok-1")
	client := api.NewClient(api.ClientParams{Config: cfg, Tokens: holder})
	queue := notify.NewQueue(notify.QueueParams{Config: cfg})
	t.Cleanup(queue.Close)

	connector := NewConnector(ConnectorParams{Client: client, States: db, Notices: queue})
	connector.navigate = func(string) error { return nil }
	return connector, queue
}

func TestRefreshTreatsNotFoundAsDisconnected(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
	}))

	status, err := connector.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Equal(t, StateDisconnected, connector.State())
}

func TestRefreshReportsConnected(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"connected":true,"expires_at":"2026-09-30T00:00:00Z"}`))
	}))

	status, err := connector.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
	require.NotNil(t, status.ExpiresAt)
	assert.Equal(t, StateConnected, connector.State())
}

func TestRefreshPropagatesRealFailures(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := connector.Refresh(context.Background())
	require.Error(t, err)
}

func TestBeginAuthorizationRecordsNonceAndNavigates(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dexcom/auth-url", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"authorization_url":"https://provider.example/authorize?state=n1","state":"n1"}`))
	}))

	var opened string
	connector.navigate = func(u string) error {
		opened = u
		return nil
	}

	require.NoError(t, connector.BeginAuthorization(context.Background()))
	assert.Equal(t, StateAwaitingAuthorization, connector.State())
	assert.Equal(t, "https://provider.example/authorize?state=n1", opened)

	consumed, err := connector.states.ConsumeAuthState("n1")
	require.NoError(t, err)
	assert.True(t, consumed, "pending nonce must be durable")
}

func TestResumeExchangesCodeExactlyOnce(t *testing.T) {
	exchanges := 0
	connector, queue := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dexcom/auth-url":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"authorization_url":"https://provider.example/authorize","state":"n1"}`))
		case "/dexcom/callback":
			exchanges++
			w.WriteHeader(http.StatusOK)
		}
	}))

	require.NoError(t, connector.BeginAuthorization(context.Background()))

	redirect := url.Values{"code": {"abc"}, "state": {"n1"}}
	retained := connector.Resume(context.Background(), redirect)

	assert.Equal(t, StateConnected, connector.State())
	assert.Empty(t, retained.Get("code"))
	assert.Empty(t, retained.Get("state"))

	// A duplicate delivery of the same redirect exchanges nothing.
	connector.Resume(context.Background(), redirect)
	assert.Equal(t, 1, exchanges)

	items := queue.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Successfully connected to Dexcom!", items[0].Message)
}

func TestResumeDenialSkipsExchange(t *testing.T) {
	connector, queue := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dexcom/auth-url":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"authorization_url":"https://provider.example/authorize","state":"n1"}`))
		case "/dexcom/callback":
			t.Error("exchange must not happen on denial")
		}
	}))

	require.NoError(t, connector.BeginAuthorization(context.Background()))

	retained := connector.Resume(context.Background(), url.Values{
		"error": {"access_denied"},
		"state": {"n1"},
	})

	assert.Equal(t, StateError, connector.State())
	assert.Equal(t, "Dexcom authorization was denied or failed", connector.LastError())
	assert.Empty(t, retained.Get("error"))

	// The nonce died with the denial.
	consumed, err := connector.states.ConsumeAuthState("n1")
	require.NoError(t, err)
	assert.False(t, consumed)

	items := queue.Items()
	require.Len(t, items, 1)
	assert.Equal(t, notify.CategoryError, items[0].Category)
}

func TestResumeWithoutCodeFails(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	// The provider echoed the state but delivered no code.
	connector.Resume(context.Background(), url.Values{"state": {"n1"}})
	assert.Equal(t, StateError, connector.State())
	assert.Equal(t, "No authorization code received from Dexcom", connector.LastError())
}

func TestResumeWithoutIndicatorsIsNoop(t *testing.T) {
	connector, queue := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("plain navigation state must not call the backend, got %s", r.URL.Path)
	}))

	retained := connector.Resume(context.Background(), url.Values{"foo": {"bar"}})
	assert.Equal(t, StateDisconnected, connector.State())
	assert.Equal(t, "bar", retained.Get("foo"), "unprocessed values are kept")
	assert.Empty(t, queue.Items())
}

func TestResumeSuccessMarker(t *testing.T) {
	connector, queue := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("marker processing must not call the backend, got %s", r.URL.Path)
	}))

	retained := connector.Resume(context.Background(), url.Values{
		"dexcom": {"connected"},
		"tab":    {"account"},
	})

	assert.Equal(t, StateConnected, connector.State())
	assert.Empty(t, retained.Get("dexcom"), "marker is stripped from retained state")
	assert.Equal(t, "account", retained.Get("tab"), "unrelated values survive")

	require.Len(t, queue.Items(), 1)

	// Replaying the retained state is a no-op: still connected, nothing
	// further enqueued.
	connector.Resume(context.Background(), retained)
	assert.Equal(t, StateConnected, connector.State())
	assert.Len(t, queue.Items(), 1)
}

func TestResumeExchangeFailure(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dexcom/auth-url":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"authorization_url":"https://provider.example/authorize","state":"n1"}`))
		case "/dexcom/callback":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Invalid authorization code"}`))
		}
	}))

	require.NoError(t, connector.BeginAuthorization(context.Background()))
	connector.Resume(context.Background(), url.Values{"code": {"bad"}, "state": {"n1"}})

	assert.Equal(t, StateError, connector.State())
	assert.Equal(t, "Invalid authorization code", connector.LastError())
}

func TestDisconnect(t *testing.T) {
	connector, queue := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/dexcom/disconnect", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Dexcom disconnected"}`))
	}))

	require.NoError(t, connector.Disconnect(context.Background()))
	assert.Equal(t, StateDisconnected, connector.State())
	assert.False(t, connector.ConnectionStatus().Connected)

	items := queue.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Dexcom disconnected", items[0].Message)
}

func TestDisconnectFailureKeepsState(t *testing.T) {
	connector, _ := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	connector.setState(StateConnected)
	require.Error(t, connector.Disconnect(context.Background()))
	assert.Equal(t, StateConnected, connector.State())
}
