package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/endolabs/endo-cli/internal/api"
	"github.com/endolabs/endo-cli/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			BaseURL:       baseURL,
			Timeout:       2 * time.Second,
			LogoutTimeout: 500 * time.Millisecond,
		},
		Storage: config.StorageConfig{Path: ":memory:"},
	}
}

func newTestStore(t *testing.T, baseURL string) (*Store, *DB, *api.TokenHolder) {
	t.Helper()
	cfg := testConfig(baseURL)
	db, err := OpenDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	holder := api.NewTokenHolder()
	client := api.NewClient(api.ClientParams{Config: cfg, Tokens: holder})
	store := NewStore(StoreParams{Config: cfg, DB: db, Client: client, Tokens: holder})
	return store, db, holder
}

func loginHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/login":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-1","user":{"id":"u1","email":"a@x.com","first_name":"Ada","last_name":"X","is_active":true}}`))
		case "/v1/auth/logout":
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestLoginPersistsPair(t *testing.T) {
	srv := httptest.NewServer(loginHandler(t))
	defer srv.Close()

	store, db, holder := newTestStore(t, srv.URL)

	user, err := store.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "tok-1", holder.Token())

	token, userJSON, ok, err := db.loadSession()
	require.NoError(t, err)
	require.True(t, ok, "pair must be persisted")
	assert.Equal(t, "tok-1", token)
	assert.Contains(t, userJSON, `"a@x.com"`)
}

func TestLoginFailureLeavesStoreUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
	}))
	defer srv.Close()

	store, db, holder := newTestStore(t, srv.URL)

	_, err := store.Login(context.Background(), "a@x.com", "wrong")
	require.Error(t, err)
	assert.Empty(t, holder.Token())
	assert.Nil(t, store.CurrentUser())

	_, _, ok, err := db.loadSession()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogoutClearsEverything(t *testing.T) {
	srv := httptest.NewServer(loginHandler(t))
	defer srv.Close()

	store, db, holder := newTestStore(t, srv.URL)

	_, err := store.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)

	store.Logout(context.Background())

	assert.Empty(t, holder.Token())
	assert.Nil(t, store.CurrentUser())
	_, _, ok, err := db.loadSession()
	require.NoError(t, err)
	assert.False(t, ok, "durable storage must end with no pair")
}

func TestLogoutClearsEvenWhenServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(loginHandler(t))

	store, db, holder := newTestStore(t, srv.URL)
	_, err := store.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)

	// The server goes away before logout.
	srv.Close()

	store.Logout(context.Background())

	assert.Empty(t, holder.Token())
	_, _, ok, err := db.loadSession()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreRoundTrip(t *testing.T) {
	srv := httptest.NewServer(loginHandler(t))
	defer srv.Close()

	store, db, holder := newTestStore(t, srv.URL)
	_, err := store.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)

	// A fresh store over the same database simulates a restart.
	cfg := testConfig(srv.URL)
	holder2 := api.NewTokenHolder()
	client2 := api.NewClient(api.ClientParams{Config: cfg, Tokens: holder2})
	store2 := NewStore(StoreParams{Config: cfg, DB: db, Client: client2, Tokens: holder2})

	user := store2.Restore()
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "tok-1", holder2.Token())
	assert.Equal(t, "tok-1", holder.Token(), "original store keeps its session")
}

func TestRestoreWithNoSession(t *testing.T) {
	store, _, holder := newTestStore(t, "http://localhost:0")
	assert.Nil(t, store.Restore())
	assert.Empty(t, holder.Token())
}

func TestRestoreClearsCorruptedSession(t *testing.T) {
	store, db, holder := newTestStore(t, "http://localhost:0")

	require.NoError(t, db.saveSession("tok-1", `{"id": not json`))

	assert.NotPanics(t, func() {
		assert.Nil(t, store.Restore())
	})
	assert.Empty(t, holder.Token())

	// The corrupted entry is gone, not just ignored.
	_, _, ok, err := db.loadSession()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateProfileSendsOnlyChangedFields(t *testing.T) {
	var updateBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/login":
			loginHandler(t)(w, r)
		case "/v1/users/me":
			require.Equal(t, http.MethodPut, r.Method)
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &updateBody))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"u1","email":"a@x.com","first_name":"Grace","last_name":"X","is_active":true}`))
		}
	}))
	defer srv.Close()

	store, db, _ := newTestStore(t, srv.URL)
	_, err := store.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)

	user, err := store.UpdateProfile(context.Background(), "a@x.com", "Grace", "X")
	require.NoError(t, err)
	assert.Equal(t, "Grace", user.FirstName)

	// Only the changed first name crossed the wire.
	assert.Equal(t, map[string]string{"first_name": "Grace"}, updateBody)

	// The replacement pair is durable.
	_, userJSON, ok, err := db.loadSession()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, userJSON, `"Grace"`)
}

func TestUpdateProfileNoChangesSkipsRemoteCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/users/me" {
			calls++
		}
		loginHandler(t)(w, r)
	}))
	defer srv.Close()

	store, _, _ := newTestStore(t, srv.URL)
	_, err := store.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)

	user, err := store.UpdateProfile(context.Background(), "a@x.com", "Ada", "X")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Zero(t, calls)
}

func TestDeactivateClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/users/me" && r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		loginHandler(t)(w, r)
	}))
	defer srv.Close()

	store, db, holder := newTestStore(t, srv.URL)
	_, err := store.Login(context.Background(), "a@x.com", "secret")
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(context.Background()))
	assert.Empty(t, holder.Token())
	_, _, ok, err := db.loadSession()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthStateConsumedExactlyOnce(t *testing.T) {
	_, db, _ := newTestStore(t, "http://localhost:0")

	require.NoError(t, db.PutAuthState("nonce-1"))

	ok, err := db.ConsumeAuthState("nonce-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.ConsumeAuthState("nonce-1")
	require.NoError(t, err)
	assert.False(t, ok, "second consume must report nothing pending")
}
