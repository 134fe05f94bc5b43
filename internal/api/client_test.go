package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/endolabs/endo-cli/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, baseURL string) (*Client, *TokenHolder) {
	t.Helper()
	holder := NewTokenHolder()
	client := NewClient(ClientParams{
		Config: &config.Config{
			API: config.APIConfig{BaseURL: baseURL, Timeout: 2 * time.Second},
		},
		Tokens: holder,
	})
	return client, holder
}

func TestClientDecodesSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","user":{"id":"u1","email":"a@x.com"}}`))
	}))
	defer srv.Close()

	client, _ := testClient(t, srv.URL)

	var resp LoginResponse
	err := client.Post(context.Background(), "/v1/auth/login", LoginRequest{Email: "a@x.com", Password: "secret"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.AccessToken)
	assert.Equal(t, "u1", resp.User.ID)
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, holder := testClient(t, srv.URL)

	require.NoError(t, client.Get(context.Background(), "/dexcom/status", nil))
	assert.Empty(t, gotAuth, "no token set, no header expected")

	holder.Set("tok-2")
	require.NoError(t, client.Get(context.Background(), "/dexcom/status", nil))
	assert.Equal(t, "Bearer tok-2", gotAuth)
}

func TestClientNormalizesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
	}))
	defer srv.Close()

	client, _ := testClient(t, srv.URL)

	err := client.Post(context.Background(), "/v1/auth/login", LoginRequest{}, nil)
	require.Error(t, err)
	apiErr := AsError(err)
	assert.Equal(t, "Incorrect email or password", apiErr.Detail)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestClientNormalizesTransportFailure(t *testing.T) {
	// A closed server guarantees a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, _ := testClient(t, srv.URL)

	err := client.Get(context.Background(), "/v1/users/me", nil)
	require.Error(t, err)
	apiErr := AsError(err)
	assert.Equal(t, genericErrorMessage, apiErr.Message)
	assert.Empty(t, apiErr.Detail)
}
