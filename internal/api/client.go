package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/endolabs/endo-cli/internal/config"
	"github.com/endolabs/endo-cli/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Client executes requests against the Endo backend. It is the only
// component that sees transport-level failures; everything it returns is
// either a decoded success body or a normalized *Error.
type Client struct {
	http    *http.Client
	baseURL string
	tokens  *TokenHolder
}

type ClientParams struct {
	fx.In

	Config *config.Config
	Tokens *TokenHolder
}

// NewClient creates a new Client with the configured base URL and timeout.
func NewClient(params ClientParams) *Client {
	timeout := params.Config.API.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(params.Config.API.BaseURL, "/"),
		tokens:  params.Tokens,
	}
}

// Get performs a GET request and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with a JSON body and decodes the response
// into out. Both in and out may be nil.
func (c *Client) Post(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// Put performs a PUT request with a JSON body and decodes the response
// into out.
func (c *Client) Put(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPut, path, in, out)
}

// Delete performs a DELETE request and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Debug("request failed before a response arrived",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return normalizeTransport(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Debug("failed to read response body",
			zap.String("path", path),
			zap.Error(err),
		)
		return normalizeTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return normalizeResponse(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			logger.Debug("failed to decode response body",
				zap.String("path", path),
				zap.Error(err),
			)
			return normalizeTransport(err)
		}
	}
	return nil
}

// Module provides the API client dependencies
var Module = fx.Module("api",
	fx.Provide(
		NewTokenHolder,
		NewClient,
	),
)
