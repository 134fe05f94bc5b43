package dexcom

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/endolabs/endo-cli/internal/config"
	"github.com/endolabs/endo-cli/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// shutdownTimeout is the maximum time to wait for listener shutdown
const shutdownTimeout = 5 * time.Second

// Listener is the loopback HTTP endpoint the OAuth redirect returns to.
// It captures the redirect's query values and forwards them to the app;
// the connector decides what they mean.
type Listener struct {
	addr      string
	server    *http.Server
	ln        net.Listener
	redirects chan url.Values
}

type ListenerParams struct {
	fx.In

	Config *config.Config
}

func NewListener(params ListenerParams) *Listener {
	l := &Listener{
		addr:      params.Config.Dexcom.CallbackAddr,
		redirects: make(chan url.Values, 4),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", l.handleRedirect)
	mux.HandleFunc("/account", l.handleRedirect)
	l.server = &http.Server{
		Addr:    l.addr,
		Handler: mux,
	}
	return l
}

// Redirects delivers the query values of each captured redirect.
func (l *Listener) Redirects() <-chan url.Values {
	return l.redirects
}

// Start binds the configured loopback address and begins serving. The
// bind happens synchronously, so a busy port fails here rather than in
// the serving goroutine.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("callback listener failed to bind %s: %w", l.addr, err)
	}
	l.ln = ln
	logger.Info("callback listener started", zap.String("address", ln.Addr().String()))

	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("callback listener error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded, otherwise the
// configured one.
func (l *Listener) Addr() string {
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.addr
}

// Stop shuts the listener down.
func (l *Listener) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return l.server.Shutdown(ctx)
}

func (l *Listener) handleRedirect(w http.ResponseWriter, r *http.Request) {
	select {
	case l.redirects <- r.URL.Query():
	default:
		logger.Warn("dropping redirect, queue is full")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, `<!DOCTYPE html><html><body>
<p>You can close this window and return to the Endo app.</p>
</body></html>`)
}
