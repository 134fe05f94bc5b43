package api

import "sync"

// TokenHolder is the shared bearer credential the client reads on every
// request. The session store is its only writer; it is set together with
// the durable session pair and cleared together with it.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
}

func NewTokenHolder() *TokenHolder {
	return &TokenHolder{}
}

// Token returns the current bearer token, or the empty string when no
// session is active.
func (h *TokenHolder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Set replaces the current bearer token.
func (h *TokenHolder) Set(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Clear removes the current bearer token.
func (h *TokenHolder) Clear() {
	h.Set("")
}
