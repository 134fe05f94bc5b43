// Package session owns the durable identity record: the access token and
// the user profile, written and cleared as one atomic pair.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/endolabs/endo-cli/internal/api"
	"github.com/endolabs/endo-cli/internal/config"
	"github.com/endolabs/endo-cli/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Store is the only writer of the durable session pair and of the shared
// bearer token holder.
type Store struct {
	db            *DB
	client        *api.Client
	tokens        *api.TokenHolder
	logoutTimeout time.Duration

	mu   sync.RWMutex
	user *api.User
}

type StoreParams struct {
	fx.In

	Config *config.Config
	DB     *DB
	Client *api.Client
	Tokens *api.TokenHolder
}

func NewStore(params StoreParams) *Store {
	timeout := params.Config.API.LogoutTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		db:            params.DB,
		client:        params.Client,
		tokens:        params.Tokens,
		logoutTimeout: timeout,
	}
}

// Restore loads a previously persisted session. A missing pair means no
// session; a pair whose user record no longer parses is treated the same
// way after clearing the corrupted entry. Restore never fails the
// startup path.
func (s *Store) Restore() *api.User {
	token, userJSON, ok, err := s.db.loadSession()
	if err != nil {
		logger.Error("failed to read stored session", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	var user api.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		logger.Warn("stored session is corrupted, clearing it", zap.Error(err))
		if err := s.db.clearSession(); err != nil {
			logger.Error("failed to clear corrupted session", zap.Error(err))
		}
		return nil
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	s.tokens.Set(token)

	logger.Info("restored session", zap.String("user_id", user.ID))
	return &user
}

// Login authenticates against the backend and persists the returned
// token and user as one pair. Stored state is untouched on failure.
func (s *Store) Login(ctx context.Context, email, password string) (*api.User, error) {
	var resp api.LoginResponse
	err := s.client.Post(ctx, "/v1/auth/login", api.LoginRequest{
		Email:    email,
		Password: password,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if err := s.persist(resp.AccessToken, &resp.User); err != nil {
		return nil, err
	}

	logger.Info("logged in", zap.String("user_id", resp.User.ID))
	return &resp.User, nil
}

// Logout notifies the server on a best-effort basis and unconditionally
// clears local state. Remote failures are logged and never surfaced.
func (s *Store) Logout(ctx context.Context) {
	if s.tokens.Token() != "" {
		callCtx, cancel := context.WithTimeout(ctx, s.logoutTimeout)
		defer cancel()
		if err := s.client.Post(callCtx, "/v1/auth/logout", nil, nil); err != nil {
			logger.Warn("server logout failed, clearing local session anyway", zap.Error(err))
		}
	}
	s.clear()
}

// UpdateProfile sends only the fields that differ from the current
// record and persists the updated user the server returns.
func (s *Store) UpdateProfile(ctx context.Context, email, firstName, lastName string) (*api.User, error) {
	s.mu.RLock()
	current := s.user
	s.mu.RUnlock()
	if current == nil {
		return nil, &api.Error{Message: "No authentication token found"}
	}

	var update api.ProfileUpdate
	changed := false
	if email != current.Email {
		update.Email = &email
		changed = true
	}
	if firstName != current.FirstName {
		update.FirstName = &firstName
		changed = true
	}
	if lastName != current.LastName {
		update.LastName = &lastName
		changed = true
	}
	if !changed {
		return current, nil
	}

	var updated api.User
	if err := s.client.Put(ctx, "/v1/users/me", update, &updated); err != nil {
		return nil, err
	}

	if err := s.persist(s.tokens.Token(), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Deactivate deletes the account server-side, then clears local state
// the same way logout does.
func (s *Store) Deactivate(ctx context.Context) error {
	if err := s.client.Delete(ctx, "/v1/users/me", nil); err != nil {
		return err
	}
	s.clear()
	logger.Info("account deactivated")
	return nil
}

// CurrentUser returns the in-memory user record, or nil when logged out.
func (s *Store) CurrentUser() *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) persist(token string, user *api.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.db.saveSession(token, string(userJSON)); err != nil {
		return err
	}
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.tokens.Set(token)
	return nil
}

func (s *Store) clear() {
	if err := s.db.clearSession(); err != nil {
		logger.Error("failed to clear stored session", zap.Error(err))
	}
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	s.tokens.Clear()
}

// Module provides the session store dependencies
var Module = fx.Module("session",
	fx.Provide(
		OpenDB,
		NewStore,
	),
)
