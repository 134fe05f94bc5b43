package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/endolabs/endo-cli/internal/config"

	_ "modernc.org/sqlite"
)

// DB wraps the local sqlite database holding client-side durable state:
// the session pair (token + serialized user) and any pending OAuth
// authorization state.
type DB struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	token TEXT NOT NULL,
	user_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS oauth_state (
	state TEXT PRIMARY KEY,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// OpenDB opens (creating if necessary) the state database at the
// configured path. ":memory:" is supported for tests.
func OpenDB(cfg *config.Config) (*DB, error) {
	path := cfg.Storage.Path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// loadSession reads the stored pair. ok is false when no session exists.
func (d *DB) loadSession() (token, userJSON string, ok bool, err error) {
	row := d.conn.QueryRow(`SELECT token, user_json FROM session WHERE id = 1`)
	switch err = row.Scan(&token, &userJSON); err {
	case nil:
		return token, userJSON, true, nil
	case sql.ErrNoRows:
		return "", "", false, nil
	default:
		return "", "", false, err
	}
}

// saveSession replaces the stored pair in a single transaction, so the
// token and the user record are never observable separately.
func (d *DB) saveSession(token, userJSON string) error {
	_, err := d.conn.Exec(
		`INSERT INTO session (id, token, user_json) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET token = excluded.token, user_json = excluded.user_json`,
		token, userJSON,
	)
	return err
}

// clearSession removes the stored pair. Clearing an already-empty store
// is a no-op.
func (d *DB) clearSession() error {
	_, err := d.conn.Exec(`DELETE FROM session WHERE id = 1`)
	return err
}

// PutAuthState records a pending OAuth state nonce so the redirect that
// eventually carries it back can be recognized and consumed exactly once,
// surviving restarts in between.
func (d *DB) PutAuthState(state string) error {
	_, err := d.conn.Exec(`INSERT OR REPLACE INTO oauth_state (state) VALUES (?)`, state)
	return err
}

// ConsumeAuthState atomically deletes the pending nonce and reports
// whether it was still present. A second consume of the same nonce
// returns false, which is how duplicate redirect delivery is suppressed.
func (d *DB) ConsumeAuthState(state string) (bool, error) {
	res, err := d.conn.Exec(`DELETE FROM oauth_state WHERE state = ?`, state)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ConsumeAnyAuthState consumes whichever pending nonce exists, for
// redirects that carry a code but no state echo. Returns false when
// nothing was pending.
func (d *DB) ConsumeAnyAuthState() (bool, error) {
	res, err := d.conn.Exec(`DELETE FROM oauth_state`)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
