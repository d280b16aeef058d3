package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LookupSession resolves a session token to its user.
// The session must be active and unexpired and the user active.
// Returns ErrNotFound otherwise.
func (s *Store) LookupSession(ctx context.Context, token string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			s.session_id, s.user_id, s.expires_at,
			u.username, u.email, u.first_name, u.last_name, u.user_role,
			u.can_read, u.can_write, u.can_delete, u.can_admin, u.is_verified
		FROM user_sessions s
		JOIN users u ON s.user_id = u.user_id
		WHERE s.session_token = ?
		AND s.expires_at > ?
		AND s.is_active = TRUE
		AND u.is_active = TRUE
	`, token, s.timestamp())

	var u User
	err := row.Scan(
		&u.SessionID, &u.UserID, &u.ExpiresAt,
		&u.Username, &u.Email, &u.FirstName, &u.LastName, &u.UserRole,
		&u.CanRead, &u.CanWrite, &u.CanDelete, &u.CanAdmin, &u.IsVerified,
	)
	if err != nil {
		return nil, translate("lookup session", err)
	}
	return &u, nil
}

// LookupDemoSession resolves a demo session token. Demo sessions map to a
// synthetic read/write user that cannot delete or administer.
func (s *Store) LookupDemoSession(ctx context.Context, token string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ds.id, ds.expires_at, dac.code
		FROM demo_sessions ds
		JOIN demo_access_codes dac ON ds.access_code_id = dac.id
		WHERE ds.session_token = ?
		AND ds.expires_at > ?
		AND dac.is_active = TRUE
	`, token, s.timestamp())

	u := User{
		UserID:     DemoUserID,
		Username:   "demo_user",
		Email:      "demo@ruff.uno",
		FirstName:  "Demo",
		LastName:   "User",
		UserRole:   "demo",
		CanRead:    true,
		CanWrite:   true,
		IsVerified: true,
		IsDemo:     true,
	}
	if err := row.Scan(&u.SessionID, &u.ExpiresAt, &u.DemoCode); err != nil {
		return nil, translate("lookup demo session", err)
	}
	return &u, nil
}

// NewUser describes an account to create.
type NewUser struct {
	Username   string
	Email      string
	FirstName  string
	LastName   string
	Role       string
	CanWrite   bool
	CanDelete  bool
	CanAdmin   bool
	IsVerified bool
}

// CreateUser inserts an account. Duplicate usernames return ErrConflict.
func (s *Store) CreateUser(ctx context.Context, nu NewUser) (int64, error) {
	role := nu.Role
	if role == "" {
		role = "user"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users
		(username, email, first_name, last_name, user_role,
		 can_read, can_write, can_delete, can_admin, is_verified, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, TRUE, ?, ?, ?, ?, TRUE, ?)
	`, nu.Username, nu.Email, nu.FirstName, nu.LastName, role,
		nu.CanWrite, nu.CanDelete, nu.CanAdmin, nu.IsVerified, s.timestamp())
	if err != nil {
		return 0, translate("create user", err)
	}
	return res.LastInsertId()
}

// UserIDByName returns the id of an active user.
func (s *Store) UserIDByName(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM users WHERE username = ? AND is_active = TRUE
	`, username).Scan(&id)
	if err != nil {
		return 0, translate("user by name", err)
	}
	return id, nil
}

// CreateSession stores a session token for a user valid for ttl.
func (s *Store) CreateSession(ctx context.Context, userID int64, token string, ttl time.Duration) (time.Time, error) {
	now := s.timestamp()
	expires := now.Add(ttl)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (user_id, session_token, expires_at, is_active, created_at)
		VALUES (?, ?, ?, TRUE, ?)
	`, userID, token, expires, now)
	if err != nil {
		return time.Time{}, translate("create session", err)
	}
	return expires, nil
}

// RevokeSession deactivates a session token.
func (s *Store) RevokeSession(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions SET is_active = FALSE WHERE session_token = ?
	`, token)
	if err != nil {
		return translate("revoke session", err)
	}
	return requireAffected("revoke session", res)
}

// CreateDemoSession stores a demo session for an access code, creating the
// code if needed. Used by local administration and tests.
func (s *Store) CreateDemoSession(ctx context.Context, code, token string, ttl time.Duration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO demo_access_codes (code, is_active) VALUES (?, TRUE)
			ON CONFLICT(code) DO NOTHING
		`, code); err != nil {
			return translate("create demo code", err)
		}
		var codeID int64
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM demo_access_codes WHERE code = ?
		`, code).Scan(&codeID); err != nil {
			return translate("create demo session", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO demo_sessions (access_code_id, session_token, expires_at)
			VALUES (?, ?, ?)
		`, codeID, token, s.timestamp().Add(ttl)); err != nil {
			return translate("create demo session", err)
		}
		return nil
	})
}

// requireAffected returns ErrNotFound when a write touched no rows.
func requireAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
