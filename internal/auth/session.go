package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TimeLayout is how timestamps are stored; it sorts like CURRENT_TIMESTAMP.
const TimeLayout = "2006-01-02 15:04:05"

const (
	SessionCookie     = "incmgr_session"
	InactivityTimeout = 30 * time.Minute
	CSRFTokenTTL      = 24 * time.Hour
)

var (
	ErrNoSession       = errors.New("no valid session")
	ErrSessionIdle     = errors.New("session expired due to inactivity")
	ErrAccountInactive = errors.New("account deactivated")
)

// Session is an authenticated browser session.
type Session struct {
	Token       string
	UserID      int
	Username    string
	DisplayName string
	Role        string
	ExpiresAt   time.Time
}

func (s Session) IsAdmin() bool { return s.Role == "admin" }

// CreateSession stores a new session for userID valid for ttl.
func CreateSession(ctx context.Context, db *sql.DB, userID int, ttl time.Duration) (string, time.Time, error) {
	cutoff := time.Now().UTC().Format(TimeLayout)
	db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", cutoff)
	db.ExecContext(ctx, "DELETE FROM csrf_tokens WHERE expires_at < ?", cutoff)

	token := GenerateToken()
	expires := time.Now().UTC().Add(ttl)
	_, err := db.ExecContext(ctx, "INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expires.Format(TimeLayout), time.Now().UTC().Format(TimeLayout))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}
	return token, expires, nil
}

// LookupSession resolves a session token and slides its expiry forward.
func LookupSession(ctx context.Context, db *sql.DB, token string, ttl time.Duration) (Session, error) {
	now := time.Now().UTC()
	var s Session
	var active int
	var lastActivity string
	err := db.QueryRowContext(ctx, `SELECT s.user_id, u.username, COALESCE(u.display_name, ''), u.role, u.active,
			COALESCE(s.last_activity, s.created_at)
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > ?`, token, now.Format(TimeLayout)).
		Scan(&s.UserID, &s.Username, &s.DisplayName, &s.Role, &active, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}

	if last, err := time.Parse(TimeLayout, lastActivity); err == nil && now.Sub(last) > InactivityTimeout {
		DeleteSession(ctx, db, token)
		return Session{}, ErrSessionIdle
	}
	if active == 0 {
		return Session{}, ErrAccountInactive
	}

	s.Token = token
	s.ExpiresAt = now.Add(ttl)
	db.ExecContext(ctx, "UPDATE sessions SET expires_at = ?, last_activity = ? WHERE token = ?",
		s.ExpiresAt.Format(TimeLayout), now.Format(TimeLayout), token)
	return s, nil
}

// DeleteSession ends a session.
func DeleteSession(ctx context.Context, db *sql.DB, token string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// IssueCSRFToken creates a CSRF token bound to userID.
func IssueCSRFToken(ctx context.Context, db *sql.DB, userID int) (string, error) {
	token := GenerateToken()
	_, err := db.ExecContext(ctx, "INSERT INTO csrf_tokens (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, time.Now().UTC().Add(CSRFTokenTTL).Format(TimeLayout))
	if err != nil {
		return "", fmt.Errorf("issue csrf token: %w", err)
	}
	return token, nil
}

// CSRFTokenFor returns a live CSRF token for userID, issuing one if needed.
func CSRFTokenFor(ctx context.Context, db *sql.DB, userID int) (string, error) {
	var token string
	err := db.QueryRowContext(ctx, `SELECT token FROM csrf_tokens WHERE user_id = ? AND expires_at > ?
		ORDER BY expires_at DESC LIMIT 1`, userID, time.Now().UTC().Add(time.Hour).Format(TimeLayout)).Scan(&token)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return IssueCSRFToken(ctx, db, userID)
}

// ValidCSRFToken reports whether token is live and belongs to userID.
func ValidCSRFToken(ctx context.Context, db *sql.DB, token string, userID int) bool {
	if token == "" {
		return false
	}
	var owner int
	err := db.QueryRowContext(ctx, "SELECT user_id FROM csrf_tokens WHERE token = ? AND expires_at > ?",
		token, time.Now().UTC().Format(TimeLayout)).Scan(&owner)
	return err == nil && owner == userID
}
