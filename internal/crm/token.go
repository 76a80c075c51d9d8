package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TokenStore keeps the CRM token on the server-side session row so it is
// never rendered into a page.
type TokenStore struct {
	DB *sql.DB
}

// Set stores token on the session identified by sessionToken.
func (s *TokenStore) Set(ctx context.Context, sessionToken, token string) error {
	res, err := s.DB.ExecContext(ctx, "UPDATE sessions SET crm_token = ? WHERE token = ?", token, sessionToken)
	if err != nil {
		return fmt.Errorf("store crm token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("session not found")
	}
	return nil
}

// Get returns the session's CRM token, or "" when none was captured.
func (s *TokenStore) Get(ctx context.Context, sessionToken string) (string, error) {
	var token string
	err := s.DB.QueryRowContext(ctx, "SELECT COALESCE(crm_token, '') FROM sessions WHERE token = ?", sessionToken).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load crm token: %w", err)
	}
	return token, nil
}
