package auth

import (
	"context"
	"database/sql"
	"time"
)

const (
	MaxFailedLoginAttempts = 10
	AccountLockoutDuration = 15 * time.Minute
)

// RecordFailedLogin counts a bad password and locks the account once the
// limit is reached. A lock that has already expired starts a fresh count.
func RecordFailedLogin(ctx context.Context, db *sql.DB, username string, now time.Time) error {
	stamp := now.UTC().Format(TimeLayout)
	lockUntil := now.UTC().Add(AccountLockoutDuration).Format(TimeLayout)
	_, err := db.ExecContext(ctx, `UPDATE users
		SET failed_login_attempts = CASE
		        WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1
		        ELSE failed_login_attempts + 1
		    END,
		    locked_until = CASE
		        WHEN locked_until IS NOT NULL AND locked_until <= ? THEN NULL
		        WHEN failed_login_attempts + 1 >= ? THEN ?
		        ELSE locked_until
		    END
		WHERE username = ?`, stamp, stamp, MaxFailedLoginAttempts, lockUntil, username)
	return err
}

// ClearFailedLogins resets the counter after a successful login.
func ClearFailedLogins(ctx context.Context, db *sql.DB, username string) error {
	_, err := db.ExecContext(ctx, "UPDATE users SET failed_login_attempts = 0, locked_until = NULL WHERE username = ?", username)
	return err
}

// IsLocked reports whether the account is inside a lockout window.
func IsLocked(ctx context.Context, db *sql.DB, username string, now time.Time) (bool, error) {
	var lockedUntil sql.NullString
	err := db.QueryRowContext(ctx, "SELECT locked_until FROM users WHERE username = ?", username).Scan(&lockedUntil)
	if err != nil {
		return false, err
	}
	if !lockedUntil.Valid || lockedUntil.String == "" {
		return false, nil
	}
	until, err := time.Parse(TimeLayout, lockedUntil.String)
	if err != nil {
		return false, nil
	}
	if now.UTC().Before(until) {
		return true, nil
	}
	ClearFailedLogins(ctx, db, username)
	return false, nil
}
