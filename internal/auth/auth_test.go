package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"incmgr/internal/auth"
	"incmgr/internal/testutil"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("Correct-Horse-1")
	if err != nil {
		t.Fatalf("auth.HashPassword: %v", err)
	}
	if !auth.CheckPassword(hash, "Correct-Horse-1") {
		t.Error("expected password to match its hash")
	}
	if auth.CheckPassword(hash, "correct-horse-1") {
		t.Error("expected a different password to be rejected")
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"short1A!", false},
		{"alllowercaseletters", false},
		{"lowercase1234567", false},
		{"Lowercase1234567", true},
		{"lowercase-12345", true},
		{"UPPER_lower_case", true},
	}
	for _, tt := range tests {
		err := auth.ValidatePasswordStrength(tt.password)
		if tt.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tt.password, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%q: expected an error", tt.password)
		}
	}
}

func TestGenerateToken(t *testing.T) {
	a, b := auth.GenerateToken(), auth.GenerateToken()
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("tokens should be unique")
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	uid := testutil.UserID(t, db, "admin")

	token, expires, err := auth.CreateSession(ctx, db, uid, time.Hour)
	if err != nil {
		t.Fatalf("auth.CreateSession: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Errorf("expires too early: %v", expires)
	}

	sess, err := auth.LookupSession(ctx, db, token, time.Hour)
	if err != nil {
		t.Fatalf("auth.LookupSession: %v", err)
	}
	if sess.Username != "admin" || !sess.IsAdmin() || sess.Token != token {
		t.Errorf("unexpected session %+v", sess)
	}

	if err := auth.DeleteSession(ctx, db, token); err != nil {
		t.Fatalf("auth.DeleteSession: %v", err)
	}
	if _, err := auth.LookupSession(ctx, db, token, time.Hour); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("expected auth.ErrNoSession after delete, got %v", err)
	}
}

func TestSessionInactivity(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	token := testutil.LoginAdmin(t, db)

	idle := time.Now().UTC().Add(-auth.InactivityTimeout - time.Minute).Format(auth.TimeLayout)
	if _, err := db.Exec("UPDATE sessions SET last_activity = ? WHERE token = ?", idle, token); err != nil {
		t.Fatal(err)
	}
	if _, err := auth.LookupSession(ctx, db, token, time.Hour); !errors.Is(err, auth.ErrSessionIdle) {
		t.Errorf("expected auth.ErrSessionIdle, got %v", err)
	}
}

func TestSessionInactiveAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	uid := testutil.CreateTestUser(t, db, "gone", "password", "user", false)
	token := testutil.CreateTestSession(t, db, uid)

	if _, err := auth.LookupSession(ctx, db, token, time.Hour); !errors.Is(err, auth.ErrAccountInactive) {
		t.Errorf("expected auth.ErrAccountInactive, got %v", err)
	}
}

func TestCSRFTokens(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	admin := testutil.UserID(t, db, "admin")
	other := testutil.CreateTestUser(t, db, "inspector", "password", "user", true)

	tok, err := auth.CSRFTokenFor(ctx, db, admin)
	if err != nil {
		t.Fatalf("auth.CSRFTokenFor: %v", err)
	}
	again, err := auth.CSRFTokenFor(ctx, db, admin)
	if err != nil {
		t.Fatal(err)
	}
	if tok != again {
		t.Error("expected the live token to be reused")
	}

	if !auth.ValidCSRFToken(ctx, db, tok, admin) {
		t.Error("token should be valid for its owner")
	}
	if auth.ValidCSRFToken(ctx, db, tok, other) {
		t.Error("token must not be valid for another user")
	}
	if auth.ValidCSRFToken(ctx, db, "", admin) || auth.ValidCSRFToken(ctx, db, "bogus", admin) {
		t.Error("empty or unknown tokens must be rejected")
	}
}

func TestLockout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < auth.MaxFailedLoginAttempts-1; i++ {
		if err := auth.RecordFailedLogin(ctx, db, "admin", now); err != nil {
			t.Fatal(err)
		}
	}
	if locked, _ := auth.IsLocked(ctx, db, "admin", now); locked {
		t.Fatal("locked before reaching the limit")
	}

	auth.RecordFailedLogin(ctx, db, "admin", now)
	if locked, _ := auth.IsLocked(ctx, db, "admin", now); !locked {
		t.Fatal("expected lockout at the limit")
	}
	if locked, _ := auth.IsLocked(ctx, db, "admin", now.Add(auth.AccountLockoutDuration+time.Minute)); locked {
		t.Error("lockout should expire")
	}

	auth.ClearFailedLogins(ctx, db, "admin")
	if locked, _ := auth.IsLocked(ctx, db, "admin", now); locked {
		t.Error("clearing should unlock")
	}

	if _, err := auth.IsLocked(ctx, db, "nobody", now); err == nil {
		t.Error("expected an error for an unknown user")
	}
}

func TestLockoutExpiryStartsFreshCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < auth.MaxFailedLoginAttempts; i++ {
		auth.RecordFailedLogin(ctx, db, "admin", now)
	}
	if locked, _ := auth.IsLocked(ctx, db, "admin", now); !locked {
		t.Fatal("expected lockout at the limit")
	}

	later := now.Add(auth.AccountLockoutDuration + time.Minute)
	if err := auth.RecordFailedLogin(ctx, db, "admin", later); err != nil {
		t.Fatal(err)
	}
	if locked, _ := auth.IsLocked(ctx, db, "admin", later); locked {
		t.Error("one typo after the lock expired should not relock the account")
	}

	var attempts int
	if err := db.QueryRow("SELECT failed_login_attempts FROM users WHERE username = 'admin'").Scan(&attempts); err != nil {
		t.Fatal(err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestIsLockedClearsExpiredLock(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < auth.MaxFailedLoginAttempts; i++ {
		auth.RecordFailedLogin(ctx, db, "admin", now)
	}
	if locked, _ := auth.IsLocked(ctx, db, "admin", now.Add(auth.AccountLockoutDuration+time.Minute)); locked {
		t.Fatal("lockout should expire")
	}

	var attempts int
	var lockedUntil *string
	err := db.QueryRow("SELECT failed_login_attempts, locked_until FROM users WHERE username = 'admin'").Scan(&attempts, &lockedUntil)
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 0 || lockedUntil != nil {
		t.Errorf("after expiry: attempts=%d locked_until=%v, want 0 and NULL", attempts, lockedUntil)
	}
}

func TestCreateSessionPrunesExpiredCSRFTokens(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	adminID := testutil.UserID(t, db, "admin")

	stale := time.Now().UTC().Add(-time.Hour).Format(auth.TimeLayout)
	if _, err := db.Exec("INSERT INTO csrf_tokens (token, user_id, expires_at) VALUES ('stale', ?, ?)", adminID, stale); err != nil {
		t.Fatal(err)
	}
	live, err := auth.IssueCSRFToken(ctx, db, adminID)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := auth.CreateSession(ctx, db, adminID, time.Hour); err != nil {
		t.Fatal(err)
	}

	var n int
	db.QueryRow("SELECT COUNT(*) FROM csrf_tokens WHERE token = 'stale'").Scan(&n)
	if n != 0 {
		t.Error("expired csrf token survived CreateSession")
	}
	if !auth.ValidCSRFToken(ctx, db, live, adminID) {
		t.Error("live csrf token was pruned")
	}
}
