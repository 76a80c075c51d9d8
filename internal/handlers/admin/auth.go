package admin

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"incmgr/internal/audit"
	"incmgr/internal/auth"
	"incmgr/internal/handlers/common"
	"incmgr/internal/server"
	"incmgr/internal/ui"
)

type loginView struct {
	Next     string
	Username string
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/inspection"
	}
	return next
}

// LoginForm renders the sign-in page.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, http.StatusOK, "login", "Sign in", loginView{Next: r.URL.Query().Get("next")})
}

// Login authenticates a user and creates a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	next := r.FormValue("next")
	now := time.Now()

	fail := func(status int, msg string) {
		w.Header().Set("Cache-Control", "no-store")
		ui.AddFlash(w, r, "danger", msg)
		h.Render(w, r, status, "login", "Sign in", loginView{Next: next, Username: username})
	}

	locked, err := auth.IsLocked(r.Context(), h.DB, username, now)
	if err == nil && locked {
		fail(http.StatusForbidden, "Account temporarily locked due to too many failed login attempts. Try again later.")
		return
	}

	var id, active int
	var hash string
	err = h.DB.QueryRowContext(r.Context(), "SELECT id, password_hash, active FROM users WHERE username = ?", username).
		Scan(&id, &hash, &active)
	if errors.Is(err, sql.ErrNoRows) {
		fail(http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !auth.CheckPassword(hash, password) {
		if err := auth.RecordFailedLogin(r.Context(), h.DB, username, now); err != nil {
			log.Printf("record failed login for %s: %v", username, err)
		}
		fail(http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if active == 0 {
		fail(http.StatusForbidden, "Account deactivated")
		return
	}

	auth.ClearFailedLogins(r.Context(), h.DB, username)
	token, expires, err := auth.CreateSession(r.Context(), h.DB, id, h.SessionTTL)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	h.DB.ExecContext(r.Context(), "UPDATE users SET last_login = ? WHERE id = ?", now.UTC().Format(auth.TimeLayout), id)
	if _, err := auth.IssueCSRFToken(r.Context(), h.DB, id); err != nil {
		log.Printf("issue csrf token for %s: %v", username, err)
	}

	http.SetCookie(w, server.SessionCookie(token, expires))
	audit.Log(r.Context(), h.DB, audit.Entry{
		Username:  username,
		Action:    audit.ActionLogin,
		Module:    "auth",
		Summary:   "Signed in",
		IPAddress: audit.ClientIP(r),
	})
	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

// Logout ends the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := server.SessionFrom(r.Context()); ok {
		h.Audit(r, audit.ActionLogout, "auth", "", "Signed out")
		if err := auth.DeleteSession(r.Context(), h.DB, sess.Token); err != nil {
			log.Printf("logout: %v", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	common.Redirect(w, r, "/login", "info", "Signed out.")
}
