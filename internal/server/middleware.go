package server

import (
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"incmgr/internal/audit"
	"incmgr/internal/auth"
	"incmgr/internal/response"
	"incmgr/internal/ui"
)

// GzipResponseWriter wraps http.ResponseWriter to support gzip compression.
type GzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w GzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// GzipMiddleware compresses responses when client supports gzip. Websocket
// upgrades pass through untouched.
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
			r.Header.Get("Range") != "" ||
			strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		next.ServeHTTP(GzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
	})
}

// LoggingMiddleware logs request method, path, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		csp := "default-src 'self'; " +
			"script-src 'self' https://cdn.jsdelivr.net; " +
			"style-src 'self' https://cdn.jsdelivr.net; " +
			"img-src 'self' data:; " +
			"connect-src 'self'"
		w.Header().Set("Content-Security-Policy", csp)
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// IsPublicPath reports whether a path is reachable without a session.
func IsPublicPath(path string) bool {
	return path == "/login" || path == "/theme.css" || strings.HasPrefix(path, "/static/")
}

func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// RequireAuth resolves the session cookie and stores the session in the
// request context. Pages redirect to /login; API calls get a JSON 401.
func RequireAuth(db *sql.DB, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			deny := func(msg, code string, status int) {
				if isAPI(r.URL.Path) {
					response.ErrCode(w, msg, code, status)
					return
				}
				target := "/login"
				if r.Method == http.MethodGet && r.URL.Path != "/" {
					target += "?next=" + url.QueryEscape(r.URL.RequestURI())
				}
				http.Redirect(w, r, target, http.StatusSeeOther)
			}

			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				deny("Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
				return
			}

			sess, err := auth.LookupSession(r.Context(), db, cookie.Value, ttl)
			switch {
			case errors.Is(err, auth.ErrSessionIdle):
				deny("Session expired due to inactivity", "SESSION_TIMEOUT", http.StatusUnauthorized)
				return
			case errors.Is(err, auth.ErrAccountInactive):
				response.ErrCode(w, "Account deactivated", "FORBIDDEN", http.StatusForbidden)
				return
			case err != nil:
				if !errors.Is(err, auth.ErrNoSession) {
					log.Printf("auth: %v", err)
				}
				deny("Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
				return
			}

			http.SetCookie(w, SessionCookie(sess.Token, sess.ExpiresAt))
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// SessionCookie builds the session cookie.
func SessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	}
}

// RequireAdmin restricts next to admin sessions.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFrom(r.Context())
		if !ok || !sess.IsAdmin() {
			http.Error(w, "Permission denied", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// CSRFField is the form field carrying the CSRF token.
const CSRFField = "csrf_token"

// CSRFMiddleware requires a CSRF token bound to the session's user on every
// state-changing request, from the X-CSRF-Token header or the csrf_token
// form field. It must run after RequireAuth.
func CSRFMiddleware(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions ||
				IsPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			sess, ok := SessionFrom(r.Context())
			if !ok {
				response.ErrCode(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
				return
			}

			token := r.Header.Get("X-CSRF-Token")
			if token == "" {
				if err := parseForm(r); err != nil {
					formError(w, r, err)
					return
				}
				token = r.FormValue(CSRFField)
			}
			if token == "" {
				response.ErrCode(w, "CSRF token required", "CSRF_TOKEN_MISSING", http.StatusForbidden)
				return
			}
			if !auth.ValidCSRFToken(r.Context(), db, token, sess.UserID) {
				response.ErrCode(w, "Invalid or expired CSRF token", "CSRF_TOKEN_INVALID", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxFormMemory matches the limit r.FormValue applies on its own.
const maxFormMemory = 32 << 20

func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	err := r.ParseMultipartForm(maxFormMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return err
}

// formError answers a body that could not be read, typically one cut off by
// BodyLimit. Pages get a flash and go back to the form.
func formError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	big := errors.As(err, &tooLarge)
	if isAPI(r.URL.Path) {
		if big {
			response.ErrCode(w, "Request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}
		response.ErrCode(w, "Malformed request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	log.Printf("form %s: %v", r.URL.Path, err)
	msg := "Upload too large or malformed."
	if big {
		msg = "Upload too large."
	}
	ui.AddFlash(w, r, "danger", msg)
	http.Redirect(w, r, r.URL.Path, http.StatusSeeOther)
}

// RateLimiter tracks request rates per key.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{requests: make(map[string][]time.Time)}
}

// Allow records a request for key and reports whether it is within limit
// requests per window, plus the time the window resets.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)
	kept := rl.requests[key][:0]
	for _, t := range rl.requests[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	reset := now.Add(window)
	if len(kept) > 0 {
		reset = kept[0].Add(window)
	}
	if len(kept) >= limit {
		rl.requests[key] = kept
		return false, reset
	}
	rl.requests[key] = append(kept, now)
	return true, reset
}

// LoginRateLimit allows five login posts per minute per client IP.
func LoginRateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/login" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ok, reset := rl.Allow("login:"+audit.ClientIP(r), 5, time.Minute)
			if !ok {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(reset).Seconds())+1))
				http.Error(w, "Too many login attempts. Try again in a minute.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimit caps request bodies at n bytes.
func BodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
