package common

import (
	"database/sql"
	"log"
	"net/http"

	"incmgr/internal/audit"
	"incmgr/internal/auth"
	"incmgr/internal/prefs"
	"incmgr/internal/server"
	"incmgr/internal/ui"
)

// Handler holds dependencies shared by every page handler.
type Handler struct {
	DB          *sql.DB
	UI          *ui.Renderer
	CompanyName string
}

// Render fills the shared page fields from the request and renders name.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	p := ui.Page{
		Title:       title,
		CompanyName: h.CompanyName,
		Data:        data,
	}
	if sess, ok := server.SessionFrom(r.Context()); ok {
		p.Username = sess.Username
		p.IsAdmin = sess.IsAdmin()

		token, err := auth.CSRFTokenFor(r.Context(), h.DB, sess.UserID)
		if err != nil {
			log.Printf("csrf token for user %d: %v", sess.UserID, err)
		}
		p.CSRFToken = token

		on, err := h.NightMode(sess).Enabled(r.Context())
		if err != nil {
			log.Printf("night mode for user %d: %v", sess.UserID, err)
		}
		p.NightMode = on
	}
	p.Flashes = ui.TakeFlashes(w, r)
	h.UI.Render(w, status, name, p)
}

// NightMode returns the theme preference of the session's user.
func (h *Handler) NightMode(sess auth.Session) prefs.NightMode {
	return prefs.NightMode{Store: &prefs.UserStore{DB: h.DB, UserID: sess.UserID}}
}

// Redirect queues a flash message and sends a 303 to target.
func Redirect(w http.ResponseWriter, r *http.Request, target, kind, msg string) {
	if msg != "" {
		ui.AddFlash(w, r, kind, msg)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Audit records an audit entry attributed to the request's user.
func (h *Handler) Audit(r *http.Request, action, module, recordID, summary string) {
	e := audit.Entry{
		Action:    action,
		Module:    module,
		RecordID:  recordID,
		Summary:   summary,
		IPAddress: audit.ClientIP(r),
	}
	if sess, ok := server.SessionFrom(r.Context()); ok {
		e.Username = sess.Username
	}
	audit.Log(r.Context(), h.DB, e)
}
