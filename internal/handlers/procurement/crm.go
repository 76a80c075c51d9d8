package procurement

import (
	"errors"
	"log"
	"net/http"

	"incmgr/internal/audit"
	"incmgr/internal/auth"
	"incmgr/internal/crm"
	"incmgr/internal/handlers/common"
	"incmgr/internal/response"
	"incmgr/internal/server"
)

// hasCRMToken redirects to the token capture page when the session has no
// CRM token yet.
func (h *Handler) hasCRMToken(w http.ResponseWriter, r *http.Request, sess auth.Session) bool {
	token, err := h.Tokens.Get(r.Context(), sess.Token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return false
	}
	if token == "" {
		common.Redirect(w, r, "/crm/token", "warning", "Paste a CRM link to capture your CRM token first.")
		return false
	}
	return true
}

type tokenView struct {
	HasToken bool
}

// TokenForm shows whether a CRM token has been captured for this session.
func (h *Handler) TokenForm(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	token, err := h.Tokens.Get(r.Context(), sess.Token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Render(w, r, http.StatusOK, "crm_token", "CRM token", tokenView{HasToken: token != ""})
}

// CaptureToken extracts the token parameter from a pasted CRM link.
func (h *Handler) CaptureToken(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	token, err := crm.ExtractToken(r.FormValue("crm_link"))
	if err != nil {
		common.Redirect(w, r, "/crm/token", "danger", "No token found in that link.")
		return
	}
	if err := h.Tokens.Set(r.Context(), sess.Token, token); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Audit(r, audit.ActionUpdate, "crm_token", "", "Captured CRM token")
	common.Redirect(w, r, "/inspection/import", "success", "CRM token captured.")
}

// Link answers the deep link for one item. The token never leaves the
// server any other way.
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	token, err := h.Tokens.Get(r.Context(), sess.Token)
	if err != nil {
		response.Err(w, "internal error", http.StatusInternalServerError)
		return
	}

	item := r.URL.Query().Get("item")
	link, err := crm.BuildLink(h.CRMBaseURL, item, token)
	if err != nil {
		log.Printf("crm link for %q: %v", item, err)
		response.ErrCode(w, err.Error(), crm.ErrorCode(err), linkStatus(err))
		return
	}

	h.Audit(r, audit.ActionOpenLink, "crm", item, "Opened CRM link for "+item)
	response.JSON(w, map[string]string{"url": link})
}

func linkStatus(err error) int {
	switch {
	case errors.Is(err, crm.ErrTokenUnavailable):
		return http.StatusPreconditionFailed
	case errors.Is(err, crm.ErrConfigUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
