package admin

import (
	"log"
	"net/http"

	"incmgr/internal/response"
	"incmgr/internal/server"
)

// ToggleNightMode flips the user's theme and returns the new value.
func (h *Handler) ToggleNightMode(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	on, err := h.NightMode(sess).Toggle(r.Context())
	if err != nil {
		log.Printf("toggle night mode for user %d: %v", sess.UserID, err)
		response.Err(w, "could not save preference", http.StatusInternalServerError)
		return
	}
	response.JSON(w, map[string]bool{"night_mode": on})
}

// Events upgrades to a websocket carrying the user's worklist events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	h.Hub.Serve(sess.UserID, w, r)
}
