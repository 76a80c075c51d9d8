package admin

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"incmgr/internal/audit"
	"incmgr/internal/handlers/common"
	"incmgr/internal/theme"
	"incmgr/internal/validation"
)

type layoutView struct {
	Settings []theme.Setting
	Fonts    []string
}

func (h *Handler) themeStore() *theme.Store {
	return &theme.Store{DB: h.DB}
}

// Layout renders the colour and font editor. Admin only.
func (h *Handler) Layout(w http.ResponseWriter, r *http.Request) {
	settings, err := h.themeStore().All(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Render(w, r, http.StatusOK, "layout_editor", "Layout", layoutView{Settings: settings, Fonts: theme.Fonts})
}

// SaveLayout stores the style of one element. Admin only.
func (h *Handler) SaveLayout(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(strings.TrimSpace(r.FormValue("font_size")))
	if err != nil {
		common.Redirect(w, r, "/layout", "danger", "font_size: must be a whole number")
		return
	}
	s := theme.Setting{
		Element:    r.FormValue("element"),
		Foreground: r.FormValue("foreground"),
		Background: r.FormValue("background"),
		FontFamily: r.FormValue("font_family"),
		FontSize:   size,
	}
	if err := h.themeStore().Save(r.Context(), s); err != nil {
		var ve *validation.ValidationErrors
		if errors.As(err, &ve) {
			common.Redirect(w, r, "/layout", "danger", err.Error())
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Audit(r, audit.ActionUpdate, "layout", s.Element, "Updated layout of "+s.Element)
	common.Redirect(w, r, "/layout", "success", "Layout updated.")
}

// ThemeCSS serves the saved layout as a stylesheet. Elements nobody edited
// keep the stock look. It is public so the login page is styled too.
func (h *Handler) ThemeCSS(w http.ResponseWriter, r *http.Request) {
	settings, err := h.themeStore().Saved(r.Context())
	if err != nil {
		log.Printf("theme css: %v", err)
		settings = nil
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(theme.CSS(settings)))
}
