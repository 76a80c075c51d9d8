// Package routes wires handlers and middleware into the server's handler.
package routes

import (
	"net/http"

	"incmgr/internal/crm"
	"incmgr/internal/handlers/admin"
	"incmgr/internal/handlers/common"
	"incmgr/internal/handlers/procurement"
	"incmgr/internal/handlers/quality"
	"incmgr/internal/inspection"
	"incmgr/internal/nonconformance"
	"incmgr/internal/server"
	"incmgr/internal/suppliers"
	"incmgr/internal/ui"
)

// New returns the complete HTTP handler for app.
func New(app *server.App, renderer *ui.Renderer) http.Handler {
	base := &common.Handler{DB: app.DB, UI: renderer, CompanyName: app.Config.CompanyName}
	accounts := &admin.Handler{Handler: base, Hub: app.Hub, SessionTTL: app.Config.SessionTTL}
	supplierStore := &suppliers.Store{DB: app.DB}
	receiving := &procurement.Handler{
		Handler:        base,
		Hub:            app.Hub,
		Store:          &inspection.Store{DB: app.DB},
		Tokens:         &crm.TokenStore{DB: app.DB},
		SupplierStore:  supplierStore,
		CRMBaseURL:     app.Config.CRMBaseURL,
		UploadMaxBytes: app.Config.UploadMaxBytes,
	}
	incs := &quality.Handler{
		Handler:         base,
		Hub:             app.Hub,
		Store:           &nonconformance.Store{DB: app.DB},
		Suppliers:       supplierStore,
		Photos:          nonconformance.PhotoDir{Root: app.Config.UploadDir},
		Printer:         &nonconformance.Printer{Addr: app.Config.PrinterAddr},
		Representatives: app.Config.Representatives,
		PerPage:         app.Config.PageSize,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /static/", ui.Static())
	mux.HandleFunc("GET /theme.css", accounts.ThemeCSS)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/inspection", http.StatusSeeOther)
	})

	// Accounts
	mux.HandleFunc("GET /login", accounts.LoginForm)
	mux.HandleFunc("POST /login", accounts.Login)
	mux.HandleFunc("POST /logout", accounts.Logout)
	mux.HandleFunc("GET /users", server.RequireAdmin(accounts.Users))
	mux.HandleFunc("POST /users", server.RequireAdmin(accounts.CreateUserForm))
	mux.HandleFunc("POST /users/{id}", server.RequireAdmin(accounts.UserForm))
	mux.HandleFunc("GET /layout", server.RequireAdmin(accounts.Layout))
	mux.HandleFunc("POST /layout", server.RequireAdmin(accounts.SaveLayout))
	mux.HandleFunc("POST /prefs/night-mode", accounts.ToggleNightMode)
	mux.HandleFunc("GET /ws", accounts.Events)

	// CRM
	mux.HandleFunc("GET /crm/token", receiving.TokenForm)
	mux.HandleFunc("POST /crm/token", receiving.CaptureToken)
	mux.HandleFunc("GET /api/v1/crm/link", receiving.Link)

	// Inspection
	mux.HandleFunc("GET /inspection", receiving.Worklist)
	mux.HandleFunc("POST /inspection/rows", receiving.RowAction)
	mux.HandleFunc("POST /inspection/save", receiving.Save)
	mux.HandleFunc("GET /inspection/import", receiving.ImportForm)
	mux.HandleFunc("POST /inspection/import", receiving.Import)
	mux.HandleFunc("GET /inspection/routines", receiving.Routines)
	mux.HandleFunc("GET /inspection/routines/{id}/export", receiving.Export)

	// Suppliers
	mux.HandleFunc("GET /suppliers", server.RequireAdmin(receiving.Suppliers))
	mux.HandleFunc("POST /suppliers", server.RequireAdmin(receiving.CreateSupplier))
	mux.HandleFunc("POST /suppliers/{id}", server.RequireAdmin(receiving.SupplierForm))

	// Nonconformance reports
	mux.HandleFunc("GET /inc", incs.List)
	mux.HandleFunc("POST /inc", incs.Create)
	mux.HandleFunc("GET /inc/new", incs.NewForm)
	mux.HandleFunc("GET /inc/overdue", incs.Overdue)
	mux.HandleFunc("GET /inc/export", incs.Export)
	mux.HandleFunc("GET /inc/monitor", incs.Monitor)
	mux.HandleFunc("GET /inc/monitor/pdf", incs.MonitorPDF)
	mux.HandleFunc("GET /inc/{id}", incs.Detail)
	mux.HandleFunc("POST /inc/{id}", incs.Update)
	mux.HandleFunc("GET /inc/{id}/edit", incs.EditForm)
	mux.HandleFunc("POST /inc/{id}/delete", incs.Delete)
	mux.HandleFunc("POST /inc/{id}/photos/remove", incs.RemovePhoto)
	mux.HandleFunc("GET /inc/{id}/pdf", incs.PDF)
	mux.HandleFunc("POST /inc/{id}/label", incs.PrintLabel)
	mux.HandleFunc("GET /uploads/{name}", incs.Photo)

	limiter := server.NewRateLimiter()
	var h http.Handler = mux
	h = server.CSRFMiddleware(app.DB)(h)
	h = server.RequireAuth(app.DB, app.Config.SessionTTL)(h)
	h = server.BodyLimit(app.Config.UploadMaxBytes)(h)
	h = server.LoginRateLimit(limiter)(h)
	h = server.GzipMiddleware(h)
	h = server.SecurityHeaders(h)
	h = server.LoggingMiddleware(h)
	return h
}
