package audit

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"strings"
)

// Action constants.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionImport   = "IMPORT"
	ActionExport   = "EXPORT"
	ActionLogin    = "LOGIN"
	ActionLogout   = "LOGOUT"
	ActionOpenLink = "OPEN_LINK"
	ActionPrint    = "PRINT"
)

// Entry is one audit_log row.
type Entry struct {
	Username  string
	Action    string
	Module    string
	RecordID  string
	Summary   string
	IPAddress string
}

// Log writes an audit entry. Failures are logged, never returned: auditing
// must not break the request that triggered it.
func Log(ctx context.Context, db *sql.DB, e Entry) {
	if e.Username == "" {
		e.Username = "system"
	}
	_, err := db.ExecContext(ctx, "INSERT INTO audit_log (username, action, module, record_id, summary, ip_address) VALUES (?, ?, ?, ?, ?, ?)",
		e.Username, e.Action, e.Module, e.RecordID, e.Summary, e.IPAddress)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
}

// ClientIP extracts the real client IP from the request (handles proxies).
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
