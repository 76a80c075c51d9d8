package server

import (
	"context"
	"database/sql"

	"incmgr/internal/auth"
	"incmgr/internal/config"
	"incmgr/internal/websocket"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const CtxSession ContextKey = "session"

// App holds shared dependencies for the application.
type App struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	Config config.Config
}

// WithSession returns ctx carrying s.
func WithSession(ctx context.Context, s auth.Session) context.Context {
	return context.WithValue(ctx, CtxSession, s)
}

// SessionFrom returns the authenticated session stored by RequireAuth.
func SessionFrom(ctx context.Context) (auth.Session, bool) {
	s, ok := ctx.Value(CtxSession).(auth.Session)
	return s, ok
}
