package admin

import (
	"time"

	"incmgr/internal/handlers/common"
	"incmgr/internal/websocket"
)

// Handler holds dependencies for account, preference and websocket handlers.
type Handler struct {
	*common.Handler
	Hub        *websocket.Hub
	SessionTTL time.Duration
}
