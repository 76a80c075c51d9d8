package procurement

import (
	"incmgr/internal/crm"
	"incmgr/internal/handlers/common"
	"incmgr/internal/inspection"
	"incmgr/internal/suppliers"
	"incmgr/internal/websocket"
)

// Handler holds dependencies for the receiving inspection handlers.
type Handler struct {
	*common.Handler
	Hub    *websocket.Hub
	Store  *inspection.Store
	Tokens *crm.TokenStore
	// SupplierStore is optional; without it the worklist shows suppliers
	// as the receiving report names them.
	SupplierStore *suppliers.Store

	// CRMBaseURL is the opaque deep-link base; empty disables CRM links.
	CRMBaseURL     string
	UploadMaxBytes int64
}
