// Package quality serves nonconformance reports (INCs) and supplier
// monitoring.
package quality

import (
	"time"

	"incmgr/internal/handlers/common"
	"incmgr/internal/nonconformance"
	"incmgr/internal/suppliers"
	"incmgr/internal/websocket"
)

// Handler holds dependencies for the INC handlers.
type Handler struct {
	*common.Handler
	Hub       *websocket.Hub
	Store     *nonconformance.Store
	Suppliers *suppliers.Store
	Photos    nonconformance.PhotoDir
	Printer   *nonconformance.Printer

	// Representatives restricts the representative field when non-empty.
	Representatives []string
	PerPage         int

	// Now is swapped out in tests.
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
