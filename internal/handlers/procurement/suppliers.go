package procurement

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"incmgr/internal/audit"
	"incmgr/internal/handlers/common"
	"incmgr/internal/suppliers"
	"incmgr/internal/validation"
)

type suppliersView struct {
	Suppliers []suppliers.Supplier
}

// Suppliers lists the supplier registry. Admin only.
func (h *Handler) Suppliers(w http.ResponseWriter, r *http.Request) {
	list, err := h.SupplierStore.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Render(w, r, http.StatusOK, "suppliers", "Suppliers", suppliersView{Suppliers: list})
}

func supplierFromForm(r *http.Request) suppliers.Supplier {
	return suppliers.Supplier{
		LegalName: r.FormValue("legal_name"),
		CNPJ:      r.FormValue("cnpj"),
		LogixName: r.FormValue("logix_name"),
	}
}

// CreateSupplier registers a supplier. Admin only.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	s, err := h.SupplierStore.Create(r.Context(), supplierFromForm(r))
	if h.supplierError(w, r, err) {
		return
	}
	h.Audit(r, audit.ActionCreate, "supplier", strconv.Itoa(s.ID), "Created supplier "+s.LegalName)
	common.Redirect(w, r, "/suppliers", "success", "Supplier "+s.LegalName+" registered.")
}

// SupplierForm handles the update and delete buttons of one supplier row.
// Admin only.
func (h *Handler) SupplierForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch r.FormValue("action") {
	case "update":
		s := supplierFromForm(r)
		s.ID = id
		if h.supplierError(w, r, h.SupplierStore.Update(r.Context(), s)) {
			return
		}
		h.Audit(r, audit.ActionUpdate, "supplier", strconv.Itoa(id), fmt.Sprintf("Updated supplier %s", s.LegalName))
		common.Redirect(w, r, "/suppliers", "success", "Supplier updated.")
	case "delete":
		if h.supplierError(w, r, h.SupplierStore.Delete(r.Context(), id)) {
			return
		}
		h.Audit(r, audit.ActionDelete, "supplier", strconv.Itoa(id), "Deleted supplier")
		common.Redirect(w, r, "/suppliers", "success", "Supplier deleted.")
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

// supplierError answers err and reports whether it did.
func (h *Handler) supplierError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	var ve *validation.ValidationErrors
	switch {
	case errors.Is(err, suppliers.ErrNotFound):
		http.NotFound(w, r)
	case errors.As(err, &ve), errors.Is(err, suppliers.ErrDuplicateCNPJ):
		common.Redirect(w, r, "/suppliers", "danger", err.Error())
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
	return true
}
