package procurement

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"incmgr/internal/audit"
	"incmgr/internal/handlers/common"
	"incmgr/internal/inspection"
	"incmgr/internal/server"
	"incmgr/internal/validation"
)

// saveButton is the worklist's save control as the template sees it.
type saveButton struct {
	Enabled bool
}

func (b *saveButton) SetEnabled(enabled bool) { b.Enabled = enabled }

type rowView struct {
	inspection.IndexedRow
	CodeOK bool
	// LegalName is the registered name of the row's supplier, if any.
	LegalName string
}

type groupView struct {
	Notice int
	Rows   []rowView
}

type worklistView struct {
	Groups  []groupView
	Save    saveButton
	Total   int
	Pending int
	Scroll  string
}

func buildWorklistView(rows []inspection.Row, legalNames map[string]string) worklistView {
	v := worklistView{Total: len(rows)}
	for _, g := range inspection.GroupByNotice(rows) {
		gv := groupView{Notice: g.Notice}
		for _, ir := range g.Rows {
			if !ir.Flags().Processed() {
				v.Pending++
			}
			gv.Rows = append(gv.Rows, rowView{
				IndexedRow: ir,
				CodeOK:     validation.ValidItemCode(ir.Item),
				LegalName:  legalNames[strings.ToUpper(strings.TrimSpace(ir.Supplier))],
			})
		}
		v.Groups = append(v.Groups, gv)
	}
	if _, err := inspection.SyncSaveControl(&v.Save, inspection.RowFlags(rows)); err != nil {
		log.Printf("worklist: %v", err)
	}
	return v
}

// Worklist renders the user's rows grouped by receiving notice.
func (h *Handler) Worklist(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	rows, err := h.Store.Worklist(r.Context(), sess.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		common.Redirect(w, r, "/inspection/import", "info", "No rows to inspect. Import a receiving report first.")
		return
	}

	v := buildWorklistView(rows, h.legalNames(r))
	if s := r.URL.Query().Get("scroll"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			v.Scroll = strconv.Itoa(n)
		}
	}
	h.Render(w, r, http.StatusOK, "worklist", "Inspection", v)
}

func (h *Handler) legalNames(r *http.Request) map[string]string {
	if h.SupplierStore == nil {
		return nil
	}
	names, err := h.SupplierStore.LegalNames(r.Context())
	if err != nil {
		log.Printf("worklist: supplier names: %v", err)
	}
	return names
}

// RowAction marks one row inspected or postponed.
func (h *Handler) RowAction(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())

	action, err := inspection.ParseAction(r.FormValue("action"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(r.FormValue("row_index"))
	if err != nil || index < 0 {
		http.Error(w, "invalid row_index", http.StatusBadRequest)
		return
	}

	if err := h.Store.Apply(r.Context(), sess.UserID, index, action); err != nil {
		if errors.Is(err, inspection.ErrRowIndex) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Audit(r, audit.ActionUpdate, "worklist", strconv.Itoa(index), fmt.Sprintf("Row %d %s", index, action.Status()))
	h.Hub.NotifyChange(sess.UserID, "worklist", "update", index)

	target := "/inspection"
	if n, err := strconv.Atoi(r.FormValue("scroll_position")); err == nil && n > 0 {
		target += "?scroll=" + strconv.Itoa(n)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Save stores the worklist as a routine once every row is processed.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())

	rt, err := h.Store.SaveRoutine(r.Context(), sess.UserID)
	switch {
	case errors.Is(err, inspection.ErrEmptyWorklist):
		common.Redirect(w, r, "/inspection/import", "warning", "No rows to save.")
		return
	case errors.Is(err, inspection.ErrIncomplete):
		common.Redirect(w, r, "/inspection", "danger", "Every row must be inspected or postponed before saving the routine.")
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	inspected, postponed := rt.Counts()
	h.Audit(r, audit.ActionCreate, "routine", rt.ID,
		fmt.Sprintf("Saved routine: %d inspected, %d postponed", inspected, postponed))
	h.Hub.NotifyChange(sess.UserID, "worklist", "save", rt.ID)
	common.Redirect(w, r, "/inspection/routines", "success", "Inspection routine saved.")
}

type importView struct {
	PendingRows int
}

// ImportForm renders the .lst upload form. A CRM token is required first.
func (h *Handler) ImportForm(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	if !h.hasCRMToken(w, r, sess) {
		return
	}
	rows, err := h.Store.Worklist(r.Context(), sess.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Render(w, r, http.StatusOK, "import", "Import", importView{PendingRows: len(rows)})
}

// Import parses an uploaded .lst report into a fresh worklist.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	if !h.hasCRMToken(w, r, sess) {
		return
	}

	if err := r.ParseMultipartForm(h.UploadMaxBytes); err != nil {
		common.Redirect(w, r, "/inspection/import", "danger", "Upload too large or malformed.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		common.Redirect(w, r, "/inspection/import", "danger", "No file selected.")
		return
	}
	defer file.Close()

	var ve validation.ValidationErrors
	validation.ValidateUploadName(&ve, "file", header.Filename, ".lst")
	if ve.HasErrors() {
		common.Redirect(w, r, "/inspection/import", "danger", ve.Error())
		return
	}

	rows, err := inspection.ParseLST(file)
	if err != nil {
		common.Redirect(w, r, "/inspection/import", "danger", "Could not read the report: "+err.Error())
		return
	}
	if len(rows) == 0 {
		common.Redirect(w, r, "/inspection/import", "warning", "No valid rows were imported.")
		return
	}
	if err := h.Store.ReplaceWorklist(r.Context(), sess.UserID, rows); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Audit(r, audit.ActionImport, "worklist", header.Filename, fmt.Sprintf("Imported %d rows", len(rows)))
	h.Hub.NotifyChange(sess.UserID, "worklist", "replace", len(rows))
	common.Redirect(w, r, "/inspection", "success", fmt.Sprintf("Imported %d rows.", len(rows)))
}
