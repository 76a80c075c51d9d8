package quality

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"incmgr/internal/audit"
	"incmgr/internal/datefmt"
	"incmgr/internal/export"
	"incmgr/internal/handlers/common"
	"incmgr/internal/nonconformance"
	"incmgr/internal/server"
	"incmgr/internal/validation"
)

// maxPhotoMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const maxPhotoMemory = 32 << 20

type listView struct {
	Filter    nonconformance.Filter
	Notice    string
	Page      nonconformance.Page
	Statuses  []string
	PrevURL   string
	NextURL   string
	ExportCSV string
	ExportXLS string
}

func filterFromQuery(q url.Values) (nonconformance.Filter, string) {
	f := nonconformance.Filter{
		Item:     strings.TrimSpace(q.Get("item")),
		Supplier: strings.TrimSpace(q.Get("supplier")),
	}
	notice := strings.TrimSpace(q.Get("notice"))
	if n, err := strconv.Atoi(notice); err == nil && n > 0 {
		f.Notice = n
	} else {
		notice = ""
	}
	if s := q.Get("status"); slices.Contains(nonconformance.Statuses, s) {
		f.Status = nonconformance.Status(s)
	}
	return f, notice
}

// encode renders f back into query parameters for paging links.
func encode(f nonconformance.Filter, extra ...string) string {
	q := url.Values{}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	if f.Notice > 0 {
		q.Set("notice", strconv.Itoa(f.Notice))
	}
	if f.Item != "" {
		q.Set("item", f.Item)
	}
	if f.Supplier != "" {
		q.Set("supplier", f.Supplier)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	return q.Encode()
}

// List shows INCs newest first, filtered by notice, item, supplier and
// status.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f, notice := filterFromQuery(r.URL.Query())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	p, err := h.Store.List(r.Context(), f, page, h.PerPage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	v := listView{
		Filter:    f,
		Notice:    notice,
		Page:      p,
		Statuses:  nonconformance.Statuses,
		ExportCSV: "/inc/export?" + encode(f, "format", "csv"),
		ExportXLS: "/inc/export?" + encode(f, "format", "xlsx"),
	}
	if p.Page > 1 {
		v.PrevURL = "/inc?" + encode(f, "page", strconv.Itoa(p.Page-1))
	}
	if p.Page < p.Pages {
		v.NextURL = "/inc?" + encode(f, "page", strconv.Itoa(p.Page+1))
	}
	h.Render(w, r, http.StatusOK, "inc_list", "INCs", v)
}

type formView struct {
	Report          nonconformance.Report
	New             bool
	Errors          []validation.ValidationError
	Suppliers       []string
	Representatives []string
	Urgencies       []string
	Statuses        []string
	Action          string
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, rep nonconformance.Report, isNew bool, err error) {
	v := formView{
		Report:          rep,
		New:             isNew,
		Representatives: h.Representatives,
		Urgencies:       nonconformance.Urgencies,
		Statuses:        nonconformance.Statuses,
		Action:          fmt.Sprintf("/inc/%d", rep.ID),
	}
	if isNew {
		v.Action = "/inc"
	}
	var ve *validation.ValidationErrors
	if errors.As(err, &ve) {
		v.Errors = ve.Errors
	} else if err != nil {
		v.Errors = []validation.ValidationError{{Field: "photos", Message: err.Error()}}
	}
	if h.Suppliers != nil {
		list, err := h.Suppliers.List(r.Context())
		if err != nil {
			log.Printf("inc form: suppliers: %v", err)
		}
		for _, s := range list {
			v.Suppliers = append(v.Suppliers, s.LegalName)
		}
	}
	title := "Edit INC"
	if isNew {
		title = "New INC"
	}
	h.Render(w, r, status, "inc_form", title, v)
}

// NewForm renders an empty INC form dated today.
func (h *Handler) NewForm(w http.ResponseWriter, r *http.Request) {
	rep := nonconformance.Report{
		Date:    h.now().UTC().Format(datefmt.HTMLLayout),
		Urgency: nonconformance.UrgencyModerate,
		Status:  nonconformance.StatusInProgress,
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("notice")); err == nil && n > 0 {
		rep.Notice = n
	}
	rep.Item = r.URL.Query().Get("item")
	rep.Supplier = r.URL.Query().Get("supplier")
	h.renderForm(w, r, http.StatusOK, rep, true, nil)
}

// reportFromForm reads the editable INC fields. Numbers that do not parse
// are reported as validation errors.
func reportFromForm(r *http.Request) (nonconformance.Report, error) {
	ve := &validation.ValidationErrors{}
	num := func(field string) int {
		s := strings.TrimSpace(r.FormValue(field))
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			ve.Add(field, "must be a whole number")
		}
		return n
	}
	rep := nonconformance.Report{
		Notice:            num("notice"),
		Date:              strings.TrimSpace(r.FormValue("date")),
		Representative:    r.FormValue("representative"),
		Supplier:          r.FormValue("supplier"),
		Item:              r.FormValue("item"),
		QtyReceived:       num("qty_received"),
		QtyDefective:      num("qty_defective"),
		DefectDescription: r.FormValue("defect_description"),
		Urgency:           nonconformance.Urgency(r.FormValue("urgency")),
		RecommendedAction: r.FormValue("recommended_action"),
		Status:            nonconformance.Status(r.FormValue("status")),
	}
	if ve.HasErrors() {
		return rep, ve
	}
	return rep, nil
}

func photoHeaders(r *http.Request) ([]*multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxPhotoMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	if r.MultipartForm == nil {
		return nil, nil
	}
	var out []*multipart.FileHeader
	for _, fh := range r.MultipartForm.File["photos"] {
		if fh.Filename != "" {
			out = append(out, fh)
		}
	}
	return out, nil
}

// savePhotos stores every uploaded photo. On failure the ones already saved
// are removed again.
func (h *Handler) savePhotos(headers []*multipart.FileHeader) ([]string, error) {
	var saved []string
	for _, fh := range headers {
		name, err := h.savePhoto(fh)
		if err != nil {
			h.removePhotos(saved)
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		saved = append(saved, name)
	}
	return saved, nil
}

func (h *Handler) savePhoto(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.Photos.Save(fh.Filename, f)
}

func (h *Handler) removePhotos(names []string) {
	for _, name := range names {
		if err := h.Photos.Remove(name); err != nil {
			log.Printf("remove photo %s: %v", name, err)
		}
	}
}

// Create records a new INC with its photos.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	headers, err := photoHeaders(r)
	if err != nil {
		common.Redirect(w, r, "/inc/new", "danger", "Upload too large or malformed.")
		return
	}
	rep, err := reportFromForm(r)
	if err != nil {
		h.renderForm(w, r, http.StatusBadRequest, rep, true, err)
		return
	}
	// Validate before touching the disk so a bad form leaves no files.
	check := rep
	check.Normalize()
	if check.Date == "" {
		check.Date = h.now().UTC().Format(datefmt.HTMLLayout)
	}
	if err := check.Validate(h.Representatives); err != nil {
		h.renderForm(w, r, http.StatusBadRequest, rep, true, err)
		return
	}
	rep.Date = check.Date

	photos, err := h.savePhotos(headers)
	if err != nil {
		h.renderForm(w, r, http.StatusBadRequest, rep, true, err)
		return
	}
	rep.Photos = photos
	rep.CreatedBy = sess.Username

	created, err := h.Store.Create(r.Context(), rep, h.Representatives)
	if err != nil {
		h.removePhotos(photos)
		var ve *validation.ValidationErrors
		if errors.As(err, &ve) {
			h.renderForm(w, r, http.StatusBadRequest, rep, true, err)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Audit(r, audit.ActionCreate, "inc", strconv.Itoa(created.ID),
		fmt.Sprintf("Created INC %d for notice %d (%s, %s)", created.OC, created.Notice, created.Supplier, created.Item))
	h.Hub.NotifyChange(sess.UserID, "inc", "create", created.ID)
	common.Redirect(w, r, fmt.Sprintf("/inc/%d", created.ID), "success", fmt.Sprintf("INC %d registered.", created.OC))
}

// load fetches the INC named by the {id} path value, answering 404 itself.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (nonconformance.Report, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return nonconformance.Report{}, false
	}
	rep, err := h.Store.Get(r.Context(), id)
	if errors.Is(err, nonconformance.ErrNotFound) {
		http.NotFound(w, r)
		return rep, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return rep, false
	}
	return rep, true
}

type detailView struct {
	Report   nonconformance.Report
	DueDate  string
	Overdue  bool
	Printing bool
}

// Detail shows one INC.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r)
	if !ok {
		return
	}
	v := detailView{Report: rep, Printing: h.Printer != nil && h.Printer.Addr != ""}
	if due, ok := rep.DueDate(); ok {
		v.DueDate = due.Format(datefmt.Layout)
		v.Overdue = len(nonconformance.OverdueReports([]nonconformance.Report{rep}, h.now())) > 0
	}
	h.Render(w, r, http.StatusOK, "inc_detail", fmt.Sprintf("INC %d", rep.OC), v)
}

// EditForm renders the edit form of one INC.
func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r)
	if !ok {
		return
	}
	h.renderForm(w, r, http.StatusOK, rep, false, nil)
}

// Update saves edits to an INC. New photos are added to the existing ones.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	current, ok := h.load(w, r)
	if !ok {
		return
	}
	headers, err := photoHeaders(r)
	if err != nil {
		common.Redirect(w, r, fmt.Sprintf("/inc/%d/edit", current.ID), "danger", "Upload too large or malformed.")
		return
	}
	rep, err := reportFromForm(r)
	rep.ID, rep.OC, rep.Photos = current.ID, current.OC, current.Photos
	if err != nil {
		h.renderForm(w, r, http.StatusBadRequest, rep, false, err)
		return
	}
	check := rep
	check.Normalize()
	if check.Date == "" {
		check.Date = current.Date
		rep.Date = current.Date
	}
	if err := check.Validate(h.Representatives); err != nil {
		h.renderForm(w, r, http.StatusBadRequest, rep, false, err)
		return
	}

	added, err := h.savePhotos(headers)
	if err != nil {
		h.renderForm(w, r, http.StatusBadRequest, rep, false, err)
		return
	}
	rep.Photos = append(slices.Clone(current.Photos), added...)

	if err := h.Store.Update(r.Context(), rep, h.Representatives); err != nil {
		h.removePhotos(added)
		var ve *validation.ValidationErrors
		switch {
		case errors.As(err, &ve):
			h.renderForm(w, r, http.StatusBadRequest, rep, false, err)
		case errors.Is(err, nonconformance.ErrNotFound):
			http.NotFound(w, r)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.Audit(r, audit.ActionUpdate, "inc", strconv.Itoa(rep.ID),
		fmt.Sprintf("Updated INC %d: status %s, %d photo(s) added", rep.OC, rep.Status, len(added)))
	h.Hub.NotifyChange(sess.UserID, "inc", "update", rep.ID)
	common.Redirect(w, r, fmt.Sprintf("/inc/%d", rep.ID), "success", "INC updated.")
}

// Delete removes an INC and its photos.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, _ := server.SessionFrom(r.Context())
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rep, err := h.Store.Delete(r.Context(), id)
	if errors.Is(err, nonconformance.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.removePhotos(rep.Photos)
	h.Audit(r, audit.ActionDelete, "inc", strconv.Itoa(id), fmt.Sprintf("Deleted INC %d", rep.OC))
	h.Hub.NotifyChange(sess.UserID, "inc", "delete", id)
	common.Redirect(w, r, "/inc", "success", fmt.Sprintf("INC %d deleted.", rep.OC))
}

// RemovePhoto detaches one photo from an INC and deletes its file.
func (h *Handler) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r)
	if !ok {
		return
	}
	name := r.FormValue("photo")
	i := slices.Index(rep.Photos, name)
	if i < 0 {
		http.Error(w, "photo not attached to this INC", http.StatusBadRequest)
		return
	}
	remaining := slices.Delete(slices.Clone(rep.Photos), i, i+1)
	if err := h.Store.SetPhotos(r.Context(), rep.ID, remaining); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.removePhotos([]string{name})
	h.Audit(r, audit.ActionUpdate, "inc", strconv.Itoa(rep.ID), fmt.Sprintf("Removed photo %s from INC %d", name, rep.OC))
	common.Redirect(w, r, fmt.Sprintf("/inc/%d/edit", rep.ID), "success", "Photo removed.")
}

// Photo serves a stored INC photo.
func (h *Handler) Photo(w http.ResponseWriter, r *http.Request) {
	path, err := h.Photos.Path(r.PathValue("name"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, path)
}

type overdueView struct {
	Reports []nonconformance.Overdue
}

// Overdue lists in-progress INCs past their urgency deadline, most overdue
// first.
func (h *Handler) Overdue(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Store.All(r.Context(), nonconformance.Filter{Status: nonconformance.StatusInProgress})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Render(w, r, http.StatusOK, "inc_overdue", "Overdue INCs",
		overdueView{Reports: nonconformance.OverdueReports(reports, h.now())})
}

// Export downloads the INCs matching the list filters as CSV (default) or
// XLSX.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	f, _ := filterFromQuery(r.URL.Query())
	reports, err := h.Store.All(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	var buf bytes.Buffer
	var contentType string
	switch format {
	case "csv":
		contentType = "text/csv; charset=utf-8"
		err = export.INCCSV(&buf, reports)
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = export.INCXLSX(&buf, reports)
	default:
		http.Error(w, "format must be csv or xlsx", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Audit(r, audit.ActionExport, "inc", format, fmt.Sprintf("Exported %d INCs", len(reports)))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "incs."+format))
	buf.WriteTo(w)
}

// PDF downloads one INC as a PDF including its photos.
func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.ReportPDF(&buf, h.CompanyName, rep, h.Photos.Path); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Audit(r, audit.ActionExport, "inc", strconv.Itoa(rep.ID), fmt.Sprintf("Exported INC %d as PDF", rep.OC))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("inc_%d.pdf", rep.Notice)))
	buf.WriteTo(w)
}

// PrintLabel sends the INC's label to the configured printer.
func (h *Handler) PrintLabel(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r)
	if !ok {
		return
	}
	target := fmt.Sprintf("/inc/%d", rep.ID)
	err := h.Printer.Print(r.Context(), rep)
	switch {
	case errors.Is(err, nonconformance.ErrNoPrinter):
		common.Redirect(w, r, target, "warning", "Label printer not configured.")
	case err != nil:
		log.Printf("print label for INC %d: %v", rep.ID, err)
		common.Redirect(w, r, target, "danger", "Could not print the label: "+err.Error())
	default:
		h.Audit(r, audit.ActionPrint, "inc", strconv.Itoa(rep.ID), fmt.Sprintf("Printed label for INC %d", rep.OC))
		common.Redirect(w, r, target, "success", "Label sent to the printer.")
	}
}
