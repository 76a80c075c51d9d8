package procurement

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"incmgr/internal/audit"
	"incmgr/internal/datefmt"
	"incmgr/internal/export"
	"incmgr/internal/inspection"
)

type routineView struct {
	inspection.Routine
	Inspected int
	Postponed int
}

type routinesView struct {
	Day      string
	Routines []routineView
}

// Routines lists saved routines, optionally for a single day given as
// YYYY-MM-DD or DD-MM-YYYY.
func (h *Handler) Routines(w http.ResponseWriter, r *http.Request) {
	var day string
	if q := r.URL.Query().Get("day"); q != "" {
		if day = datefmt.ForInput(q); day == "" {
			http.Error(w, "invalid day", http.StatusBadRequest)
			return
		}
	}

	routines, err := h.Store.ListRoutines(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	v := routinesView{Day: day}
	for _, rt := range routines {
		if day != "" && !strings.HasPrefix(rt.InspectedAt, day) {
			continue
		}
		in, pp := rt.Counts()
		v.Routines = append(v.Routines, routineView{Routine: rt, Inspected: in, Postponed: pp})
	}
	h.Render(w, r, http.StatusOK, "routines", "Routines", v)
}

// Export downloads one routine as XLSX (default) or CSV.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rt, err := h.Store.Routine(r.Context(), id)
	if errors.Is(err, inspection.ErrRoutineNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	name := "inspection-" + strings.ReplaceAll(datefmt.FromTimestamp(rt.InspectedAt), "-", "") + "-" + shortID(rt.ID)

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		err = export.CSV(w, rt)
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
		err = export.XLSX(w, rt)
	default:
		http.Error(w, "format must be xlsx or csv", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Audit(r, audit.ActionExport, "routine", rt.ID, "Exported routine as "+format)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
