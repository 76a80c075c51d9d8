package quality

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"incmgr/internal/audit"
	"incmgr/internal/datefmt"
	"incmgr/internal/export"
	"incmgr/internal/handlers/common"
	"incmgr/internal/nonconformance"
)

// monitorFilter reads the monitoring selection: an exact supplier, an item
// substring and an inclusive date range. Either bound may be left open.
func monitorFilter(q url.Values) (nonconformance.Filter, bool) {
	f := nonconformance.Filter{
		Supplier:      strings.TrimSpace(q.Get("supplier")),
		SupplierExact: true,
		Item:          strings.TrimSpace(q.Get("item")),
		From:          datefmt.ForInput(strings.TrimSpace(q.Get("from"))),
		To:            datefmt.ForInput(strings.TrimSpace(q.Get("to"))),
	}
	searched := q.Has("supplier") || q.Has("item") || q.Has("from") || q.Has("to")
	return f, searched
}

func describe(f nonconformance.Filter) string {
	var parts []string
	if f.Supplier != "" {
		parts = append(parts, "Supplier: "+f.Supplier)
	}
	if f.Item != "" {
		parts = append(parts, "Item: "+strings.ToUpper(f.Item))
	}
	if f.From != "" || f.To != "" {
		parts = append(parts, fmt.Sprintf("Period: %s to %s", orAny(datefmt.Display(f.From)), orAny(datefmt.Display(f.To))))
	}
	return strings.Join(parts, " · ")
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}

// Chart geometry in SVG user units. The page CSP forbids inline styles, so
// bars are sized with SVG attributes.
const (
	chartSlot   = 70
	chartBar    = 44
	chartHeight = 180
	chartBase   = 200
)

type monthBar struct {
	nonconformance.MonthCount
	X, Y, Height int
	LabelX       int
}

func chartBars(months []nonconformance.MonthCount) []monthBar {
	peak := nonconformance.MaxCount(months)
	bars := make([]monthBar, 0, len(months))
	for i, m := range months {
		h := 0
		if peak > 0 {
			h = m.Count * chartHeight / peak
		}
		x := i*chartSlot + (chartSlot-chartBar)/2
		bars = append(bars, monthBar{MonthCount: m, X: x, Y: chartBase - h, Height: h, LabelX: x + chartBar/2})
	}
	return bars
}

type monitorView struct {
	Filter    nonconformance.Filter
	Searched  bool
	Suppliers []string
	Reports   []nonconformance.Report
	Months    []monthBar
	Width     int
	PDFURL    string
}

// Monitor charts INCs per month for a supplier and item selection.
func (h *Handler) Monitor(w http.ResponseWriter, r *http.Request) {
	f, searched := monitorFilter(r.URL.Query())
	v := monitorView{Filter: f, Searched: searched, PDFURL: "/inc/monitor/pdf?" + r.URL.Query().Encode()}

	names, err := h.Store.Suppliers(r.Context())
	if err != nil {
		log.Printf("monitor: suppliers: %v", err)
	}
	v.Suppliers = names

	if searched {
		reports, err := h.Store.All(r.Context(), f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		v.Reports = reports
		v.Months = chartBars(nonconformance.MonthlyCounts(reports))
		v.Width = max(len(v.Months)*chartSlot, chartSlot)
	}
	h.Render(w, r, http.StatusOK, "inc_monitor", "Supplier monitoring", v)
}

// MonitorPDF downloads the monitoring chart and list as a PDF.
func (h *Handler) MonitorPDF(w http.ResponseWriter, r *http.Request) {
	f, _ := monitorFilter(r.URL.Query())
	reports, err := h.Store.All(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(reports) == 0 {
		common.Redirect(w, r, "/inc/monitor?"+r.URL.Query().Encode(), "warning", "No INCs to export.")
		return
	}
	var buf bytes.Buffer
	if err := export.MonitorPDF(&buf, h.CompanyName, describe(f), reports); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Audit(r, audit.ActionExport, "inc_monitor", f.Supplier, fmt.Sprintf("Exported monitoring of %d INCs", len(reports)))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="supplier_monitoring.pdf"`)
	buf.WriteTo(w)
}
