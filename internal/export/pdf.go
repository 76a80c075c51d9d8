package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"

	"incmgr/internal/nonconformance"
)

const (
	pdfMargin   = 15.0
	photoBox    = 80.0
	photoGutter = 5.0
)

func newPDF(title string) (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(title, true)
	// Core fonts are cp1252; this maps accented names onto them.
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

// ReportPDF writes one INC as a PDF. photoPath resolves a stored photo name
// to a file; photos it cannot resolve or decode are left out.
func ReportPDF(w io.Writer, company string, r nonconformance.Report, photoPath func(string) (string, error)) error {
	pdf, tr := newPDF(fmt.Sprintf("INC %d", r.OC))
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("INC #%d", r.OC)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr(company), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	fields := [][2]string{
		{"Notice (NF-e)", strconv.Itoa(r.Notice)},
		{"Date", r.DisplayDate()},
		{"Representative", r.Representative},
		{"Supplier", r.Supplier},
		{"Item", r.Item},
		{"Qty received", strconv.Itoa(r.QtyReceived)},
		{"Qty defective", strconv.Itoa(r.QtyDefective)},
		{"Urgency", string(r.Urgency)},
		{"Status", string(r.Status)},
	}
	for _, f := range fields {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 7, tr(f[0]+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 7, tr(f[1]), "", 1, "L", false, 0, "")
	}
	for _, f := range [][2]string{{"Defect description", r.DefectDescription}, {"Recommended action", r.RecommendedAction}} {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 7, tr(f[0]+":"), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(f[1]), "", "L", false)
	}

	if len(r.Photos) > 0 && photoPath != nil {
		addPhotos(pdf, r.Photos, photoPath)
	}
	return pdf.Output(w)
}

func addPhotos(pdf *fpdf.Fpdf, photos []string, photoPath func(string) (string, error)) {
	pageW, pageH := pdf.GetPageSize()
	placed := 0
	x, y := pdfMargin, pdfMargin
	for _, name := range photos {
		path, err := photoPath(name)
		if err != nil {
			continue
		}
		opts := fpdf.ImageOptions{ReadDpi: true}
		info := pdf.RegisterImageOptions(path, opts)
		if pdf.Err() || info == nil {
			pdf.ClearError()
			continue
		}
		if placed == 0 {
			pdf.AddPage()
		}
		w, h := fit(info.Width(), info.Height(), photoBox)
		if x+photoBox > pageW-pdfMargin {
			x = pdfMargin
			y += photoBox + photoGutter
		}
		if y+photoBox > pageH-pdfMargin {
			pdf.AddPage()
			x, y = pdfMargin, pdfMargin
		}
		pdf.ImageOptions(path, x, y, w, h, false, opts, 0, "")
		x += photoBox + photoGutter
		placed++
	}
}

// fit scales w x h to fit a box x box square, keeping the aspect ratio.
func fit(w, h, box float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return box, box
	}
	if w >= h {
		return box, box * h / w
	}
	return box * w / h, box
}

// MonitorPDF writes the supplier monitoring report: a bar chart of INCs per
// month followed by the matching INCs. filters describes the selection.
func MonitorPDF(w io.Writer, company, filters string, reports []nonconformance.Report) error {
	pdf, tr := newPDF("Supplier monitoring")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Supplier monitoring", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr(company), "", 1, "L", false, 0, "")
	if filters != "" {
		pdf.MultiCell(0, 5, tr(filters), "", "L", false)
	}
	pdf.Ln(4)

	barChart(pdf, nonconformance.MonthlyCounts(reports))

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(211, 211, 211)
	cols := []struct {
		title string
		width float64
	}{{"OC", 12}, {"Notice", 20}, {"Date", 22}, {"Supplier", 52}, {"Item", 24}, {"Defective", 20}, {"Status", 0}}
	for i, c := range cols {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		pdf.CellFormat(c.width, 7, c.title, "1", ln, "L", true, 0, "")
	}
	pdf.SetFont("Helvetica", "", 9)
	for _, r := range reports {
		cells := []string{strconv.Itoa(r.OC), strconv.Itoa(r.Notice), r.DisplayDate(), r.Supplier, r.Item,
			fmt.Sprintf("%d/%d", r.QtyDefective, r.QtyReceived), string(r.Status)}
		for i, c := range cols {
			ln := 0
			if i == len(cols)-1 {
				ln = 1
			}
			pdf.CellFormat(c.width, 6, tr(clip(pdf, cells[i], c.width)), "1", ln, "L", false, 0, "")
		}
	}
	return pdf.Output(w)
}

const chartHeight = 60.0

func barChart(pdf *fpdf.Fpdf, months []nonconformance.MonthCount) {
	if len(months) == 0 {
		return
	}
	pageW, _ := pdf.GetPageSize()
	left := pdfMargin + 10
	width := pageW - left - pdfMargin
	top := pdf.GetY()
	bottom := top + chartHeight
	peak := float64(nonconformance.MaxCount(months))

	pdf.SetFont("Helvetica", "", 8)
	pdf.Line(left, top, left, bottom)
	pdf.Line(left, bottom, left+width, bottom)
	pdf.Text(pdfMargin, top+3, strconv.Itoa(int(peak)))
	pdf.Text(pdfMargin, bottom, "0")

	slot := width / float64(len(months))
	bar := slot * 0.6
	pdf.SetFillColor(54, 162, 235)
	for i, m := range months {
		h := chartHeight * float64(m.Count) / peak
		x := left + float64(i)*slot + (slot-bar)/2
		pdf.Rect(x, bottom-h, bar, h, "F")
		pdf.Text(x, bottom-h-1, strconv.Itoa(m.Count))
		pdf.Text(x, bottom+4, m.Month)
	}
	pdf.SetY(bottom + 10)
}

// clip shortens s to fit a column of width mm. A zero width is the rest of
// the line and is not clipped.
func clip(pdf *fpdf.Fpdf, s string, width float64) string {
	if width == 0 {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes))+2 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}
