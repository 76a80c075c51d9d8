package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"incmgr/internal/nonconformance"
)

// INCHeaders are the columns of an INC export.
var INCHeaders = []string{"OC", "Notice", "Date", "Representative", "Supplier", "Item", "Qty received",
	"Qty defective", "Defect description", "Urgency", "Recommended action", "Status"}

// INCSheetName is the worksheet holding exported INCs.
const INCSheetName = "INC"

// INCRecords flattens reports into string cells.
func INCRecords(reports []nonconformance.Report) [][]string {
	out := make([][]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, []string{
			strconv.Itoa(r.OC),
			strconv.Itoa(r.Notice),
			r.DisplayDate(),
			r.Representative,
			r.Supplier,
			r.Item,
			strconv.Itoa(r.QtyReceived),
			strconv.Itoa(r.QtyDefective),
			r.DefectDescription,
			string(r.Urgency),
			r.RecommendedAction,
			string(r.Status),
		})
	}
	return out
}

// INCCSV writes reports as CSV.
func INCCSV(w io.Writer, reports []nonconformance.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(INCHeaders); err != nil {
		return err
	}
	if err := cw.WriteAll(INCRecords(reports)); err != nil {
		return err
	}
	return cw.Error()
}

// INCXLSX writes reports as an Excel workbook.
func INCXLSX(w io.Writer, reports []nonconformance.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", INCSheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetRow(INCSheetName, "A1", &INCHeaders); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(INCHeaders), 1)
	f.SetCellStyle(INCSheetName, "A1", last, headerStyle)

	for i, r := range reports {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{r.OC, r.Notice, r.DisplayDate(), r.Representative, r.Supplier, r.Item, r.QtyReceived,
			r.QtyDefective, r.DefectDescription, string(r.Urgency), r.RecommendedAction, string(r.Status)}
		if err := f.SetSheetRow(INCSheetName, cell, &row); err != nil {
			return err
		}
	}
	f.SetColWidth(INCSheetName, "A", "L", 14)
	f.SetColWidth(INCSheetName, "I", "I", 40)
	f.SetColWidth(INCSheetName, "K", "K", 40)
	f.SetPanes(INCSheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	return f.Write(w)
}
