package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"incmgr/internal/inspection"
)

// Headers are the columns of a routine export.
var Headers = []string{"Notice", "Entry date", "Item", "Description", "Qty received", "Supplier", "Purchase order", "Status"}

// Records flattens a routine's rows into string cells.
func Records(rt inspection.Routine) [][]string {
	out := make([][]string, 0, len(rt.Rows))
	for _, r := range rt.Rows {
		out = append(out, []string{
			strconv.Itoa(r.Notice),
			r.EntryDate,
			r.Item,
			r.Description,
			r.QtyReceived.String(),
			r.Supplier,
			strconv.Itoa(r.PurchaseOrder),
			string(r.Status),
		})
	}
	return out
}

// CSV writes the routine as CSV.
func CSV(w io.Writer, rt inspection.Routine) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return err
	}
	if err := cw.WriteAll(Records(rt)); err != nil {
		return err
	}
	return cw.Error()
}

// SheetName is the worksheet holding the routine rows.
const SheetName = "Inspection"

// XLSX writes the routine as an Excel workbook.
func XLSX(w io.Writer, rt inspection.Routine) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(SheetName, cell, h)
		f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}
	for rowIdx, r := range rt.Rows {
		qty, _ := r.QtyReceived.Float64()
		values := []any{r.Notice, r.EntryDate, r.Item, r.Description, qty, r.Supplier, r.PurchaseOrder, string(r.Status)}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(SheetName, cell, v)
		}
	}
	f.SetColWidth(SheetName, "A", "H", 15)
	f.SetColWidth(SheetName, "D", "D", 40)

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	return f.Write(w)
}
