package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"fatture/internal/aggregate"
)

const sheetName = "Report"

// renderXLSX renders the same table as the CSV form into a spreadsheet
// workbook. Amount cells are written as strings so the exact decimal survives
// the round trip; spreadsheet number cells are floats.
func renderXLSX(rep *aggregate.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := []string{"cost_center", "total", "invoice_count"}
	for _, tc := range rep.ExpenseTypes {
		header = append(header, tc.Label)
	}
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("set header cell: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheetName, "A1", last, bold)
	}

	for r, row := range rep.Rows {
		values := []string{
			row.CostCenterLabel,
			row.Total.String(),
			strconv.Itoa(row.InvoiceCount),
		}
		for _, tc := range rep.ExpenseTypes {
			values = append(values, row.ByExpenseType[tc.ID].String())
		}
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("set data cell: %w", err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 24); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
