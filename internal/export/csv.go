package export

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"fatture/internal/aggregate"
)

// renderCSV writes one row per cost center: label, total, invoice count, then
// one column per expense type present in the report. Amounts are exact
// fixed-point decimal strings; float formatting never runs.
func renderCSV(rep *aggregate.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"cost_center", "total", "invoice_count"}
	for _, tc := range rep.ExpenseTypes {
		header = append(header, tc.Label)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, row := range rep.Rows {
		record := []string{
			row.CostCenterLabel,
			row.Total.String(),
			strconv.Itoa(row.InvoiceCount),
		}
		for _, tc := range rep.ExpenseTypes {
			sub := row.ByExpenseType[tc.ID]
			record = append(record, sub.String())
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
