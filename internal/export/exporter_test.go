package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fatture/internal/aggregate"
	"fatture/internal/core"
)

func sampleReport() *aggregate.Report {
	return &aggregate.Report{
		Rows: []aggregate.Row{
			{
				CostCenterID:    1,
				CostCenterLabel: "Marketing",
				Total:           core.Money{Cents: 40000},
				InvoiceCount:    3,
				ByExpenseType: map[int64]core.Money{
					10: {Cents: 25050},
					11: {Cents: 14950},
				},
			},
			{
				CostCenterID:    2,
				CostCenterLabel: "Sales",
				Total:           core.Money{Cents: 1999},
				InvoiceCount:    1,
				ByExpenseType: map[int64]core.Money{
					10: {Cents: 1999},
				},
			},
		},
		ExpenseTypes: []aggregate.TypeColumn{
			{ID: 10, Label: "Consulting"},
			{ID: 11, Label: "Software"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"XLSX", FormatXLSX, false},
		{" chart ", FormatChart, false},
		{"pdf", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, core.ErrUnsupportedFormat, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got)
	}
}

// The CSV artifact must round-trip the (label, total, count) triples in row
// order, with the expense-type breakdown in column order.
func TestExportCSVRoundTrip(t *testing.T) {
	artifact, err := New(Config{}).Export(sampleReport(), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", artifact.ContentType)
	assert.Equal(t, "cost_center_report.csv", artifact.Filename)
	assert.NotEmpty(t, artifact.ID)

	records, err := csv.NewReader(bytes.NewReader(artifact.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"cost_center", "total", "invoice_count", "Consulting", "Software"}, records[0])
	assert.Equal(t, []string{"Marketing", "400.00", "3", "250.50", "149.50"}, records[1])
	assert.Equal(t, []string{"Sales", "19.99", "1", "19.99", "0.00"}, records[2])
}

func TestExportXLSXGrid(t *testing.T) {
	artifact, err := New(Config{}).Export(sampleReport(), FormatXLSX)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(artifact.Data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Report")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"cost_center", "total", "invoice_count", "Consulting", "Software"}, rows[0])
	assert.Equal(t, []string{"Marketing", "400.00", "3", "250.50", "149.50"}, rows[1])
	assert.Equal(t, []string{"Sales", "19.99", "1", "19.99", "0.00"}, rows[2])
}

func TestExportChart(t *testing.T) {
	artifact, err := New(Config{}).Export(sampleReport(), FormatChart)
	require.NoError(t, err)
	assert.Equal(t, "application/json", artifact.ContentType)

	var points []struct {
		CostCenter string `json:"cost_center"`
		Total      string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(artifact.Data, &points))
	require.Len(t, points, 2)
	assert.Equal(t, "Marketing", points[0].CostCenter)
	assert.Equal(t, "400.00", points[0].Total)
	assert.Equal(t, "Sales", points[1].CostCenter)
	assert.Equal(t, "19.99", points[1].Total)
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := New(Config{}).Export(sampleReport(), Format("pdf"))
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestExportEmptyReport(t *testing.T) {
	empty := &aggregate.Report{}

	// Default: a header-only artifact.
	artifact, err := New(Config{}).Export(empty, FormatCSV)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(artifact.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"cost_center", "total", "invoice_count"}, records[0])

	// RejectEmpty: refuse instead.
	_, err = New(Config{RejectEmpty: true}).Export(empty, FormatCSV)
	assert.ErrorIs(t, err, core.ErrEmptyReport)
	assert.False(t, errors.Is(err, core.ErrUnsupportedFormat))
}
