// Package export materializes aggregate reports as downloadable artifacts.
//
// Each supported format has its own renderer registered in a dispatch table;
// adding a format means adding a renderer, nothing else changes. The exporter
// never touches persistent storage — the caller decides where artifacts go.
package export

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fatture/internal/aggregate"
	"fatture/internal/core"
)

// Format names a supported export format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
	FormatChart Format = "chart"
)

// ParseFormat maps a caller-supplied format string to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := renderers[f]; !ok {
		return "", fmt.Errorf("format %q: %w", s, core.ErrUnsupportedFormat)
	}
	return f, nil
}

// Artifact is a rendered report ready to hand to the caller.
type Artifact struct {
	ID          string
	Filename    string
	ContentType string
	Data        []byte
}

type renderer struct {
	contentType string
	extension   string
	render      func(*aggregate.Report) ([]byte, error)
}

// renderers maps formats to their renderer. Lookup failures surface as
// UnsupportedFormat before any rendering work.
var renderers = map[Format]renderer{
	FormatCSV:   {contentType: "text/csv; charset=utf-8", extension: "csv", render: renderCSV},
	FormatXLSX:  {contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", extension: "xlsx", render: renderXLSX},
	FormatChart: {contentType: "application/json", extension: "json", render: renderChart},
}

// Config controls exporter behavior.
type Config struct {
	// RejectEmpty makes exporting a report with no rows fail with EmptyReport
	// instead of producing a header-only artifact.
	RejectEmpty bool
}

type Exporter struct {
	rejectEmpty bool
}

func New(cfg Config) *Exporter {
	return &Exporter{rejectEmpty: cfg.RejectEmpty}
}

// Export renders the report in the requested format.
func (e *Exporter) Export(rep *aggregate.Report, format Format) (*Artifact, error) {
	r, ok := renderers[format]
	if !ok {
		return nil, fmt.Errorf("format %q: %w", format, core.ErrUnsupportedFormat)
	}
	if e.rejectEmpty && len(rep.Rows) == 0 {
		return nil, fmt.Errorf("report has no rows: %w", core.ErrEmptyReport)
	}

	data, err := r.render(rep)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format, err)
	}

	return &Artifact{
		ID:          uuid.NewString(),
		Filename:    "cost_center_report." + r.extension,
		ContentType: r.contentType,
		Data:        data,
	}, nil
}
