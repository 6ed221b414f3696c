package http

import (
	"net/http"
	"strconv"

	"fatture/internal/aggregate"
	"fatture/internal/capability"
	"fatture/internal/core"
	"fatture/internal/export"
)

type reportRowResponse struct {
	CostCenterID    int64                 `json:"cost_center_id"`
	CostCenterLabel string                `json:"cost_center_label"`
	Total           core.Money            `json:"total"`
	InvoiceCount    int                   `json:"invoice_count"`
	ByExpenseType   map[string]core.Money `json:"by_expense_type"`
}

type reportResponse struct {
	Rows         []reportRowResponse `json:"rows"`
	ExpenseTypes []typeColumn        `json:"expense_types"`
	From         string              `json:"from,omitempty"`
	To           string              `json:"to,omitempty"`
}

type typeColumn struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// parseReportRequest reads from, to, expense_type_id and include_empty.
func parseReportRequest(w http.ResponseWriter, r *http.Request) (aggregate.Request, bool) {
	var req aggregate.Request
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(w, r, err)
			return aggregate.Request{}, false
		}
		req.Range.Start = d
	}
	if v := q.Get("to"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(w, r, err)
			return aggregate.Request{}, false
		}
		req.Range.End = d
	}
	if v := q.Get("expense_type_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeBadRequest(w, "expense_type_id must be a positive integer")
			return aggregate.Request{}, false
		}
		req.ExpenseTypeID = &id
	}
	if v := q.Get("include_empty"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "include_empty must be a boolean")
			return aggregate.Request{}, false
		}
		req.IncludeEmpty = include
	}
	return req, true
}

// aggregateForCaller runs the aggregation for report endpoints. The report
// spans every recorder's invoices, so it demands the report-all capability.
func (s *Server) aggregateForCaller(w http.ResponseWriter, r *http.Request) (*aggregate.Report, bool) {
	if err := capability.Check(r.Context(), capability.OpReportAll); err != nil {
		writeError(w, r, err)
		return nil, false
	}

	req, ok := parseReportRequest(w, r)
	if !ok {
		return nil, false
	}

	rep, err := s.reports.Aggregate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return rep, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.aggregateForCaller(w, r)
	if !ok {
		return
	}

	resp := reportResponse{Rows: make([]reportRowResponse, 0, len(rep.Rows))}
	for _, row := range rep.Rows {
		byType := make(map[string]core.Money, len(row.ByExpenseType))
		for id, amount := range row.ByExpenseType {
			byType[strconv.FormatInt(id, 10)] = amount
		}
		resp.Rows = append(resp.Rows, reportRowResponse{
			CostCenterID:    row.CostCenterID,
			CostCenterLabel: row.CostCenterLabel,
			Total:           row.Total,
			InvoiceCount:    row.InvoiceCount,
			ByExpenseType:   byType,
		})
	}
	for _, tc := range rep.ExpenseTypes {
		resp.ExpenseTypes = append(resp.ExpenseTypes, typeColumn{ID: tc.ID, Label: tc.Label})
	}
	if !rep.Range.Start.IsZero() {
		resp.From = rep.Range.Start.String()
	}
	if !rep.Range.End.IsZero() {
		resp.To = rep.Range.End.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rep, ok := s.aggregateForCaller(w, r)
	if !ok {
		return
	}

	artifact, err := s.exporter.Export(rep, format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("X-Artifact-ID", artifact.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}
