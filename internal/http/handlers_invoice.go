package http

import (
	"net/http"
	"strconv"
	"time"

	"fatture/internal/core"
	"fatture/internal/ledger"
)

type invoiceResponse struct {
	ID            int64      `json:"id"`
	SupplierID    int64      `json:"supplier_id"`
	CostCenterID  int64      `json:"cost_center_id"`
	ExpenseTypeID int64      `json:"expense_type_id"`
	IssueDate     string     `json:"issue_date"`
	Amount        core.Money `json:"amount"`
	Number        string     `json:"number"`
	Note          string     `json:"note,omitempty"`
	RecordedBy    int64      `json:"recorded_by"`
	CreatedAt     string     `json:"created_at"`
	UpdatedAt     string     `json:"updated_at"`
}

func toInvoiceResponse(inv core.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:            inv.ID,
		SupplierID:    inv.SupplierID,
		CostCenterID:  inv.CostCenterID,
		ExpenseTypeID: inv.ExpenseTypeID,
		IssueDate:     inv.IssueDate.String(),
		Amount:        inv.Amount,
		Number:        inv.Number,
		Note:          inv.Note,
		RecordedBy:    inv.RecordedBy,
		CreatedAt:     inv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     inv.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleInvoiceAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SupplierID    int64  `json:"supplier_id"`
		CostCenterID  int64  `json:"cost_center_id"`
		ExpenseTypeID int64  `json:"expense_type_id"`
		IssueDate     string `json:"issue_date"`
		Amount        string `json:"amount"`
		Number        string `json:"number"`
		Note          string `json:"note"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	date, err := core.ParseDate(req.IssueDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	u, _ := userFrom(r.Context())
	id, err := s.invoices.Add(r.Context(), ledger.AddParams{
		SupplierID:    req.SupplierID,
		CostCenterID:  req.CostCenterID,
		ExpenseTypeID: req.ExpenseTypeID,
		IssueDate:     date,
		Amount:        amount,
		Number:        req.Number,
		Note:          req.Note,
		RecordedBy:    u.ID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	inv, err := s.invoices.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

// fetchOwned loads an invoice and enforces record scoping: callers without
// the report-all capability only ever see their own records. A foreign id
// reads as NotFound so ids are not probeable.
func (s *Server) fetchOwned(w http.ResponseWriter, r *http.Request, id int64) (core.Invoice, bool) {
	inv, err := s.invoices.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return core.Invoice{}, false
	}
	if !seesAllRecords(r.Context()) {
		u, _ := userFrom(r.Context())
		if inv.RecordedBy != u.ID {
			writeJSON(w, http.StatusNotFound, errorBody{
				Error: errorDetail{Code: "not_found", Message: "not found"},
			})
			return core.Invoice{}, false
		}
	}
	return inv, true
}

func (s *Server) handleInvoiceGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, ok := s.fetchOwned(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (s *Server) handleInvoiceUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, ok := s.fetchOwned(w, r, id); !ok {
		return
	}

	var req struct {
		SupplierID    *int64  `json:"supplier_id"`
		CostCenterID  *int64  `json:"cost_center_id"`
		ExpenseTypeID *int64  `json:"expense_type_id"`
		IssueDate     *string `json:"issue_date"`
		Amount        *string `json:"amount"`
		Number        *string `json:"number"`
		Note          *string `json:"note"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	upd := core.InvoiceUpdate{
		SupplierID:    req.SupplierID,
		CostCenterID:  req.CostCenterID,
		ExpenseTypeID: req.ExpenseTypeID,
		Number:        req.Number,
		Note:          req.Note,
	}
	if req.IssueDate != nil {
		date, err := core.ParseDate(*req.IssueDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		upd.IssueDate = &date
	}
	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		upd.Amount = &amount
	}

	if err := s.invoices.Update(r.Context(), id, upd); err != nil {
		writeError(w, r, err)
		return
	}

	inv, err := s.invoices.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (s *Server) handleInvoiceDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, ok := s.fetchOwned(w, r, id); !ok {
		return
	}

	if err := s.invoices.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvoiceList(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseInvoiceFilter(w, r)
	if !ok {
		return
	}

	// Callers without the report-all capability are scoped to their own
	// records regardless of any recorded_by param they supplied.
	if !seesAllRecords(r.Context()) {
		u, _ := userFrom(r.Context())
		filter.RecordedBy = &u.ID
	}

	it, err := s.invoices.Query(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer it.Close()

	out := make([]invoiceResponse, 0)
	for it.Next() {
		out = append(out, toInvoiceResponse(it.Invoice()))
	}
	if err := it.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": out})
}

// parseInvoiceFilter reads the list/report filter params: supplier_id,
// cost_center_id, expense_type_id, recorded_by, from, to.
func parseInvoiceFilter(w http.ResponseWriter, r *http.Request) (core.InvoiceFilter, bool) {
	var f core.InvoiceFilter
	q := r.URL.Query()

	for param, dst := range map[string]**int64{
		"supplier_id":     &f.SupplierID,
		"cost_center_id":  &f.CostCenterID,
		"expense_type_id": &f.ExpenseTypeID,
		"recorded_by":     &f.RecordedBy,
	} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeBadRequest(w, param+" must be a positive integer")
			return core.InvoiceFilter{}, false
		}
		*dst = &id
	}

	if v := q.Get("from"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(w, r, err)
			return core.InvoiceFilter{}, false
		}
		f.Range.Start = d
	}
	if v := q.Get("to"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			writeError(w, r, err)
			return core.InvoiceFilter{}, false
		}
		f.Range.End = d
	}
	return f, true
}
