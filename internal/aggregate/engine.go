// Package aggregate computes cost-center expense reports from the ledger.
//
// The engine reads only from the ledger and the registries; it never mutates
// them. Totals use exact minor-unit addition throughout — floating point never
// touches an amount, so the sum is invariant under insertion order.
package aggregate

import (
	"context"
	"fmt"

	"fatture/internal/core"
)

// InvoiceSource streams invoices matching a filter, ordered by issue date
// then id. The ledger service satisfies it.
type InvoiceSource interface {
	Query(ctx context.Context, f core.InvoiceFilter) (core.InvoiceIterator, error)
}

// RegistrySource lists registry entries. The registry service satisfies it
// and returns entries label-ordered, which fixes the report row order.
type RegistrySource interface {
	List(ctx context.Context, kind core.Kind) ([]core.RegistryEntry, error)
}

type Engine struct {
	invoices   InvoiceSource
	registries RegistrySource
}

func NewEngine(invoices InvoiceSource, registries RegistrySource) *Engine {
	return &Engine{invoices: invoices, registries: registries}
}

// Request narrows the aggregation. A zero Range spans everything; a nil
// ExpenseTypeID matches every type. IncludeEmpty keeps cost centers with no
// matching invoices as zero rows.
type Request struct {
	Range         core.DateRange
	ExpenseTypeID *int64
	IncludeEmpty  bool
}

// Row is the aggregate for a single cost center.
type Row struct {
	CostCenterID    int64
	CostCenterLabel string
	Total           core.Money
	InvoiceCount    int
	ByExpenseType   map[int64]core.Money
}

// TypeColumn names an expense type present in at least one row's breakdown.
type TypeColumn struct {
	ID    int64
	Label string
}

// Report holds aggregate rows ordered by cost-center label, case-insensitive
// ascending, id ascending as tie-break. ExpenseTypes lists the distinct types
// appearing in any breakdown, label-ordered, so exports emit stable columns.
type Report struct {
	Rows         []Row
	ExpenseTypes []TypeColumn

	// Echo of the applied filter.
	Range         core.DateRange
	ExpenseTypeID *int64
}

// Aggregate streams matching invoices and accumulates per cost center. An
// empty ledger yields an empty (or all-zero) report, never an error. An
// inverted range fails with core.ErrInvalidRange before any scan.
func (e *Engine) Aggregate(ctx context.Context, req Request) (*Report, error) {
	if err := req.Range.Validate(); err != nil {
		return nil, err
	}

	type acc struct {
		total  core.Money
		count  int
		byType map[int64]core.Money
	}
	totals := make(map[int64]*acc)

	it, err := e.invoices.Query(ctx, core.InvoiceFilter{
		ExpenseTypeID: req.ExpenseTypeID,
		Range:         req.Range,
	})
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer it.Close()

	for it.Next() {
		inv := it.Invoice()
		a := totals[inv.CostCenterID]
		if a == nil {
			a = &acc{byType: make(map[int64]core.Money)}
			totals[inv.CostCenterID] = a
		}
		a.total = a.total.Add(inv.Amount)
		a.count++
		a.byType[inv.ExpenseTypeID] = a.byType[inv.ExpenseTypeID].Add(inv.Amount)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("scan invoices: %w", err)
	}

	// Registries are listed after the scan so a cost center created and
	// referenced mid-read still gets its row. A center deleted mid-read
	// (its invoices went first) leaves an orphan accumulator, dropped
	// below; the report then reflects the later committed state.
	centers, err := e.registries.List(ctx, core.KindCostCenter)
	if err != nil {
		return nil, fmt.Errorf("list cost centers: %w", err)
	}
	types, err := e.registries.List(ctx, core.KindExpenseType)
	if err != nil {
		return nil, fmt.Errorf("list expense types: %w", err)
	}

	rep := &Report{Range: req.Range, ExpenseTypeID: req.ExpenseTypeID}
	seenTypes := make(map[int64]bool)
	for _, c := range centers {
		a := totals[c.ID]
		if a == nil {
			if !req.IncludeEmpty {
				continue
			}
			rep.Rows = append(rep.Rows, Row{
				CostCenterID:    c.ID,
				CostCenterLabel: c.Label,
				ByExpenseType:   map[int64]core.Money{},
			})
			continue
		}
		for id := range a.byType {
			seenTypes[id] = true
		}
		rep.Rows = append(rep.Rows, Row{
			CostCenterID:    c.ID,
			CostCenterLabel: c.Label,
			Total:           a.total,
			InvoiceCount:    a.count,
			ByExpenseType:   a.byType,
		})
	}

	// types is label-ordered, so walking it keeps the columns ordered too.
	for _, tp := range types {
		if seenTypes[tp.ID] {
			rep.ExpenseTypes = append(rep.ExpenseTypes, TypeColumn{ID: tp.ID, Label: tp.Label})
		}
	}

	return rep, nil
}
