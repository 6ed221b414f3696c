// Package ledger implements the invoice ledger: structured invoice records
// with referential and numeric invariants enforced before any write.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fatture/internal/capability"
	"fatture/internal/core"
)

// Store is the persistence port. Each mutating call runs in one transaction:
// reference checks and the write either fully apply or have no effect.
type Store interface {
	// InsertInvoice resolves every reference inside the transaction, failing
	// with core.ErrUnknownReference naming the offending field before any
	// write. Creation sets created_at == updated_at.
	InsertInvoice(ctx context.Context, inv core.Invoice) (int64, error)
	// UpdateInvoice applies only the non-nil fields and always refreshes
	// updated_at. Changed references are re-resolved in the transaction.
	UpdateInvoice(ctx context.Context, id int64, upd core.InvoiceUpdate) error
	DeleteInvoice(ctx context.Context, id int64) error
	GetInvoice(ctx context.Context, id int64) (core.Invoice, error)
	// QueryInvoices returns a lazy iterator ordered by issue date ascending,
	// id ascending. Each call yields a fresh sequence over committed state.
	QueryInvoices(ctx context.Context, f core.InvoiceFilter) (core.InvoiceIterator, error)
}

// Publisher emits invoice events after a committed mutation. Publishing is
// best-effort; a failure never rolls back or fails the mutation.
type Publisher interface {
	PublishInvoiceEvent(ctx context.Context, invoiceID int64, action string) error
}

// Invoice event actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

type Service struct {
	store  Store
	events Publisher // nil when no broker is configured
}

func NewService(store Store, events Publisher) *Service {
	return &Service{store: store, events: events}
}

// AddParams carries the fields for a new invoice.
type AddParams struct {
	SupplierID    int64
	CostCenterID  int64
	ExpenseTypeID int64
	IssueDate     core.Date
	Amount        core.Money
	Number        string
	Note          string
	RecordedBy    int64
}

func (s *Service) Add(ctx context.Context, p AddParams) (int64, error) {
	if err := capability.Check(ctx, capability.OpInvoiceAdd); err != nil {
		return 0, err
	}
	inv := core.Invoice{
		SupplierID:    p.SupplierID,
		CostCenterID:  p.CostCenterID,
		ExpenseTypeID: p.ExpenseTypeID,
		IssueDate:     p.IssueDate,
		Amount:        p.Amount,
		Number:        strings.TrimSpace(p.Number),
		Note:          strings.TrimSpace(p.Note),
		RecordedBy:    p.RecordedBy,
	}
	if err := inv.Validate(); err != nil {
		return 0, err
	}

	id, err := s.store.InsertInvoice(ctx, inv)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Invoice recorded",
		"id", id,
		"supplier_id", inv.SupplierID,
		"cost_center_id", inv.CostCenterID,
		"amount_cents", inv.Amount.Cents)

	s.publish(ctx, id, ActionCreated)
	return id, nil
}

func (s *Service) Update(ctx context.Context, id int64, upd core.InvoiceUpdate) error {
	if err := capability.Check(ctx, capability.OpInvoiceUpdate); err != nil {
		return err
	}
	if err := validateUpdate(upd); err != nil {
		return err
	}

	if err := s.store.UpdateInvoice(ctx, id, upd); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Invoice updated", "id", id)
	s.publish(ctx, id, ActionUpdated)
	return nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := capability.Check(ctx, capability.OpInvoiceDelete); err != nil {
		return err
	}
	if err := s.store.DeleteInvoice(ctx, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Invoice deleted", "id", id)
	s.publish(ctx, id, ActionDeleted)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (core.Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

// Query validates the filter range fail-fast, then streams matching invoices.
func (s *Service) Query(ctx context.Context, f core.InvoiceFilter) (core.InvoiceIterator, error) {
	if err := f.Range.Validate(); err != nil {
		return nil, err
	}
	return s.store.QueryInvoices(ctx, f)
}

// validateUpdate applies the add-time rules to whichever fields are supplied.
// Nothing is coerced; a bad field rejects the whole update.
func validateUpdate(upd core.InvoiceUpdate) error {
	if upd.SupplierID != nil && *upd.SupplierID <= 0 {
		return fmt.Errorf("supplier id %d: %w", *upd.SupplierID, core.ErrUnknownReference)
	}
	if upd.CostCenterID != nil && *upd.CostCenterID <= 0 {
		return fmt.Errorf("cost center id %d: %w", *upd.CostCenterID, core.ErrUnknownReference)
	}
	if upd.ExpenseTypeID != nil && *upd.ExpenseTypeID <= 0 {
		return fmt.Errorf("expense type id %d: %w", *upd.ExpenseTypeID, core.ErrUnknownReference)
	}
	if upd.IssueDate != nil {
		if err := upd.IssueDate.Validate(); err != nil {
			return err
		}
	}
	if upd.Amount != nil {
		if err := upd.Amount.Validate(); err != nil {
			return err
		}
	}
	if upd.Number != nil {
		n := strings.TrimSpace(*upd.Number)
		if n == "" {
			return fmt.Errorf("invoice number is required: %w", core.ErrInvalidNumber)
		}
		if len(n) > core.MaxNumberLen {
			return fmt.Errorf("invoice number exceeds %d characters: %w", core.MaxNumberLen, core.ErrInvalidNumber)
		}
	}
	if upd.Note != nil && len(*upd.Note) > core.MaxNoteLen {
		return fmt.Errorf("note exceeds %d characters: %w", core.MaxNoteLen, core.ErrInvalidNote)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, invoiceID int64, action string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishInvoiceEvent(ctx, invoiceID, action); err != nil {
		// The mutation is already committed; the worker's periodic refresh
		// covers a lost event.
		slog.WarnContext(ctx, "Failed to publish invoice event",
			"id", invoiceID, "action", action, "error", err)
	}
}
