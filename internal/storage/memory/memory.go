// Package memory is a mutex-guarded in-memory implementation of the storage
// ports. Tests and broker-less local development use it; every invariant the
// SQLite store enforces holds here too.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fatture/internal/auth"
	"fatture/internal/core"
	"fatture/internal/ledger"
	"fatture/internal/registry"
)

type Store struct {
	mu        sync.Mutex
	entries   map[core.Kind]map[int64]core.RegistryEntry
	invoices  map[int64]core.Invoice
	users     map[int64]core.User
	refreshes map[int64]refresh
	nextID    map[string]int64
}

type refresh struct {
	id          int64
	reason      string
	status      string
	attempts    int
	lastError   string
	requestedAt time.Time
	updatedAt   time.Time
}

// Refresh statuses, matching the SQLite queue.
const (
	refreshPending    = "pending"
	refreshProcessing = "processing"
	refreshCompleted  = "completed"
	refreshFailed     = "failed"
)

var (
	_ registry.Store = (*Store)(nil)
	_ ledger.Store   = (*Store)(nil)
	_ auth.Store     = (*Store)(nil)
)

func New() *Store {
	return &Store{
		entries: map[core.Kind]map[int64]core.RegistryEntry{
			core.KindSupplier:    {},
			core.KindExpenseType: {},
			core.KindCostCenter:  {},
		},
		invoices:  make(map[int64]core.Invoice),
		users:     make(map[int64]core.User),
		refreshes: make(map[int64]refresh),
		nextID:    make(map[string]int64),
	}
}

func (s *Store) Close() error { return nil }

// Ping always succeeds; the map is never unreachable.
func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) id(scope string) int64 {
	s.nextID[scope]++
	return s.nextID[scope]
}

// --- registry.Store ---

func (s *Store) CreateEntry(ctx context.Context, e core.RegistryEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind, ok := s.entries[e.Kind]
	if !ok {
		return 0, fmt.Errorf("registry kind %q: %w", e.Kind, core.ErrNotFound)
	}
	fold := core.FoldLabel(e.Label)
	for _, existing := range kind {
		if core.FoldLabel(existing.Label) == fold {
			return 0, fmt.Errorf("%s label %q already exists as entry %d: %w",
				e.Kind, e.Label, existing.ID, core.ErrDuplicateLabel)
		}
	}
	if e.Kind == core.KindSupplier {
		for _, existing := range kind {
			if existing.TaxCode == e.TaxCode {
				return 0, fmt.Errorf("tax code %q already registered to supplier %d: %w",
					e.TaxCode, existing.ID, core.ErrDuplicateCode)
			}
		}
	}

	e.ID = s.id(string(e.Kind))
	kind[e.ID] = e
	return e.ID, nil
}

func (s *Store) GetEntry(ctx context.Context, kind core.Kind, id int64) (core.RegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[kind]
	if !ok {
		return core.RegistryEntry{}, fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	e, ok := entries[id]
	if !ok {
		return core.RegistryEntry{}, fmt.Errorf("%s id %d: %w", kind, id, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) RenameEntry(ctx context.Context, kind core.Kind, id int64, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[kind]
	if !ok {
		return fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	e, ok := entries[id]
	if !ok {
		return fmt.Errorf("%s id %d: %w", kind, id, core.ErrNotFound)
	}
	fold := core.FoldLabel(label)
	for _, existing := range entries {
		if existing.ID != id && core.FoldLabel(existing.Label) == fold {
			return fmt.Errorf("%s label %q already exists as entry %d: %w",
				kind, label, existing.ID, core.ErrDuplicateLabel)
		}
	}
	e.Label = label
	entries[id] = e
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, kind core.Kind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[kind]
	if !ok {
		return fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	if _, ok := entries[id]; !ok {
		return fmt.Errorf("%s id %d: %w", kind, id, core.ErrNotFound)
	}

	refs := 0
	for _, inv := range s.invoices {
		if invoiceReferences(inv, kind, id) {
			refs++
		}
	}
	if refs > 0 {
		return fmt.Errorf("%s id %d is referenced by %d invoice(s): %w",
			kind, id, refs, core.ErrEntryInUse)
	}

	delete(entries, id)
	return nil
}

func (s *Store) ListEntries(ctx context.Context, kind core.Kind) ([]core.RegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[kind]
	if !ok {
		return nil, fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	out := make([]core.RegistryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) EntryExists(ctx context.Context, kind core.Kind, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.entries[kind]
	if !ok {
		return false, fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	_, ok = entries[id]
	return ok, nil
}

func invoiceReferences(inv core.Invoice, kind core.Kind, id int64) bool {
	switch kind {
	case core.KindSupplier:
		return inv.SupplierID == id
	case core.KindCostCenter:
		return inv.CostCenterID == id
	case core.KindExpenseType:
		return inv.ExpenseTypeID == id
	}
	return false
}

// --- ledger.Store ---

func (s *Store) InsertInvoice(ctx context.Context, inv core.Invoice) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReferences(inv.SupplierID, inv.CostCenterID, inv.ExpenseTypeID); err != nil {
		return 0, err
	}

	inv.ID = s.id("invoices")
	now := time.Now().UTC().Truncate(time.Second)
	inv.CreatedAt = now
	inv.UpdatedAt = now
	s.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, id int64, upd core.InvoiceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return fmt.Errorf("invoice id %d: %w", id, core.ErrNotFound)
	}

	next := inv
	if upd.SupplierID != nil {
		next.SupplierID = *upd.SupplierID
	}
	if upd.CostCenterID != nil {
		next.CostCenterID = *upd.CostCenterID
	}
	if upd.ExpenseTypeID != nil {
		next.ExpenseTypeID = *upd.ExpenseTypeID
	}
	if err := s.checkReferences(next.SupplierID, next.CostCenterID, next.ExpenseTypeID); err != nil {
		return err
	}
	if upd.IssueDate != nil {
		next.IssueDate = *upd.IssueDate
	}
	if upd.Amount != nil {
		next.Amount = *upd.Amount
	}
	if upd.Number != nil {
		next.Number = strings.TrimSpace(*upd.Number)
	}
	if upd.Note != nil {
		next.Note = strings.TrimSpace(*upd.Note)
	}
	next.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	s.invoices[id] = next
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return fmt.Errorf("invoice id %d: %w", id, core.ErrNotFound)
	}
	delete(s.invoices, id)
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (core.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return core.Invoice{}, fmt.Errorf("invoice id %d: %w", id, core.ErrNotFound)
	}
	return inv, nil
}

// QueryInvoices snapshots the matching invoices under the lock and returns a
// slice-backed iterator, so a concurrent mutation never affects a running
// query.
func (s *Store) QueryInvoices(ctx context.Context, f core.InvoiceFilter) (core.InvoiceIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []core.Invoice
	for _, inv := range s.invoices {
		if f.Matches(inv) {
			matched = append(matched, inv)
		}
	}
	sortInvoices(matched)
	return core.NewSliceIterator(matched), nil
}

func (s *Store) checkReferences(supplierID, costCenterID, expenseTypeID int64) error {
	if _, ok := s.entries[core.KindSupplier][supplierID]; !ok {
		return fmt.Errorf("supplier id %d: %w", supplierID, core.ErrUnknownReference)
	}
	if _, ok := s.entries[core.KindCostCenter][costCenterID]; !ok {
		return fmt.Errorf("cost center id %d: %w", costCenterID, core.ErrUnknownReference)
	}
	if _, ok := s.entries[core.KindExpenseType][expenseTypeID]; !ok {
		return fmt.Errorf("expense type id %d: %w", expenseTypeID, core.ErrUnknownReference)
	}
	return nil
}

func sortInvoices(invoices []core.Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		a, b := invoices[i], invoices[j]
		if !a.IssueDate.Equal(b.IssueDate.Time) {
			return a.IssueDate.Before(b.IssueDate.Time)
		}
		return a.ID < b.ID
	})
}
