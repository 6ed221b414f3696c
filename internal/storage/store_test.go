package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/auth"
	"fatture/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "fatture.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func seedEntry(t *testing.T, store *Store, kind core.Kind, label, taxCode string) int64 {
	t.Helper()
	id, err := store.CreateEntry(context.Background(), core.RegistryEntry{
		Kind: kind, Label: label, TaxCode: taxCode,
	})
	require.NoError(t, err)
	return id
}

func seedInvoice(t *testing.T, store *Store, supplier, center, expType int64, date core.Date, cents int64) int64 {
	t.Helper()
	id, err := store.InsertInvoice(context.Background(), core.Invoice{
		SupplierID:    supplier,
		CostCenterID:  center,
		ExpenseTypeID: expType,
		IssueDate:     date,
		Amount:        core.Money{Cents: cents},
		Number:        "INV-1",
		RecordedBy:    1,
	})
	require.NoError(t, err)
	return id
}

func TestOpenAppliesMigrations(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Ping(context.Background()))

	// The schema is in place: a basic write works right away.
	seedEntry(t, store, core.KindCostCenter, "Marketing", "")
}

func TestRegistryDuplicateRules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedEntry(t, store, core.KindCostCenter, "Marketing", "")

	_, err := store.CreateEntry(ctx, core.RegistryEntry{Kind: core.KindCostCenter, Label: "MARKETING"})
	assert.ErrorIs(t, err, core.ErrDuplicateLabel)

	// Same label in another kind is allowed.
	_, err = store.CreateEntry(ctx, core.RegistryEntry{Kind: core.KindExpenseType, Label: "Marketing"})
	assert.NoError(t, err)

	seedEntry(t, store, core.KindSupplier, "Acme SpA", "IT0123")
	_, err = store.CreateEntry(ctx, core.RegistryEntry{Kind: core.KindSupplier, Label: "Other Srl", TaxCode: "IT0123"})
	assert.ErrorIs(t, err, core.ErrDuplicateCode)
}

func TestRenameEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := seedEntry(t, store, core.KindCostCenter, "Marketing", "")
	b := seedEntry(t, store, core.KindCostCenter, "Sales", "")

	assert.ErrorIs(t, store.RenameEntry(ctx, core.KindCostCenter, b, "marketing"), core.ErrDuplicateLabel)

	// Self is excluded from the duplicate probe.
	require.NoError(t, store.RenameEntry(ctx, core.KindCostCenter, a, "MARKETING"))
	got, err := store.GetEntry(ctx, core.KindCostCenter, a)
	require.NoError(t, err)
	assert.Equal(t, "MARKETING", got.Label)

	assert.ErrorIs(t, store.RenameEntry(ctx, core.KindCostCenter, 9999, "Ops"), core.ErrNotFound)
}

func TestDeleteEntryInUse(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	supplier := seedEntry(t, store, core.KindSupplier, "Acme SpA", "IT0123")
	center := seedEntry(t, store, core.KindCostCenter, "Marketing", "")
	expType := seedEntry(t, store, core.KindExpenseType, "Consulting", "")
	seedInvoice(t, store, supplier, center, expType, core.NewDate(2026, 3, 15), 10000)

	for _, tc := range []struct {
		kind core.Kind
		id   int64
	}{
		{core.KindSupplier, supplier},
		{core.KindCostCenter, center},
		{core.KindExpenseType, expType},
	} {
		assert.ErrorIs(t, store.DeleteEntry(ctx, tc.kind, tc.id), core.ErrEntryInUse, "kind %s", tc.kind)
		// The entry survives the failed delete.
		_, err := store.GetEntry(ctx, tc.kind, tc.id)
		assert.NoError(t, err)
	}

	unused := seedEntry(t, store, core.KindCostCenter, "Sales", "")
	assert.NoError(t, store.DeleteEntry(ctx, core.KindCostCenter, unused))
	assert.ErrorIs(t, store.DeleteEntry(ctx, core.KindCostCenter, unused), core.ErrNotFound)
}

func TestInsertInvoiceChecksReferences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	supplier := seedEntry(t, store, core.KindSupplier, "Acme SpA", "IT0123")
	center := seedEntry(t, store, core.KindCostCenter, "Marketing", "")
	expType := seedEntry(t, store, core.KindExpenseType, "Consulting", "")

	base := core.Invoice{
		SupplierID:    supplier,
		CostCenterID:  center,
		ExpenseTypeID: expType,
		IssueDate:     core.NewDate(2026, 3, 15),
		Amount:        core.Money{Cents: 10000},
		Number:        "INV-1",
		RecordedBy:    1,
	}

	cases := []struct {
		name   string
		mutate func(*core.Invoice)
		field  string
	}{
		{"unknown supplier", func(v *core.Invoice) { v.SupplierID = 9999 }, "supplier"},
		{"unknown cost center", func(v *core.Invoice) { v.CostCenterID = 9999 }, "cost center"},
		{"unknown expense type", func(v *core.Invoice) { v.ExpenseTypeID = 9999 }, "expense type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := base
			tc.mutate(&inv)
			_, err := store.InsertInvoice(ctx, inv)
			require.ErrorIs(t, err, core.ErrUnknownReference)
			assert.Contains(t, err.Error(), tc.field)
		})
	}

	id, err := store.InsertInvoice(ctx, base)
	require.NoError(t, err)

	got, err := store.GetInvoice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, base.Number, got.Number)
	assert.Equal(t, int64(10000), got.Amount.Cents)
	assert.Equal(t, "2026-03-15", got.IssueDate.String())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestUpdateInvoice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	supplier := seedEntry(t, store, core.KindSupplier, "Acme SpA", "IT0123")
	center := seedEntry(t, store, core.KindCostCenter, "Marketing", "")
	expType := seedEntry(t, store, core.KindExpenseType, "Consulting", "")
	id := seedInvoice(t, store, supplier, center, expType, core.NewDate(2026, 3, 15), 10000)

	before, err := store.GetInvoice(ctx, id)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond) // timestamps are second-resolution

	amount := core.Money{Cents: 25050}
	note := "updated"
	require.NoError(t, store.UpdateInvoice(ctx, id, core.InvoiceUpdate{Amount: &amount, Note: &note}))

	after, err := store.GetInvoice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(25050), after.Amount.Cents)
	assert.Equal(t, "updated", after.Note)
	assert.Equal(t, before.Number, after.Number)
	assert.Equal(t, before.IssueDate, after.IssueDate)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	// A changed reference is re-checked inside the transaction.
	bad := int64(9999)
	assert.ErrorIs(t, store.UpdateInvoice(ctx, id, core.InvoiceUpdate{SupplierID: &bad}), core.ErrUnknownReference)

	assert.ErrorIs(t, store.UpdateInvoice(ctx, 4242, core.InvoiceUpdate{}), core.ErrNotFound)
}

func TestQueryInvoicesOrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	supplier := seedEntry(t, store, core.KindSupplier, "Acme SpA", "IT0123")
	other := seedEntry(t, store, core.KindSupplier, "Beta Srl", "IT0456")
	center := seedEntry(t, store, core.KindCostCenter, "Marketing", "")
	expType := seedEntry(t, store, core.KindExpenseType, "Consulting", "")

	seedInvoice(t, store, supplier, center, expType, core.NewDate(2026, 5, 1), 100)
	seedInvoice(t, store, other, center, expType, core.NewDate(2026, 1, 10), 200)
	seedInvoice(t, store, supplier, center, expType, core.NewDate(2026, 3, 15), 300)

	it, err := store.QueryInvoices(ctx, core.InvoiceFilter{})
	require.NoError(t, err)
	var dates []string
	for it.Next() {
		dates = append(dates, it.Invoice().IssueDate.String())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.Equal(t, []string{"2026-01-10", "2026-03-15", "2026-05-01"}, dates)

	it, err = store.QueryInvoices(ctx, core.InvoiceFilter{
		SupplierID: &supplier,
		Range: core.DateRange{
			Start: core.NewDate(2026, 3, 1),
			End:   core.NewDate(2026, 12, 31),
		},
	})
	require.NoError(t, err)
	n := 0
	for it.Next() {
		assert.Equal(t, supplier, it.Invoice().SupplierID)
		n++
	}
	require.NoError(t, it.Close())
	assert.Equal(t, 2, n)
}

func TestUserStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, core.User{
		Username:     "mario",
		Email:        "mario@example.com",
		PasswordHash: "hash",
		Role:         "user",
		IsActive:     true,
	})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, core.User{
		Username: "mario", Email: "other@example.com", PasswordHash: "hash", Role: "user",
	})
	assert.ErrorIs(t, err, auth.ErrDuplicateUser)
	_, err = store.CreateUser(ctx, core.User{
		Username: "other", Email: "mario@example.com", PasswordHash: "hash", Role: "user",
	})
	assert.ErrorIs(t, err, auth.ErrDuplicateUser)

	u, err := store.GetUserByUsername(ctx, "mario")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.True(t, u.IsActive)

	require.NoError(t, store.UpdateUserPassword(ctx, id, "newhash"))
	require.NoError(t, store.SetUserActive(ctx, id, false))

	u, err = store.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "newhash", u.PasswordHash)
	assert.False(t, u.IsActive)

	assert.ErrorIs(t, store.UpdateUserPassword(ctx, 9999, "x"), core.ErrNotFound)
	_, err = store.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRefreshQueue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueRefresh(ctx, "invoice 1 created"))
	// A second enqueue while one is pending dedupes.
	require.NoError(t, store.EnqueueRefresh(ctx, "invoice 2 created"))

	req, ok, err := store.ClaimRefresh(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "invoice 1 created", req.Reason)
	assert.Equal(t, RefreshProcessing, req.Status)

	// Nothing else pending.
	_, ok, err = store.ClaimRefresh(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Failing below the retry budget requeues it.
	require.NoError(t, store.FailRefresh(ctx, req.ID, "sheet unavailable", 3))
	again, ok, err := store.ClaimRefresh(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, req.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)
	assert.Equal(t, "sheet unavailable", again.LastError)

	require.NoError(t, store.CompleteRefresh(ctx, again.ID))
	_, ok, err = store.ClaimRefresh(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// Terminal rows are swept by cleanup.
	n, err := store.CleanupRefreshes(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
