package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/capability"
	"fatture/internal/core"
	"fatture/internal/ledger"
	"fatture/internal/registry"
	"fatture/internal/storage/memory"
)

type fixture struct {
	svc      *ledger.Service
	store    *memory.Store
	supplier int64
	center   int64
	expType  int64
}

func writerContext() context.Context {
	return capability.WithGrant(context.Background(),
		capability.NewGrant(capability.TagRegistryAdmin, capability.TagLedgerWrite))
}

func newFixture(t *testing.T, events ledger.Publisher) *fixture {
	t.Helper()

	store := memory.New()
	registries := registry.NewService(store)
	ctx := writerContext()

	supplier, err := registries.Create(ctx, registry.CreateParams{
		Kind: core.KindSupplier, Label: "Acme SpA", TaxCode: "IT0123",
	})
	require.NoError(t, err)
	center, err := registries.Create(ctx, registry.CreateParams{Kind: core.KindCostCenter, Label: "Marketing"})
	require.NoError(t, err)
	expType, err := registries.Create(ctx, registry.CreateParams{Kind: core.KindExpenseType, Label: "Consulting"})
	require.NoError(t, err)

	return &fixture{
		svc:      ledger.NewService(store, events),
		store:    store,
		supplier: supplier,
		center:   center,
		expType:  expType,
	}
}

func (f *fixture) params(amount string) ledger.AddParams {
	m, _ := core.ParseAmount(amount)
	return ledger.AddParams{
		SupplierID:    f.supplier,
		CostCenterID:  f.center,
		ExpenseTypeID: f.expType,
		IssueDate:     core.NewDate(2026, 3, 15),
		Amount:        m,
		Number:        "INV-1",
		RecordedBy:    1,
	}
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	it, err := f.svc.Query(context.Background(), core.InvoiceFilter{})
	require.NoError(t, err)
	defer it.Close()
	n := 0
	for it.Next() {
		n++
	}
	require.NoError(t, it.Err())
	return n
}

func TestAddThenGet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := writerContext()

	id, err := f.svc.Add(ctx, f.params("123.45"))
	require.NoError(t, err)

	inv, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, f.supplier, inv.SupplierID)
	assert.Equal(t, f.center, inv.CostCenterID)
	assert.Equal(t, f.expType, inv.ExpenseTypeID)
	assert.Equal(t, "2026-03-15", inv.IssueDate.String())
	assert.Equal(t, int64(12345), inv.Amount.Cents)
	assert.Equal(t, "INV-1", inv.Number)
	assert.False(t, inv.CreatedAt.IsZero())
	assert.Equal(t, inv.CreatedAt, inv.UpdatedAt)
}

func TestAddRejectsInvalid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := writerContext()

	cases := []struct {
		name    string
		mutate  func(*ledger.AddParams)
		wantErr error
	}{
		{"unknown supplier", func(p *ledger.AddParams) { p.SupplierID = 9999 }, core.ErrUnknownReference},
		{"unknown cost center", func(p *ledger.AddParams) { p.CostCenterID = 9999 }, core.ErrUnknownReference},
		{"unknown expense type", func(p *ledger.AddParams) { p.ExpenseTypeID = 9999 }, core.ErrUnknownReference},
		{"zero date", func(p *ledger.AddParams) { p.IssueDate = core.Date{} }, core.ErrInvalidDate},
		{"blank number", func(p *ledger.AddParams) { p.Number = "  " }, core.ErrInvalidNumber},
		{"missing recorder", func(p *ledger.AddParams) { p.RecordedBy = 0 }, core.ErrUnknownReference},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := f.params("10.00")
			tc.mutate(&p)
			_, err := f.svc.Add(ctx, p)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// A negative amount never reaches the store and the count is unchanged.
	p := f.params("10.00")
	p.Amount = core.Money{Cents: -500}
	_, err := f.svc.Add(ctx, p)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	assert.Equal(t, 0, f.count(t))
}

func TestUpdatePartial(t *testing.T) {
	f := newFixture(t, nil)
	ctx := writerContext()

	id, err := f.svc.Add(ctx, f.params("100.00"))
	require.NoError(t, err)
	before, err := f.svc.Get(ctx, id)
	require.NoError(t, err)

	amount := core.Money{Cents: 25050}
	require.NoError(t, f.svc.Update(ctx, id, core.InvoiceUpdate{Amount: &amount}))

	after, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(25050), after.Amount.Cents)
	assert.Equal(t, before.Number, after.Number)
	assert.Equal(t, before.IssueDate, after.IssueDate)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))

	// Bad fields reject the whole update.
	bad := core.Money{Cents: -1}
	assert.ErrorIs(t, f.svc.Update(ctx, id, core.InvoiceUpdate{Amount: &bad}), core.ErrInvalidAmount)
	unchanged, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(25050), unchanged.Amount.Cents)

	ref := int64(9999)
	assert.ErrorIs(t, f.svc.Update(ctx, id, core.InvoiceUpdate{SupplierID: &ref}), core.ErrUnknownReference)

	assert.ErrorIs(t, f.svc.Update(ctx, 4242, core.InvoiceUpdate{}), core.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := writerContext()

	id, err := f.svc.Add(ctx, f.params("10.00"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, id))
	_, err = f.svc.Get(ctx, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, id), core.ErrNotFound)
}

func TestQueryFiltersAndOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := writerContext()

	dates := []core.Date{
		core.NewDate(2026, 5, 1),
		core.NewDate(2026, 1, 10),
		core.NewDate(2026, 3, 15),
	}
	for i, d := range dates {
		p := f.params("10.00")
		p.IssueDate = d
		p.Number = "INV-" + d.String()
		p.RecordedBy = int64(i%2 + 1)
		_, err := f.svc.Add(ctx, p)
		require.NoError(t, err)
	}

	it, err := f.svc.Query(ctx, core.InvoiceFilter{})
	require.NoError(t, err)
	var got []string
	for it.Next() {
		got = append(got, it.Invoice().IssueDate.String())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.Equal(t, []string{"2026-01-10", "2026-03-15", "2026-05-01"}, got)

	// Inclusive range bounds.
	it, err = f.svc.Query(ctx, core.InvoiceFilter{Range: core.DateRange{
		Start: core.NewDate(2026, 1, 10),
		End:   core.NewDate(2026, 3, 15),
	}})
	require.NoError(t, err)
	n := 0
	for it.Next() {
		n++
	}
	require.NoError(t, it.Close())
	assert.Equal(t, 2, n)

	// Recorder filter.
	recorder := int64(2)
	it, err = f.svc.Query(ctx, core.InvoiceFilter{RecordedBy: &recorder})
	require.NoError(t, err)
	n = 0
	for it.Next() {
		assert.Equal(t, recorder, it.Invoice().RecordedBy)
		n++
	}
	require.NoError(t, it.Close())
	assert.Equal(t, 1, n)

	// Inverted range fails before any scan.
	_, err = f.svc.Query(ctx, core.InvoiceFilter{Range: core.DateRange{
		Start: core.NewDate(2026, 12, 31),
		End:   core.NewDate(2026, 1, 1),
	}})
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestMutationsRequireWriteCapability(t *testing.T) {
	f := newFixture(t, nil)
	ctx := writerContext()

	id, err := f.svc.Add(ctx, f.params("10.00"))
	require.NoError(t, err)

	bare := context.Background()
	_, err = f.svc.Add(bare, f.params("10.00"))
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.Update(bare, id, core.InvoiceUpdate{}), core.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.Delete(bare, id), core.ErrUnauthorized)
	assert.Equal(t, 1, f.count(t))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (p *recordingPublisher) PublishInvoiceEvent(_ context.Context, invoiceID int64, action string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return assert.AnError
	}
	p.events = append(p.events, action)
	return nil
}

func TestPublishesEvents(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, pub)
	ctx := writerContext()

	id, err := f.svc.Add(ctx, f.params("10.00"))
	require.NoError(t, err)
	require.NoError(t, f.svc.Update(ctx, id, core.InvoiceUpdate{}))
	require.NoError(t, f.svc.Delete(ctx, id))

	assert.Equal(t, []string{ledger.ActionCreated, ledger.ActionUpdated, ledger.ActionDeleted}, pub.events)
}

// A failing publisher never fails the mutation; the write is already
// committed.
func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	f := newFixture(t, pub)

	id, err := f.svc.Add(writerContext(), f.params("10.00"))
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, 1, f.count(t))
}
