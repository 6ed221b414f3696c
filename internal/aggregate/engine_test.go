package aggregate_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/aggregate"
	"fatture/internal/capability"
	"fatture/internal/core"
	"fatture/internal/ledger"
	"fatture/internal/registry"
	"fatture/internal/storage/memory"
)

type harness struct {
	engine     *aggregate.Engine
	invoices   *ledger.Service
	registries *registry.Service
	ctx        context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	registries := registry.NewService(store)
	invoices := ledger.NewService(store, nil)
	return &harness{
		engine:     aggregate.NewEngine(invoices, registries),
		invoices:   invoices,
		registries: registries,
		ctx: capability.WithGrant(context.Background(),
			capability.NewGrant(capability.TagRegistryAdmin, capability.TagLedgerWrite)),
	}
}

func (h *harness) center(t *testing.T, label string) int64 {
	t.Helper()
	id, err := h.registries.Create(h.ctx, registry.CreateParams{Kind: core.KindCostCenter, Label: label})
	require.NoError(t, err)
	return id
}

func (h *harness) expType(t *testing.T, label string) int64 {
	t.Helper()
	id, err := h.registries.Create(h.ctx, registry.CreateParams{Kind: core.KindExpenseType, Label: label})
	require.NoError(t, err)
	return id
}

func (h *harness) supplier(t *testing.T) int64 {
	t.Helper()
	id, err := h.registries.Create(h.ctx, registry.CreateParams{
		Kind: core.KindSupplier, Label: "Acme SpA", TaxCode: "IT0123",
	})
	require.NoError(t, err)
	return id
}

func (h *harness) add(t *testing.T, supplier, center, expType int64, date core.Date, cents int64, number string) {
	t.Helper()
	_, err := h.invoices.Add(h.ctx, ledger.AddParams{
		SupplierID:    supplier,
		CostCenterID:  center,
		ExpenseTypeID: expType,
		IssueDate:     date,
		Amount:        core.Money{Cents: cents},
		Number:        number,
		RecordedBy:    1,
	})
	require.NoError(t, err)
}

func TestAggregateKnownScenario(t *testing.T) {
	h := newHarness(t)
	supplier := h.supplier(t)
	marketing := h.center(t, "Marketing")
	h.center(t, "Sales")
	consulting := h.expType(t, "Consulting")

	for i, cents := range []int64{10000, 25050, 4950} {
		h.add(t, supplier, marketing, consulting, core.NewDate(2026, 3, 10+i), cents, fmt.Sprintf("INV-%d", i))
	}

	// IncludeEmpty=false omits Sales entirely.
	rep, err := h.engine.Aggregate(h.ctx, aggregate.Request{})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, "Marketing", rep.Rows[0].CostCenterLabel)
	assert.Equal(t, int64(40000), rep.Rows[0].Total.Cents)
	assert.Equal(t, 3, rep.Rows[0].InvoiceCount)
	assert.Equal(t, int64(40000), rep.Rows[0].ByExpenseType[consulting].Cents)
	require.Len(t, rep.ExpenseTypes, 1)
	assert.Equal(t, "Consulting", rep.ExpenseTypes[0].Label)

	// IncludeEmpty=true keeps Sales as a zero row after Marketing.
	rep, err = h.engine.Aggregate(h.ctx, aggregate.Request{IncludeEmpty: true})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, "Sales", rep.Rows[1].CostCenterLabel)
	assert.Equal(t, int64(0), rep.Rows[1].Total.Cents)
	assert.Equal(t, 0, rep.Rows[1].InvoiceCount)
}

func TestAggregateEmptyLedger(t *testing.T) {
	h := newHarness(t)
	h.center(t, "Marketing")

	rep, err := h.engine.Aggregate(h.ctx, aggregate.Request{})
	require.NoError(t, err)
	assert.Empty(t, rep.Rows)
	assert.Empty(t, rep.ExpenseTypes)

	// Zero rows never appear without IncludeEmpty.
	for _, row := range rep.Rows {
		assert.Positive(t, row.InvoiceCount)
	}
}

func TestAggregateInvertedRangeFailsFast(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Aggregate(h.ctx, aggregate.Request{Range: core.DateRange{
		Start: core.NewDate(2026, 12, 31),
		End:   core.NewDate(2026, 1, 1),
	}})
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestAggregateRangeAndTypeFilter(t *testing.T) {
	h := newHarness(t)
	supplier := h.supplier(t)
	center := h.center(t, "Marketing")
	consulting := h.expType(t, "Consulting")
	software := h.expType(t, "Software")

	h.add(t, supplier, center, consulting, core.NewDate(2026, 1, 15), 1000, "A")
	h.add(t, supplier, center, consulting, core.NewDate(2026, 6, 15), 2000, "B")
	h.add(t, supplier, center, software, core.NewDate(2026, 6, 20), 4000, "C")

	rep, err := h.engine.Aggregate(h.ctx, aggregate.Request{Range: core.DateRange{
		Start: core.NewDate(2026, 6, 1),
		End:   core.NewDate(2026, 6, 30),
	}})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, int64(6000), rep.Rows[0].Total.Cents)
	assert.Equal(t, 2, rep.Rows[0].InvoiceCount)

	rep, err = h.engine.Aggregate(h.ctx, aggregate.Request{ExpenseTypeID: &software})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, int64(4000), rep.Rows[0].Total.Cents)
	require.Len(t, rep.ExpenseTypes, 1)
	assert.Equal(t, software, rep.ExpenseTypes[0].ID)
}

type scriptedInvoices struct {
	invoices []core.Invoice
}

func (s *scriptedInvoices) Query(_ context.Context, _ core.InvoiceFilter) (core.InvoiceIterator, error) {
	return core.NewSliceIterator(s.invoices), nil
}

type scriptedRegistries struct {
	centers []core.RegistryEntry
	types   []core.RegistryEntry
}

func (s *scriptedRegistries) List(_ context.Context, kind core.Kind) ([]core.RegistryEntry, error) {
	if kind == core.KindCostCenter {
		return s.centers, nil
	}
	return s.types, nil
}

// A cost center committed between the invoice scan and the registry read must
// surface as a normal row, and one deleted in that window (its invoices went
// first) must simply drop out. Neither interleaving is an error.
func TestAggregateToleratesInterleavedRegistryChanges(t *testing.T) {
	invoice := func(center int64, cents int64) core.Invoice {
		return core.Invoice{
			SupplierID:    1,
			CostCenterID:  center,
			ExpenseTypeID: 10,
			IssueDate:     core.NewDate(2026, 3, 15),
			Amount:        core.Money{Cents: cents},
			Number:        "INV-1",
			RecordedBy:    1,
		}
	}

	// Center 7 only appears in the registry read, as if created mid-read;
	// center 42 only appears in the scan, as if deleted mid-read.
	engine := aggregate.NewEngine(
		&scriptedInvoices{invoices: []core.Invoice{invoice(7, 1500), invoice(42, 9900)}},
		&scriptedRegistries{
			centers: []core.RegistryEntry{{ID: 7, Kind: core.KindCostCenter, Label: "Logistics"}},
			types:   []core.RegistryEntry{{ID: 10, Kind: core.KindExpenseType, Label: "Consulting"}},
		},
	)

	rep, err := engine.Aggregate(context.Background(), aggregate.Request{})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, int64(7), rep.Rows[0].CostCenterID)
	assert.Equal(t, "Logistics", rep.Rows[0].CostCenterLabel)
	assert.Equal(t, int64(1500), rep.Rows[0].Total.Cents)
}

// Totals must equal brute-force recomputation over a random invoice set and
// be invariant under insertion order.
func TestAggregateMatchesBruteForce(t *testing.T) {
	h := newHarness(t)
	supplier := h.supplier(t)

	rng := rand.New(rand.NewSource(42))

	var centers, types []int64
	for i := 0; i < 5; i++ {
		centers = append(centers, h.center(t, fmt.Sprintf("Center %d", i)))
	}
	for i := 0; i < 3; i++ {
		types = append(types, h.expType(t, fmt.Sprintf("Type %d", i)))
	}

	type entry struct {
		center, expType int64
		cents           int64
	}
	entries := make([]entry, 200)
	for i := range entries {
		entries[i] = entry{
			center:  centers[rng.Intn(len(centers))],
			expType: types[rng.Intn(len(types))],
			cents:   rng.Int63n(1_000_000),
		}
	}
	// Shuffled insertion order must not change the result.
	rng.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })

	wantTotal := make(map[int64]int64)
	wantCount := make(map[int64]int)
	for i, e := range entries {
		wantTotal[e.center] += e.cents
		wantCount[e.center]++
		date := core.NewDate(2026, 1+rng.Intn(12), 1+rng.Intn(28))
		h.add(t, supplier, e.center, e.expType, date, e.cents, fmt.Sprintf("R-%d", i))
	}

	rep, err := h.engine.Aggregate(h.ctx, aggregate.Request{IncludeEmpty: true})
	require.NoError(t, err)
	require.Len(t, rep.Rows, len(centers))

	var grand int64
	for _, row := range rep.Rows {
		assert.Equal(t, wantTotal[row.CostCenterID], row.Total.Cents, "center %s", row.CostCenterLabel)
		assert.Equal(t, wantCount[row.CostCenterID], row.InvoiceCount, "center %s", row.CostCenterLabel)

		var byType int64
		for _, m := range row.ByExpenseType {
			byType += m.Cents
		}
		assert.Equal(t, row.Total.Cents, byType, "breakdown must sum to the row total")
		grand += row.Total.Cents
	}

	var wantGrand int64
	for _, e := range entries {
		wantGrand += e.cents
	}
	assert.Equal(t, wantGrand, grand)
}
