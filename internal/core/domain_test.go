package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2024, 3, 14), true},
		{NewDate(1000, 1, 1), true},
		{NewDate(9999, 12, 31), true},
		{Date{}, false},
		{NewDate(999, 5, 2), false},
		{Date{Time: time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)}, false},
	}
	for i, c := range cases {
		err := c.d.Validate()
		if c.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("case %d expected error, got nil", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-03-14", true},
		{" 2024-03-14 ", true},
		{"2024-02-29", true},
		{"2023-02-29", false},
		{"2024-02-30", false},
		{"2024-13-01", false},
		{"14/03/2024", false},
		{"", false},
		{"not-a-date", false},
	}
	for i, c := range cases {
		d, err := ParseDate(c.in)
		if c.ok {
			if err != nil {
				t.Fatalf("case %d expected ok, got %v", i, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("case %d expected error, got date %s", i, d)
		}
		if !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("case %d expected ErrInvalidDate, got %v", i, err)
		}
	}
}

func TestDateRangeValidate(t *testing.T) {
	cases := []struct {
		r  DateRange
		ok bool
	}{
		{DateRange{}, true},
		{DateRange{Start: NewDate(2024, 1, 1)}, true},
		{DateRange{End: NewDate(2024, 1, 1)}, true},
		{DateRange{Start: NewDate(2024, 1, 1), End: NewDate(2024, 12, 31)}, true},
		{DateRange{Start: NewDate(2024, 1, 1), End: NewDate(2024, 1, 1)}, true},
		{DateRange{Start: NewDate(2024, 12, 31), End: NewDate(2024, 1, 1)}, false},
	}
	for i, c := range cases {
		err := c.r.Validate()
		if c.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !c.ok {
			if err == nil {
				t.Fatalf("case %d expected error, got nil", i)
			}
			if !errors.Is(err, ErrInvalidRange) {
				t.Fatalf("case %d expected ErrInvalidRange, got %v", i, err)
			}
		}
	}
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{Start: NewDate(2024, 2, 1), End: NewDate(2024, 2, 29)}
	cases := []struct {
		d    Date
		want bool
	}{
		{NewDate(2024, 2, 1), true},
		{NewDate(2024, 2, 15), true},
		{NewDate(2024, 2, 29), true},
		{NewDate(2024, 1, 31), false},
		{NewDate(2024, 3, 1), false},
	}
	for i, c := range cases {
		if got := r.Contains(c.d); got != c.want {
			t.Fatalf("case %d Contains(%s) = %v, want %v", i, c.d, got, c.want)
		}
	}

	open := DateRange{Start: NewDate(2024, 2, 1)}
	if !open.Contains(NewDate(2030, 1, 1)) {
		t.Fatalf("open-ended range should contain any later date")
	}
	if open.Contains(NewDate(2024, 1, 31)) {
		t.Fatalf("open-ended range should still enforce its start bound")
	}
}

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"suppliers", KindSupplier, true},
		{"expense_types", KindExpenseType, true},
		{"expense-types", KindExpenseType, true},
		{"cost-centers", KindCostCenter, true},
		{" cost_centers ", KindCostCenter, true},
		{"invoices", "", false},
		{"", "", false},
	}
	for i, c := range cases {
		got, err := ParseKind(c.in)
		if c.ok {
			if err != nil {
				t.Fatalf("case %d expected ok, got %v", i, err)
			}
			if got != c.want {
				t.Fatalf("case %d got %q, want %q", i, got, c.want)
			}
			continue
		}
		if err == nil {
			t.Fatalf("case %d expected error, got %q", i, got)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("case %d expected ErrNotFound, got %v", i, err)
		}
	}
}

func TestRegistryEntryValidate(t *testing.T) {
	long := make([]byte, MaxLabelLen+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		e       RegistryEntry
		wantErr error
	}{
		{RegistryEntry{Kind: KindCostCenter, Label: "Marketing"}, nil},
		{RegistryEntry{Kind: KindExpenseType, Label: "Utilities"}, nil},
		{RegistryEntry{Kind: KindSupplier, Label: "Acme S.p.A.", TaxCode: "IT01234567890"}, nil},
		{RegistryEntry{Kind: KindCostCenter, Label: ""}, ErrInvalidLabel},
		{RegistryEntry{Kind: KindCostCenter, Label: "   "}, ErrInvalidLabel},
		{RegistryEntry{Kind: KindCostCenter, Label: string(long)}, ErrInvalidLabel},
		{RegistryEntry{Kind: KindSupplier, Label: "Acme"}, ErrInvalidCode},
		{RegistryEntry{Kind: KindSupplier, Label: "Acme", TaxCode: "   "}, ErrInvalidCode},
		{RegistryEntry{Kind: KindExpenseType, Label: "Travel", TaxCode: "IT123"}, ErrInvalidCode},
	}
	for i, c := range cases {
		err := c.e.Validate()
		if c.wantErr == nil {
			if err != nil {
				t.Fatalf("case %d expected ok, got %v", i, err)
			}
			continue
		}
		if !errors.Is(err, c.wantErr) {
			t.Fatalf("case %d expected %v, got %v", i, c.wantErr, err)
		}
	}
}

func TestInvoiceValidate(t *testing.T) {
	good := Invoice{
		SupplierID:    1,
		CostCenterID:  2,
		ExpenseTypeID: 3,
		IssueDate:     NewDate(2024, 3, 14),
		Amount:        Money{Cents: 12550},
		Number:        "70-1-77",
		RecordedBy:    9,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid invoice rejected: %v", err)
	}

	longNote := make([]byte, MaxNoteLen+1)
	for i := range longNote {
		longNote[i] = 'n'
	}

	bads := []struct {
		mutate  func(*Invoice)
		wantErr error
	}{
		{func(v *Invoice) { v.SupplierID = 0 }, ErrUnknownReference},
		{func(v *Invoice) { v.CostCenterID = -1 }, ErrUnknownReference},
		{func(v *Invoice) { v.ExpenseTypeID = 0 }, ErrUnknownReference},
		{func(v *Invoice) { v.IssueDate = Date{} }, ErrInvalidDate},
		{func(v *Invoice) { v.Amount = Money{Cents: -1} }, ErrInvalidAmount},
		{func(v *Invoice) { v.Number = "" }, ErrInvalidNumber},
		{func(v *Invoice) { v.Number = "123456789012345678901" }, ErrInvalidNumber},
		{func(v *Invoice) { v.Note = string(longNote) }, ErrInvalidNote},
		{func(v *Invoice) { v.RecordedBy = 0 }, ErrUnknownReference},
	}
	for i, b := range bads {
		inv := good
		b.mutate(&inv)
		err := inv.Validate()
		if err == nil {
			t.Fatalf("case %d expected error, got nil", i)
		}
		if !errors.Is(err, b.wantErr) {
			t.Fatalf("case %d expected %v, got %v", i, b.wantErr, err)
		}
	}
}

func TestInvoiceFilterMatches(t *testing.T) {
	inv := Invoice{
		SupplierID:    1,
		CostCenterID:  2,
		ExpenseTypeID: 3,
		RecordedBy:    4,
		IssueDate:     NewDate(2024, 6, 15),
	}
	id := func(v int64) *int64 { return &v }

	cases := []struct {
		f    InvoiceFilter
		want bool
	}{
		{InvoiceFilter{}, true},
		{InvoiceFilter{SupplierID: id(1)}, true},
		{InvoiceFilter{SupplierID: id(7)}, false},
		{InvoiceFilter{CostCenterID: id(2), ExpenseTypeID: id(3)}, true},
		{InvoiceFilter{CostCenterID: id(2), ExpenseTypeID: id(9)}, false},
		{InvoiceFilter{RecordedBy: id(4)}, true},
		{InvoiceFilter{RecordedBy: id(5)}, false},
		{InvoiceFilter{Range: DateRange{Start: NewDate(2024, 6, 1), End: NewDate(2024, 6, 30)}}, true},
		{InvoiceFilter{Range: DateRange{End: NewDate(2024, 5, 31)}}, false},
	}
	for i, c := range cases {
		if got := c.f.Matches(inv); got != c.want {
			t.Fatalf("case %d Matches = %v, want %v", i, got, c.want)
		}
	}
}

func TestSliceIterator(t *testing.T) {
	invoices := []Invoice{{ID: 1}, {ID: 2}, {ID: 3}}
	it := NewSliceIterator(invoices)
	defer it.Close()

	var got []int64
	for it.Next() {
		got = append(got, it.Invoice().ID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("unexpected iterator error: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected ids: %v", got)
	}
	if it.Next() {
		t.Fatalf("exhausted iterator should stay exhausted")
	}
}
