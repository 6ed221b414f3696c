package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindSupplier    Kind = "suppliers"
	KindExpenseType Kind = "expense_types"
	KindCostCenter  Kind = "cost_centers"
)

// Field length bounds shared by validation and storage schema.
const (
	MaxLabelLen   = 40
	MaxTaxCodeLen = 20
	MaxNumberLen  = 20
	MaxNoteLen    = 500
)

type (
	// Kind identifies one of the reference registries.
	Kind string

	// Money is a fixed-precision monetary amount in minor units (cents).
	// Arithmetic on it is exact; floating point never touches amounts.
	Money struct {
		Cents int64
	}

	Date struct {
		time.Time
	}

	// DateRange is an inclusive [Start, End] interval. A zero bound leaves
	// that side open.
	DateRange struct {
		Start Date
		End   Date
	}

	// RegistryEntry is one row of a reference registry. TaxCode is set only
	// for supplier entries.
	RegistryEntry struct {
		ID      int64
		Kind    Kind
		Label   string
		TaxCode string
	}

	Invoice struct {
		ID            int64
		SupplierID    int64
		CostCenterID  int64
		ExpenseTypeID int64
		IssueDate     Date
		Amount        Money
		Number        string // supplier's invoice number
		Note          string
		RecordedBy    int64 // id of the user who recorded it; opaque here
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// InvoiceFilter narrows a ledger query. Nil reference fields match any
	// value; Range bounds are inclusive.
	InvoiceFilter struct {
		SupplierID    *int64
		CostCenterID  *int64
		ExpenseTypeID *int64
		RecordedBy    *int64
		Range         DateRange
	}

	// InvoiceUpdate carries a partial invoice mutation; nil fields stay
	// unchanged. An all-nil update is legal and still refreshes the
	// modified timestamp.
	InvoiceUpdate struct {
		SupplierID    *int64
		CostCenterID  *int64
		ExpenseTypeID *int64
		IssueDate     *Date
		Amount        *Money
		Number        *string
		Note          *string
	}

	// InvoiceIterator walks a query result lazily, ordered by issue date
	// ascending then id ascending. Callers must Close it; re-running the
	// query yields a fresh, independent iterator over current state.
	InvoiceIterator interface {
		Next() bool
		Invoice() Invoice
		Err() error
		Close() error
	}

	// User belongs to the access-control boundary. The ledger stores only a
	// user id on invoices and never interprets it.
	User struct {
		ID           int64
		Username     string
		Email        string
		FirstName    string
		LastName     string
		PasswordHash string
		Role         string
		IsActive     bool
		CreatedAt    time.Time
	}
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateLabel    = errors.New("duplicate label")
	ErrInvalidLabel      = errors.New("invalid label")
	ErrDuplicateCode     = errors.New("duplicate tax code")
	ErrInvalidCode       = errors.New("invalid tax code")
	ErrEntryInUse        = errors.New("entry in use")
	ErrUnknownReference  = errors.New("unknown reference")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidRange      = errors.New("invalid date range")
	ErrInvalidNumber     = errors.New("invalid invoice number")
	ErrInvalidNote       = errors.New("invalid note")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyReport       = errors.New("empty report")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStorage           = errors.New("storage error")
)

// DateLayout is the wire and storage format for invoice dates.
const DateLayout = "2006-01-02"

func (k Kind) IsValid() bool {
	switch k {
	case KindSupplier, KindExpenseType, KindCostCenter:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind maps a registry kind name to its Kind. URL-style hyphens are
// accepted ("expense-types" and "expense_types" are the same kind).
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	if !k.IsValid() {
		return "", fmt.Errorf("registry kind %q: %w", s, ErrNotFound)
	}
	return k, nil
}

// NewDate creates a Date from year, month, day in UTC. Out-of-range
// components normalize the way time.Date does; ParseDate is the validating
// path for externally supplied dates.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string, rejecting values that are not real
// calendar dates.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("date %q: %w", s, ErrInvalidDate)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("date is required: %w", ErrInvalidDate)
	}
	if y := d.Time.Year(); y < 1000 || y > 9999 {
		return fmt.Errorf("year %d out of range: %w", y, ErrInvalidDate)
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	return d.Time.Format(DateLayout)
}

func (r DateRange) Validate() error {
	if !r.Start.IsZero() {
		if err := r.Start.Validate(); err != nil {
			return err
		}
	}
	if !r.End.IsZero() {
		if err := r.End.Validate(); err != nil {
			return err
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.Time.After(r.End.Time) {
		return fmt.Errorf("start %s after end %s: %w", r.Start, r.End, ErrInvalidRange)
	}
	return nil
}

// Contains reports whether d falls inside the range, bounds inclusive.
func (r DateRange) Contains(d Date) bool {
	if !r.Start.IsZero() && d.Time.Before(r.Start.Time) {
		return false
	}
	if !r.End.IsZero() && d.Time.After(r.End.Time) {
		return false
	}
	return true
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

func (e RegistryEntry) Validate() error {
	if strings.TrimSpace(e.Label) == "" {
		return fmt.Errorf("%s label is required: %w", e.Kind, ErrInvalidLabel)
	}
	if len(e.Label) > MaxLabelLen {
		return fmt.Errorf("%s label exceeds %d characters: %w", e.Kind, MaxLabelLen, ErrInvalidLabel)
	}
	switch e.Kind {
	case KindSupplier:
		if strings.TrimSpace(e.TaxCode) == "" {
			return fmt.Errorf("supplier tax code is required: %w", ErrInvalidCode)
		}
		if len(e.TaxCode) > MaxTaxCodeLen {
			return fmt.Errorf("supplier tax code exceeds %d characters: %w", MaxTaxCodeLen, ErrInvalidCode)
		}
	default:
		if e.TaxCode != "" {
			return fmt.Errorf("tax code only applies to suppliers: %w", ErrInvalidCode)
		}
	}
	return nil
}

func (inv Invoice) Validate() error {
	if inv.SupplierID <= 0 {
		return fmt.Errorf("supplier id %d: %w", inv.SupplierID, ErrUnknownReference)
	}
	if inv.CostCenterID <= 0 {
		return fmt.Errorf("cost center id %d: %w", inv.CostCenterID, ErrUnknownReference)
	}
	if inv.ExpenseTypeID <= 0 {
		return fmt.Errorf("expense type id %d: %w", inv.ExpenseTypeID, ErrUnknownReference)
	}
	if err := inv.IssueDate.Validate(); err != nil {
		return err
	}
	if err := inv.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(inv.Number) == "" {
		return fmt.Errorf("invoice number is required: %w", ErrInvalidNumber)
	}
	if len(inv.Number) > MaxNumberLen {
		return fmt.Errorf("invoice number exceeds %d characters: %w", MaxNumberLen, ErrInvalidNumber)
	}
	if len(inv.Note) > MaxNoteLen {
		return fmt.Errorf("note exceeds %d characters: %w", MaxNoteLen, ErrInvalidNote)
	}
	if inv.RecordedBy <= 0 {
		return fmt.Errorf("recording user id %d: %w", inv.RecordedBy, ErrUnknownReference)
	}
	return nil
}

// Matches reports whether an invoice satisfies every set filter field.
// Non-SQL backends use it to evaluate queries; the SQL backend expresses the
// same predicate in its WHERE clause.
func (f InvoiceFilter) Matches(inv Invoice) bool {
	if f.SupplierID != nil && inv.SupplierID != *f.SupplierID {
		return false
	}
	if f.CostCenterID != nil && inv.CostCenterID != *f.CostCenterID {
		return false
	}
	if f.ExpenseTypeID != nil && inv.ExpenseTypeID != *f.ExpenseTypeID {
		return false
	}
	if f.RecordedBy != nil && inv.RecordedBy != *f.RecordedBy {
		return false
	}
	return f.Range.Contains(inv.IssueDate)
}

// NewSliceIterator wraps an in-memory slice as an InvoiceIterator. The slice
// is not copied; callers hand over ownership.
func NewSliceIterator(invoices []Invoice) InvoiceIterator {
	return &sliceIterator{invoices: invoices, pos: -1}
}

type sliceIterator struct {
	invoices []Invoice
	pos      int
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.invoices) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Invoice() Invoice {
	return it.invoices[it.pos]
}

func (it *sliceIterator) Err() error { return nil }

func (it *sliceIterator) Close() error { return nil }
