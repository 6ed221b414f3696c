package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fatture/internal/core"
)

// invoiceColumns is the scan order shared by every invoice read.
const invoiceColumns = "id, supplier_id, cost_center_id, expense_type_id, issue_date, amount_cents, number, note, recorded_by, created_at, updated_at"

// InsertInvoice resolves every reference inside the transaction before the
// write. A missing reference names its field in the error.
func (s *Store) InsertInvoice(ctx context.Context, inv core.Invoice) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := checkReference(ctx, tx, "suppliers", "supplier", inv.SupplierID); err != nil {
			return err
		}
		if err := checkReference(ctx, tx, "cost_centers", "cost center", inv.CostCenterID); err != nil {
			return err
		}
		if err := checkReference(ctx, tx, "expense_types", "expense type", inv.ExpenseTypeID); err != nil {
			return err
		}

		now := nowUTC()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO invoices (supplier_id, cost_center_id, expense_type_id, issue_date, amount_cents, number, note, recorded_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.SupplierID, inv.CostCenterID, inv.ExpenseTypeID,
			inv.IssueDate.String(), inv.Amount.Cents,
			inv.Number, inv.Note, inv.RecordedBy, now, now)
		if err != nil {
			return storageErr("insert invoice", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return storageErr("read insert id", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateInvoice reads the current row, applies the non-nil fields, re-resolves
// any changed reference and writes back, all in one transaction. updated_at is
// refreshed even when no field changes.
func (s *Store) UpdateInvoice(ctx context.Context, id int64, upd core.InvoiceUpdate) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id)
		inv, err := scanInvoice(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("invoice id %d: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if upd.SupplierID != nil && *upd.SupplierID != inv.SupplierID {
			if err := checkReference(ctx, tx, "suppliers", "supplier", *upd.SupplierID); err != nil {
				return err
			}
			inv.SupplierID = *upd.SupplierID
		}
		if upd.CostCenterID != nil && *upd.CostCenterID != inv.CostCenterID {
			if err := checkReference(ctx, tx, "cost_centers", "cost center", *upd.CostCenterID); err != nil {
				return err
			}
			inv.CostCenterID = *upd.CostCenterID
		}
		if upd.ExpenseTypeID != nil && *upd.ExpenseTypeID != inv.ExpenseTypeID {
			if err := checkReference(ctx, tx, "expense_types", "expense type", *upd.ExpenseTypeID); err != nil {
				return err
			}
			inv.ExpenseTypeID = *upd.ExpenseTypeID
		}
		if upd.IssueDate != nil {
			inv.IssueDate = *upd.IssueDate
		}
		if upd.Amount != nil {
			inv.Amount = *upd.Amount
		}
		if upd.Number != nil {
			inv.Number = strings.TrimSpace(*upd.Number)
		}
		if upd.Note != nil {
			inv.Note = strings.TrimSpace(*upd.Note)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE invoices
			SET supplier_id = ?, cost_center_id = ?, expense_type_id = ?, issue_date = ?, amount_cents = ?, number = ?, note = ?, updated_at = ?
			WHERE id = ?`,
			inv.SupplierID, inv.CostCenterID, inv.ExpenseTypeID,
			inv.IssueDate.String(), inv.Amount.Cents,
			inv.Number, inv.Note, nowUTC(), id)
		if err != nil {
			return storageErr("update invoice", err)
		}
		return nil
	})
}

func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM invoices WHERE id = ?", id)
		if err != nil {
			return storageErr("delete invoice", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("read rows affected", err)
		}
		if n == 0 {
			return fmt.Errorf("invoice id %d: %w", id, core.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (core.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id)
	inv, err := scanInvoice(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, fmt.Errorf("invoice id %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Invoice{}, err
	}
	return inv, nil
}

// QueryInvoices streams matching invoices ordered by issue date then id. The
// filter predicate is expressed entirely in the WHERE clause, mirroring
// core.InvoiceFilter.Matches.
func (s *Store) QueryInvoices(ctx context.Context, f core.InvoiceFilter) (core.InvoiceIterator, error) {
	var (
		conds []string
		args  []any
	)
	if f.SupplierID != nil {
		conds = append(conds, "supplier_id = ?")
		args = append(args, *f.SupplierID)
	}
	if f.CostCenterID != nil {
		conds = append(conds, "cost_center_id = ?")
		args = append(args, *f.CostCenterID)
	}
	if f.ExpenseTypeID != nil {
		conds = append(conds, "expense_type_id = ?")
		args = append(args, *f.ExpenseTypeID)
	}
	if f.RecordedBy != nil {
		conds = append(conds, "recorded_by = ?")
		args = append(args, *f.RecordedBy)
	}
	if !f.Range.Start.IsZero() {
		conds = append(conds, "issue_date >= ?")
		args = append(args, f.Range.Start.String())
	}
	if !f.Range.End.IsZero() {
		conds = append(conds, "issue_date <= ?")
		args = append(args, f.Range.End.String())
	}

	q := "SELECT " + invoiceColumns + " FROM invoices"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY issue_date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("query invoices", err)
	}
	return &rowsIterator{rows: rows}, nil
}

// checkReference fails with ErrUnknownReference naming the field if the id is
// absent from the reference table.
func checkReference(ctx context.Context, tx *sql.Tx, table, field string, id int64) error {
	var exists bool
	q := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", table)
	if err := tx.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		return storageErr("check "+field+" reference", err)
	}
	if !exists {
		return fmt.Errorf("%s id %d: %w", field, id, core.ErrUnknownReference)
	}
	return nil
}

// scanInvoice decodes one invoice row through any Scan-shaped function.
func scanInvoice(scan func(dest ...any) error) (core.Invoice, error) {
	var (
		inv     core.Invoice
		dateStr string
	)
	err := scan(&inv.ID, &inv.SupplierID, &inv.CostCenterID, &inv.ExpenseTypeID,
		&dateStr, &inv.Amount.Cents, &inv.Number, &inv.Note, &inv.RecordedBy,
		&inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Invoice{}, err
	}
	if err != nil {
		return core.Invoice{}, storageErr("scan invoice", err)
	}
	inv.IssueDate, err = core.ParseDate(dateStr)
	if err != nil {
		return core.Invoice{}, storageErr("decode issue date", err)
	}
	return inv, nil
}

// rowsIterator adapts *sql.Rows to core.InvoiceIterator.
type rowsIterator struct {
	rows *sql.Rows
	cur  core.Invoice
	err  error
}

func (it *rowsIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = storageErr("iterate invoices", err)
		}
		return false
	}
	inv, err := scanInvoice(it.rows.Scan)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = inv
	return true
}

func (it *rowsIterator) Invoice() core.Invoice { return it.cur }

func (it *rowsIterator) Err() error { return it.err }

func (it *rowsIterator) Close() error { return it.rows.Close() }
