package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fatture/internal/core"
)

// kindTable maps a registry kind to its physical layout. The label column is
// paired with a case-folded shadow column backing the uniqueness invariant.
type kindTable struct {
	table      string
	labelCol   string
	invoiceCol string // FK column on invoices
	hasTaxCode bool
}

var kindTables = map[core.Kind]kindTable{
	core.KindSupplier:    {table: "suppliers", labelCol: "name", invoiceCol: "supplier_id", hasTaxCode: true},
	core.KindExpenseType: {table: "expense_types", labelCol: "label", invoiceCol: "expense_type_id"},
	core.KindCostCenter:  {table: "cost_centers", labelCol: "label", invoiceCol: "cost_center_id"},
}

func tableFor(kind core.Kind) (kindTable, error) {
	kt, ok := kindTables[kind]
	if !ok {
		return kindTable{}, fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	return kt, nil
}

// CreateEntry probes for a case-insensitive duplicate and inserts in one
// transaction, so two racing creates of the same label cannot both commit.
func (s *Store) CreateEntry(ctx context.Context, e core.RegistryEntry) (int64, error) {
	kt, err := tableFor(e.Kind)
	if err != nil {
		return 0, err
	}
	fold := core.FoldLabel(e.Label)

	var id int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		q := fmt.Sprintf("SELECT id FROM %s WHERE %s_fold = ?", kt.table, kt.labelCol)
		err := tx.QueryRowContext(ctx, q, fold).Scan(&existing)
		switch {
		case err == nil:
			return fmt.Errorf("%s label %q already exists as entry %d: %w", e.Kind, e.Label, existing, core.ErrDuplicateLabel)
		case !errors.Is(err, sql.ErrNoRows):
			return storageErr("probe duplicate label", err)
		}

		if kt.hasTaxCode {
			err := tx.QueryRowContext(ctx, "SELECT id FROM suppliers WHERE tax_code = ?", e.TaxCode).Scan(&existing)
			switch {
			case err == nil:
				return fmt.Errorf("tax code %q already registered to supplier %d: %w", e.TaxCode, existing, core.ErrDuplicateCode)
			case !errors.Is(err, sql.ErrNoRows):
				return storageErr("probe duplicate tax code", err)
			}

			res, err := tx.ExecContext(ctx,
				"INSERT INTO suppliers (name, name_fold, tax_code) VALUES (?, ?, ?)",
				e.Label, fold, e.TaxCode)
			if err != nil {
				return storageErr("insert supplier", err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return storageErr("read insert id", err)
			}
			return nil
		}

		q = fmt.Sprintf("INSERT INTO %s (%s, %s_fold) VALUES (?, ?)", kt.table, kt.labelCol, kt.labelCol)
		res, err := tx.ExecContext(ctx, q, e.Label, fold)
		if err != nil {
			return storageErr("insert registry entry", err)
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

func (s *Store) GetEntry(ctx context.Context, kind core.Kind, id int64) (core.RegistryEntry, error) {
	kt, err := tableFor(kind)
	if err != nil {
		return core.RegistryEntry{}, err
	}

	e := core.RegistryEntry{ID: id, Kind: kind}
	if kt.hasTaxCode {
		err = s.db.QueryRowContext(ctx,
			"SELECT name, tax_code FROM suppliers WHERE id = ?", id).Scan(&e.Label, &e.TaxCode)
	} else {
		q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", kt.labelCol, kt.table)
		err = s.db.QueryRowContext(ctx, q, id).Scan(&e.Label)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.RegistryEntry{}, fmt.Errorf("%s id %d: %w", kind, id, core.ErrNotFound)
	}
	if err != nil {
		return core.RegistryEntry{}, storageErr("get registry entry", err)
	}
	return e, nil
}

// RenameEntry applies the duplicate rule with the renamed entry excluded.
func (s *Store) RenameEntry(ctx context.Context, kind core.Kind, id int64, label string) error {
	kt, err := tableFor(kind)
	if err != nil {
		return err
	}
	fold := core.FoldLabel(label)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		q := fmt.Sprintf("SELECT id FROM %s WHERE %s_fold = ? AND id <> ?", kt.table, kt.labelCol)
		err := tx.QueryRowContext(ctx, q, fold, id).Scan(&existing)
		switch {
		case err == nil:
			return fmt.Errorf("%s label %q already exists as entry %d: %w", kind, label, existing, core.ErrDuplicateLabel)
		case !errors.Is(err, sql.ErrNoRows):
			return storageErr("probe duplicate label", err)
		}

		q = fmt.Sprintf("UPDATE %s SET %s = ?, %s_fold = ? WHERE id = ?", kt.table, kt.labelCol, kt.labelCol)
		res, err := tx.ExecContext(ctx, q, label, fold, id)
		if err != nil {
			return storageErr("rename registry entry", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("read rows affected", err)
		}
		if n == 0 {
			return fmt.Errorf("%s id %d: %w", kind, id, core.ErrNotFound)
		}
		return nil
	})
}

// DeleteEntry counts referencing invoices and deletes in the same
// transaction; an invoice insert racing with the delete serializes against it
// and EntryInUse is raised if a reference exists at commit time.
func (s *Store) DeleteEntry(ctx context.Context, kind core.Kind, id int64) error {
	kt, err := tableFor(kind)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var refs int64
		q := fmt.Sprintf("SELECT COUNT(*) FROM invoices WHERE %s = ?", kt.invoiceCol)
		if err := tx.QueryRowContext(ctx, q, id).Scan(&refs); err != nil {
			return storageErr("count invoice references", err)
		}
		if refs > 0 {
			return fmt.Errorf("%s id %d is referenced by %d invoice(s): %w", kind, id, refs, core.ErrEntryInUse)
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", kt.table), id)
		if err != nil {
			return storageErr("delete registry entry", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storageErr("read rows affected", err)
		}
		if n == 0 {
			return fmt.Errorf("%s id %d: %w", kind, id, core.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) ListEntries(ctx context.Context, kind core.Kind) ([]core.RegistryEntry, error) {
	kt, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var q string
	if kt.hasTaxCode {
		q = "SELECT id, name, tax_code FROM suppliers"
	} else {
		q = fmt.Sprintf("SELECT id, %s FROM %s", kt.labelCol, kt.table)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, storageErr("list registry entries", err)
	}
	defer rows.Close()

	var entries []core.RegistryEntry
	for rows.Next() {
		e := core.RegistryEntry{Kind: kind}
		if kt.hasTaxCode {
			err = rows.Scan(&e.ID, &e.Label, &e.TaxCode)
		} else {
			err = rows.Scan(&e.ID, &e.Label)
		}
		if err != nil {
			return nil, storageErr("scan registry entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate registry entries", err)
	}
	return entries, nil
}

func (s *Store) EntryExists(ctx context.Context, kind core.Kind, id int64) (bool, error) {
	kt, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	var exists bool
	q := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", kt.table)
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		return false, storageErr("check registry entry", err)
	}
	return exists, nil
}
