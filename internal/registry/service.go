// Package registry implements the reference registries: suppliers, expense
// types and cost centers. Other components depend on its uniqueness and
// existence guarantees.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fatture/internal/capability"
	"fatture/internal/core"
)

// Store is the persistence port. Implementations run each mutation in a
// single transaction so duplicate probes and in-use checks serialize against
// concurrent writers.
type Store interface {
	// CreateEntry inserts the entry, failing with core.ErrDuplicateLabel on a
	// case-insensitive label match within the kind and core.ErrDuplicateCode
	// on a supplier tax-code collision.
	CreateEntry(ctx context.Context, e core.RegistryEntry) (int64, error)
	GetEntry(ctx context.Context, kind core.Kind, id int64) (core.RegistryEntry, error)
	// RenameEntry applies the duplicate rule with the entry itself excluded.
	RenameEntry(ctx context.Context, kind core.Kind, id int64, label string) error
	// DeleteEntry fails with core.ErrEntryInUse while any invoice references
	// the entry. The reference count and the delete share one transaction.
	DeleteEntry(ctx context.Context, kind core.Kind, id int64) error
	ListEntries(ctx context.Context, kind core.Kind) ([]core.RegistryEntry, error)
	EntryExists(ctx context.Context, kind core.Kind, id int64) (bool, error)
}

// Service wraps the store with capability checks and input validation. All
// operations are synchronous; nothing cascades.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateParams carries the fields for a new registry entry. TaxCode is
// required for the supplier kind and forbidden elsewhere.
type CreateParams struct {
	Kind    core.Kind
	Label   string
	TaxCode string
}

func (s *Service) Create(ctx context.Context, p CreateParams) (int64, error) {
	if err := capability.Check(ctx, capability.OpRegistryCreate); err != nil {
		return 0, err
	}
	if !p.Kind.IsValid() {
		return 0, fmt.Errorf("registry kind %q: %w", p.Kind, core.ErrNotFound)
	}
	entry := core.RegistryEntry{
		Kind:    p.Kind,
		Label:   strings.TrimSpace(p.Label),
		TaxCode: strings.TrimSpace(p.TaxCode),
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}

	id, err := s.store.CreateEntry(ctx, entry)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Registry entry created",
		"kind", p.Kind.String(),
		"id", id,
		"label", entry.Label)
	return id, nil
}

func (s *Service) Rename(ctx context.Context, kind core.Kind, id int64, newLabel string) error {
	if err := capability.Check(ctx, capability.OpRegistryRename); err != nil {
		return err
	}
	if !kind.IsValid() {
		return fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	label := strings.TrimSpace(newLabel)
	if label == "" {
		return fmt.Errorf("%s label is required: %w", kind, core.ErrInvalidLabel)
	}
	if len(label) > core.MaxLabelLen {
		return fmt.Errorf("%s label exceeds %d characters: %w", kind, core.MaxLabelLen, core.ErrInvalidLabel)
	}

	if err := s.store.RenameEntry(ctx, kind, id, label); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Registry entry renamed",
		"kind", kind.String(),
		"id", id,
		"label", label)
	return nil
}

func (s *Service) Delete(ctx context.Context, kind core.Kind, id int64) error {
	if err := capability.Check(ctx, capability.OpRegistryDelete); err != nil {
		return err
	}
	if !kind.IsValid() {
		return fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}

	if err := s.store.DeleteEntry(ctx, kind, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Registry entry deleted", "kind", kind.String(), "id", id)
	return nil
}

// List returns the entries of a kind ordered by label, case-insensitive
// ascending, id ascending as tie-break. Sorting happens here so every storage
// backend yields the same order.
func (s *Service) List(ctx context.Context, kind core.Kind) ([]core.RegistryEntry, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	entries, err := s.store.ListEntries(ctx, kind)
	if err != nil {
		return nil, err
	}
	core.SortEntriesByLabel(entries)
	return entries, nil
}

func (s *Service) Get(ctx context.Context, kind core.Kind, id int64) (core.RegistryEntry, error) {
	if !kind.IsValid() {
		return core.RegistryEntry{}, fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	return s.store.GetEntry(ctx, kind, id)
}

func (s *Service) Exists(ctx context.Context, kind core.Kind, id int64) (bool, error) {
	if !kind.IsValid() {
		return false, fmt.Errorf("registry kind %q: %w", kind, core.ErrNotFound)
	}
	return s.store.EntryExists(ctx, kind, id)
}
