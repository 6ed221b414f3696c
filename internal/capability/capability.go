// Package capability is the authorization gate for the core contracts.
//
// The core never inspects identity. The access-control collaborator resolves a
// caller into a set of capability tags and attaches them to the context; every
// mutating operation checks the required tag before touching storage.
package capability

import (
	"context"
	"fmt"

	"fatture/internal/core"
)

// Tag marks the permission a caller must hold for an operation. The zero Tag
// means the operation is open to any authenticated caller.
type Tag string

const (
	TagRegistryAdmin Tag = "registry:admin"
	TagLedgerWrite   Tag = "ledger:write"
	TagReportAll     Tag = "report:all"
)

// Operation enumerates the public core operations.
type Operation string

const (
	OpRegistryCreate Operation = "registry.create"
	OpRegistryRename Operation = "registry.rename"
	OpRegistryDelete Operation = "registry.delete"
	OpRegistryList   Operation = "registry.list"
	OpRegistryGet    Operation = "registry.get"

	OpInvoiceAdd    Operation = "invoice.add"
	OpInvoiceUpdate Operation = "invoice.update"
	OpInvoiceDelete Operation = "invoice.delete"
	OpInvoiceGet    Operation = "invoice.get"
	OpInvoiceQuery  Operation = "invoice.query"

	OpAggregate Operation = "report.aggregate"
	OpExport    Operation = "report.export"
	// OpReportAll guards reading beyond the caller's own invoices.
	OpReportAll Operation = "report.all"
)

// required is the single lookup table for operation permissions. Operations
// absent from the map (plain reads) need no capability.
var required = map[Operation]Tag{
	OpRegistryCreate: TagRegistryAdmin,
	OpRegistryRename: TagRegistryAdmin,
	OpRegistryDelete: TagRegistryAdmin,

	OpInvoiceAdd:    TagLedgerWrite,
	OpInvoiceUpdate: TagLedgerWrite,
	OpInvoiceDelete: TagLedgerWrite,

	OpReportAll: TagReportAll,
}

// Required returns the capability tag an operation demands, or the zero Tag
// for open operations.
func Required(op Operation) Tag {
	return required[op]
}

// Grant is the set of tags the access-control collaborator asserted for the
// current caller.
type Grant map[Tag]struct{}

// NewGrant builds a grant from tags.
func NewGrant(tags ...Tag) Grant {
	g := make(Grant, len(tags))
	for _, t := range tags {
		g[t] = struct{}{}
	}
	return g
}

// Has reports whether the grant carries the tag. The zero tag is always held.
func (g Grant) Has(t Tag) bool {
	if t == "" {
		return true
	}
	_, ok := g[t]
	return ok
}

// Tags returns the granted tags in unspecified order.
func (g Grant) Tags() []Tag {
	out := make([]Tag, 0, len(g))
	for t := range g {
		out = append(out, t)
	}
	return out
}

type contextKey struct{}

// WithGrant attaches a grant to the context for downstream Check calls.
func WithGrant(ctx context.Context, g Grant) context.Context {
	return context.WithValue(ctx, contextKey{}, g)
}

// FromContext extracts the grant carried on the context. A context without a
// grant yields the empty grant, which only passes open operations.
func FromContext(ctx context.Context) Grant {
	if g, ok := ctx.Value(contextKey{}).(Grant); ok {
		return g
	}
	return Grant{}
}

// Check verifies the context grant against the operation's required tag.
func Check(ctx context.Context, op Operation) error {
	tag := Required(op)
	if tag == "" {
		return nil
	}
	if FromContext(ctx).Has(tag) {
		return nil
	}
	return fmt.Errorf("operation %s requires capability %s: %w", op, tag, core.ErrUnauthorized)
}
