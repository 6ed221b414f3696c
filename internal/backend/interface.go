// Package backend selects and constructs the storage backend from
// configuration.
package backend

import (
	"context"

	"fatture/internal/auth"
	"fatture/internal/ledger"
	"fatture/internal/registry"
	"fatture/internal/worker"
)

// Stores bundles the persistence ports a single backend provides. Every
// backend implements all of them over the same underlying state, so the
// cross-store invariants (registry delete vs invoice insert) hold.
type Stores struct {
	Registry  registry.Store
	Ledger    ledger.Store
	Users     auth.Store
	Refreshes worker.Queue
}

// Pinger reports backend reachability; the readiness probe uses it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc releases backend resources on shutdown.
type CleanupFunc func() error

// Result contains the constructed stores and optional cleanup.
type Result struct {
	Stores  Stores
	Pinger  Pinger
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds what backend construction needs.
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
