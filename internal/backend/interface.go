package backend

import (
	"context"

	"pockets/internal/amqp"
	"pockets/internal/kv"
	"pockets/internal/sheets"
)

// CleanupFunc releases a resource created by the factory.
type CleanupFunc func() error

// StoreResult holds the persistence adapter and how to probe and close it.
type StoreResult struct {
	Store kv.Store
	// Ready reports whether the store is reachable. Nil means always ready.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Exporter is what the export worker writes transactions to.
type Exporter interface {
	sheets.TransactionExporter
	sheets.ExportedIDReader
}

// Factory creates the adapters the binaries wire together.
type Factory interface {
	// CreateStore opens the persistence adapter for cfg.Type.
	CreateStore(ctx context.Context, cfg Config) (*StoreResult, error)
	// CreateMessaging connects to the broker. It returns a nil client
	// when no AMQP URL is configured.
	CreateMessaging(ctx context.Context, cfg Config) (*amqp.Client, error)
	// CreateExporter returns the Google Sheets exporter, or an in-memory
	// one when no spreadsheet is configured.
	CreateExporter(ctx context.Context, cfg Config) (Exporter, error)
}

// BackendType selects the persistence adapter.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
