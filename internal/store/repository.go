package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a snapshot or row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownFactColumn is returned for fact labels without a provisioned column.
	ErrUnknownFactColumn = errors.New("unknown fact column")
)

// FactColumns lists the provider columns that accept fact values.
var FactColumns = []string{"provider_name", "site", "description"}

// IsFactColumn reports whether column is one of FactColumns.
func IsFactColumn(column string) bool {
	for _, c := range FactColumns {
		if c == column {
			return true
		}
	}
	return false
}

type CategoryRow struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// ProviderRow is one row of the relational mirror. Fact columns are empty
// until a note for that label has been applied.
type ProviderRow struct {
	ID           int64  `json:"id"`
	Hash         string `json:"hash"`
	Name         string `json:"name"`
	ProviderName string `json:"provider_name,omitempty"`
	Site         string `json:"site,omitempty"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category"`
	Created      int64  `json:"created"`
}

// SchemaReport describes what a schema check found and whether it repaired anything.
type SchemaReport struct {
	Tables   map[string]bool `json:"tables"`
	Repaired bool            `json:"repaired"`
}

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks -exclude_interfaces=DirectoryReader,SchemaManager,Directory

// DirectoryWriter applies registry events to the relational mirror.
type DirectoryWriter interface {
	InsertCategory(ctx context.Context, hash, name string) error
	InsertProvider(ctx context.Context, hash, name, category string) error
	UpdateFact(ctx context.Context, providerHash, column, value string) error
}

// DirectoryReader serves the read queries of the query façade.
type DirectoryReader interface {
	AllProviders(ctx context.Context) ([]ProviderRow, error)
	ProvidersByCategory(ctx context.Context, category string) ([]ProviderRow, error)
	ProviderByHash(ctx context.Context, hash string) (*ProviderRow, error)
	SearchProviders(ctx context.Context, query string) ([]ProviderRow, error)
	Categories(ctx context.Context) ([]CategoryRow, error)
}

// SchemaManager owns table lifecycle.
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
	CheckSchema(ctx context.Context) (*SchemaReport, error)
	Wipe(ctx context.Context) error
}

// Directory is the full relational mirror.
type Directory interface {
	DirectoryWriter
	DirectoryReader
	SchemaManager
}

// SnapshotStore holds named opaque blobs. Get returns ErrNotFound for a
// missing name; Delete of a missing name is not an error.
type SnapshotStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Set(ctx context.Context, name string, payload []byte) error
	Delete(ctx context.Context, name string) error
}
