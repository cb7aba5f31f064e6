package backend

import (
	"context"

	"watchbook/internal/sheets"
	"watchbook/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds the built medium and row store. Rows is nil when no remote
// mirror is configured.
type Result struct {
	Medium  storage.Medium
	Rows    sheets.RowStore
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Storage StorageType
	Remote  RemoteType

	// Keyed store medium
	SQLiteDBPath string
	PostgresURL  string
	QuotaBytes   int64

	// Remote row store
	RemoteSQLitePath         string
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// StorageType selects the keyed store medium
type StorageType string

const (
	MemoryStorage   StorageType = "memory"
	SQLiteStorage   StorageType = "sqlite"
	PostgresStorage StorageType = "postgres"
)

func (t StorageType) String() string { return string(t) }

func (t StorageType) IsValid() bool {
	switch t {
	case MemoryStorage, SQLiteStorage, PostgresStorage:
		return true
	default:
		return false
	}
}

// RemoteType selects the mirror row store
type RemoteType string

const (
	NoRemote     RemoteType = "none"
	MemoryRemote RemoteType = "memory"
	SQLiteRemote RemoteType = "sqlite"
	SheetsRemote RemoteType = "sheets"
)

func (t RemoteType) String() string { return string(t) }

func (t RemoteType) IsValid() bool {
	switch t {
	case NoRemote, MemoryRemote, SQLiteRemote, SheetsRemote:
		return true
	default:
		return false
	}
}
