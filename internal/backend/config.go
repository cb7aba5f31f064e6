package backend

import (
	"fmt"

	"watchbook/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Storage: StorageType(appConfig.StorageBackend),
		Remote:  RemoteType(appConfig.RemoteBackend),

		SQLiteDBPath: appConfig.SQLiteDBPath,
		PostgresURL:  appConfig.PostgresURL,
		QuotaBytes:   appConfig.StorageQuotaBytes,

		RemoteSQLitePath:         appConfig.RemoteSQLitePath,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}
	if cfg.Remote == "" {
		cfg.Remote = NoRemote
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Storage.IsValid() {
		return fmt.Errorf("invalid storage type: %s", c.Storage)
	}
	if !c.Remote.IsValid() {
		return fmt.Errorf("invalid remote type: %s", c.Remote)
	}

	switch c.Storage {
	case SQLiteStorage:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite storage")
		}
	case PostgresStorage:
		if c.PostgresURL == "" {
			return fmt.Errorf("Postgres URL is required for postgres storage")
		}
	}

	switch c.Remote {
	case SQLiteRemote:
		if c.RemoteSQLitePath == "" {
			return fmt.Errorf("SQLite path is required for sqlite remote")
		}
	case SheetsRemote:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets remote")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("service account JSON or file is required for sheets remote")
		}
	}
	return nil
}

// GetStorageTypes returns all valid storage types
func GetStorageTypes() []StorageType {
	return []StorageType{MemoryStorage, SQLiteStorage, PostgresStorage}
}

// GetRemoteTypes returns all valid remote types
func GetRemoteTypes() []RemoteType {
	return []RemoteType{NoRemote, MemoryRemote, SQLiteRemote, SheetsRemote}
}
