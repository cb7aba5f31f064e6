package backend

import (
	"context"
	"errors"
	"fmt"

	"watchbook/internal/log"
	"watchbook/internal/sheets"
	gsheet "watchbook/internal/sheets/google"
	"watchbook/internal/sheets/memory"
	sqlrows "watchbook/internal/sheets/sqlite"
	"watchbook/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create builds the medium and, when configured, the remote row store.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	medium, err := f.createMedium(ctx, config)
	if err != nil {
		return nil, err
	}

	rows, closeRows, err := f.createRows(ctx, config)
	if err != nil {
		medium.Close()
		return nil, err
	}

	return &Result{
		Medium: medium,
		Rows:   rows,
		Cleanup: func() error {
			var errs []error
			if closeRows != nil {
				errs = append(errs, closeRows())
			}
			errs = append(errs, medium.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createMedium(ctx context.Context, config Config) (storage.Medium, error) {
	switch config.Storage {
	case SQLiteStorage:
		m, err := storage.NewSQLiteMedium(config.SQLiteDBPath, config.QuotaBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite medium: %w", err)
		}
		f.logger.Info("Initialized SQLite storage",
			"db_path", config.SQLiteDBPath,
			"quota_bytes", config.QuotaBytes)
		return m, nil
	case PostgresStorage:
		m, err := storage.NewPostgresMedium(ctx, config.PostgresURL, config.QuotaBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres medium: %w", err)
		}
		f.logger.Info("Initialized Postgres storage", "quota_bytes", config.QuotaBytes)
		return m, nil
	case MemoryStorage:
		f.logger.Info("Initialized memory storage", "quota_bytes", config.QuotaBytes)
		return storage.NewMemoryMedium(config.QuotaBytes), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Storage)
	}
}

func (f *DefaultFactory) createRows(ctx context.Context, config Config) (sheets.RowStore, CleanupFunc, error) {
	switch config.Remote {
	case NoRemote:
		return nil, nil, nil
	case MemoryRemote:
		f.logger.Info("Initialized memory remote")
		return memory.New(), nil, nil
	case SQLiteRemote:
		s, err := sqlrows.Open(config.RemoteSQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite remote: %w", err)
		}
		f.logger.Info("Initialized SQLite remote", "db_path", config.RemoteSQLitePath)
		return s, s.Close, nil
	case SheetsRemote:
		c, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		}, f.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets remote")
		return c, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported remote type: %s", config.Remote)
	}
}
