package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Storage backends for the keyed store.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Remote row-store backends for the mirror.
const (
	RemoteNone   = "none"
	RemoteMemory = "memory"
	RemoteSQLite = "sqlite"
	RemoteSheets = "sheets"
)

var (
	storageBackends = []string{StorageMemory, StorageSQLite, StoragePostgres}
	remoteBackends  = []string{RemoteNone, RemoteMemory, RemoteSQLite, RemoteSheets}
	logLevels       = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	// Keyed store
	StorageBackend    string
	SQLiteDBPath      string
	PostgresURL       string
	StorageQuotaBytes int64
	KeyPrefix         string

	// Backups and history
	BackupKeep      int
	BackupMaxAge    time.Duration
	HistoryCapacity int

	// Health monitor
	HealthInterval      time.Duration
	ExportReminderAfter time.Duration
	MetricsAddr         string

	// Bundle export destination
	ExportDir         string
	ExportS3Bucket    string
	ExportS3Region    string
	ExportS3Endpoint  string
	ExportS3PathStyle bool

	// Remote mirror
	RemoteBackend            string
	RemoteSQLitePath         string
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Event forwarding
	AMQPURL      string
	AMQPExchange string

	// Domain
	DefaultExpensesFile string
	Timezone            string

	LogLevel string
}

func Load() *Config {
	return &Config{
		StorageBackend:    getEnv("STORAGE_BACKEND", StorageSQLite),
		SQLiteDBPath:      getEnv("SQLITE_DB_PATH", "./data/watchbook.db"),
		PostgresURL:       getEnv("POSTGRES_URL", ""),
		StorageQuotaBytes: getEnvInt64("STORAGE_QUOTA_BYTES", 5<<20),
		KeyPrefix:         getEnv("KEY_PREFIX", "orderSystem_"),

		BackupKeep:      getEnvInt("BACKUP_KEEP", 5),
		BackupMaxAge:    getEnvDuration("BACKUP_MAX_AGE", 24*time.Hour),
		HistoryCapacity: getEnvInt("HISTORY_CAPACITY", 100),

		HealthInterval:      getEnvDuration("HEALTH_INTERVAL", 5*time.Minute),
		ExportReminderAfter: getEnvDuration("EXPORT_REMINDER_AFTER", 7*24*time.Hour),
		MetricsAddr:         getEnv("METRICS_ADDR", ""),

		ExportDir:         getEnv("EXPORT_DIR", "./exports"),
		ExportS3Bucket:    getEnv("EXPORT_S3_BUCKET", ""),
		ExportS3Region:    getEnv("EXPORT_S3_REGION", ""),
		ExportS3Endpoint:  getEnv("EXPORT_S3_ENDPOINT", ""),
		ExportS3PathStyle: getEnvBool("EXPORT_S3_PATH_STYLE", false),

		RemoteBackend:            getEnv("REMOTE_BACKEND", RemoteNone),
		RemoteSQLitePath:         getEnv("REMOTE_SQLITE_PATH", "./data/watchbook-remote.db"),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "watchbook"),

		DefaultExpensesFile: getEnv("DEFAULT_EXPENSES_FILE", ""),
		Timezone:            getEnv("TIMEZONE", "Europe/Sofia"),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration and returns an error listing every
// problem found.
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(storageBackends, c.StorageBackend) {
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageBackend, storageBackends))
	}
	if c.StorageBackend == StorageSQLite && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite storage")
	}
	if c.StorageBackend == StoragePostgres {
		if c.PostgresURL == "" {
			errors = append(errors, "POSTGRES_URL is required when using postgres storage")
		} else if u, err := url.Parse(c.PostgresURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, fmt.Sprintf("invalid POSTGRES_URL '%s': scheme must be 'postgres' or 'postgresql'", c.PostgresURL))
		}
	}
	if c.StorageQuotaBytes < 0 {
		errors = append(errors, fmt.Sprintf("invalid storage quota %d: must not be negative", c.StorageQuotaBytes))
	}
	if c.KeyPrefix == "" {
		errors = append(errors, "key prefix cannot be empty")
	}

	if c.BackupKeep < 1 {
		errors = append(errors, fmt.Sprintf("invalid backup keep %d: must be at least 1", c.BackupKeep))
	}
	if c.BackupMaxAge <= 0 {
		errors = append(errors, fmt.Sprintf("invalid backup max age %v: must be positive", c.BackupMaxAge))
	}
	if c.HistoryCapacity < 1 {
		errors = append(errors, fmt.Sprintf("invalid history capacity %d: must be at least 1", c.HistoryCapacity))
	}

	if c.HealthInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid health interval %v: must be at least 1 second", c.HealthInterval))
	} else if c.HealthInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid health interval %v: must be at most 24 hours", c.HealthInterval))
	}
	if c.ExportReminderAfter < time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export reminder %v: must be at least 1 hour", c.ExportReminderAfter))
	}

	if c.ExportS3Bucket == "" && c.ExportDir == "" {
		errors = append(errors, "either EXPORT_DIR or EXPORT_S3_BUCKET must be set")
	}
	if c.ExportS3Endpoint != "" {
		if u, err := url.Parse(c.ExportS3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid S3 endpoint '%s'", c.ExportS3Endpoint))
		}
	}

	if !slices.Contains(remoteBackends, c.RemoteBackend) {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, remoteBackends))
	}
	if c.RemoteBackend == RemoteSQLite && c.RemoteSQLitePath == "" {
		errors = append(errors, "REMOTE_SQLITE_PATH is required when using sqlite remote backend")
	}
	if c.RemoteBackend == RemoteSheets {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets remote backend")
		}
		hasJSON := c.GoogleServiceAccountJSON != ""
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasJSON && !hasFile {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets remote backend")
		}
		if hasFile && !hasJSON {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.DefaultExpensesFile != "" {
		if _, err := os.Stat(c.DefaultExpensesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("default expenses file does not exist: %s", c.DefaultExpensesFile))
		}
	}
	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s'", c.Timezone))
	}
	if !slices.Contains(logLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, logLevels))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
