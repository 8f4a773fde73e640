// Package container provides dependency injection and lifecycle management
// for the NF-e ingestion service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/nfe-ingest/internal/infrastructure/worker"
	"github.com/garyjia/nfe-ingest/internal/invoice"
	"github.com/garyjia/nfe-ingest/internal/mailintake"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Limits applied by the extractors and validator
	Limits invoice.Limits

	// Import request bounds
	Import ImportConfig

	// Upload throttling
	RateLimit RateLimitConfig

	// Audit event store
	Audit AuditConfig

	// Storage configuration
	Storage StorageConfig

	// Mail intake and inbox worker
	Mail MailConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration
}

// ImportConfig bounds a single import request.
type ImportConfig struct {
	// MaxFilesPerRequest caps the files accepted by one upload
	MaxFilesPerRequest int

	// MaxFileSize caps any single received file
	MaxFileSize int64

	// MaxArchiveEntrySize caps one decompressed ZIP entry
	MaxArchiveEntrySize int64
}

// RateLimitConfig holds the upload quota per client.
type RateLimitConfig struct {
	UploadsPerWindow int
	UploadWindow     time.Duration
}

// AuditConfig holds audit store settings.
type AuditConfig struct {
	// Path to the bbolt file
	Path string
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// OriginalsDir keeps a copy of every received file; empty disables it
	OriginalsDir string
}

// MailConfig holds mail intake settings.
type MailConfig struct {
	Enabled bool
	Worker  worker.MailWorkerConfig
	Intake  mailintake.Config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/nfe.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Limits: invoice.DefaultLimits(),
		Import: ImportConfig{
			MaxFilesPerRequest:  10,
			MaxFileSize:         50 * 1024 * 1024,
			MaxArchiveEntrySize: 50 * 1024 * 1024,
		},
		RateLimit: RateLimitConfig{
			UploadsPerWindow: 30,
			UploadWindow:     time.Minute,
		},
		Audit: AuditConfig{
			Path: "data/audit.bolt",
		},
		Storage: StorageConfig{
			OriginalsDir: "data/originals",
		},
		Mail: MailConfig{
			Worker: worker.DefaultMailWorkerConfig(),
			Intake: mailintake.DefaultConfig(),
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required")
	}
	if c.Limits.MaxItems <= 0 || c.Limits.MaxXMLSize <= 0 || c.Limits.MaxPDFSize <= 0 {
		return fmt.Errorf("document limits must be positive")
	}
	if c.Import.MaxFileSize <= 0 || c.Import.MaxArchiveEntrySize <= 0 {
		return fmt.Errorf("import size limits must be positive")
	}
	if c.Mail.Enabled {
		if c.Mail.Worker.InboxDir == "" {
			return fmt.Errorf("mail.inbox_dir is required")
		}
		if c.Mail.Worker.PollInterval <= 0 {
			return fmt.Errorf("mail.poll_interval must be positive")
		}
	}
	return nil
}
