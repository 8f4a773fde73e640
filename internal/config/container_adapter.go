package config

import (
	"github.com/garyjia/nfe-ingest/internal/container"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/worker"
	"github.com/garyjia/nfe-ingest/internal/invoice"
	"github.com/garyjia/nfe-ingest/internal/mailintake"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	intake := mailintake.DefaultConfig()
	if len(c.Mail.SubjectKeywords) > 0 {
		intake.Keywords = c.Mail.SubjectKeywords
	}
	intake.MaxXMLSize = c.Limits.MaxXMLSize
	intake.MaxPDFSize = c.Limits.MaxPDFSize
	intake.MaxPerWindow = c.RateLimit.EmailsPerWindow
	intake.Window = c.RateLimit.EmailWindow

	maxFile := c.Limits.MaxPDFSize
	if c.Limits.MaxXMLSize > maxFile {
		maxFile = c.Limits.MaxXMLSize
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Limits: invoice.Limits{
			MaxXMLSize:    int(c.Limits.MaxXMLSize),
			MaxPDFSize:    int(c.Limits.MaxPDFSize),
			MaxItems:      c.Limits.MaxItems,
			MaxTextLength: c.Limits.MaxTextLength,
			RawXMLChars:   c.Limits.RawXMLChars,
		},
		Import: container.ImportConfig{
			MaxFilesPerRequest:  c.Limits.MaxFilesPerRequest,
			MaxFileSize:         maxFile,
			MaxArchiveEntrySize: c.Limits.MaxArchiveEntrySize,
		},
		RateLimit: container.RateLimitConfig{
			UploadsPerWindow: c.RateLimit.UploadsPerWindow,
			UploadWindow:     c.RateLimit.UploadWindow,
		},
		Audit: container.AuditConfig{
			Path: c.Audit.Path,
		},
		Storage: container.StorageConfig{
			OriginalsDir: c.Storage.OriginalsDir,
		},
		Mail: container.MailConfig{
			Enabled: c.Mail.Enabled,
			Worker: worker.MailWorkerConfig{
				InboxDir:     c.Mail.InboxDir,
				PollInterval: c.Mail.PollInterval,
				BatchSize:    c.Mail.BatchSize,
			},
			Intake: intake,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
