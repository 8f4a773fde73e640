package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Mail      MailConfig      `mapstructure:"mail"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LimitsConfig bounds the work done per document and per request
type LimitsConfig struct {
	MaxXMLSize          int64 `mapstructure:"max_xml_size"`
	MaxPDFSize          int64 `mapstructure:"max_pdf_size"`
	MaxItems            int   `mapstructure:"max_items"`
	MaxTextLength       int   `mapstructure:"max_text_length"`
	RawXMLChars         int   `mapstructure:"raw_xml_chars"`
	MaxFilesPerRequest  int   `mapstructure:"max_files_per_request"`
	MaxArchiveEntrySize int64 `mapstructure:"max_archive_entry_size"`
}

// RateLimitConfig holds sliding-window quotas
type RateLimitConfig struct {
	UploadsPerWindow int           `mapstructure:"uploads_per_window"`
	UploadWindow     time.Duration `mapstructure:"upload_window"`
	EmailsPerWindow  int           `mapstructure:"emails_per_window"`
	EmailWindow      time.Duration `mapstructure:"email_window"`
}

// AuditConfig holds the audit event store location
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds where received originals are kept. An empty
// directory disables archiving.
type StorageConfig struct {
	OriginalsDir string `mapstructure:"originals_dir"`
}

// MailConfig holds the mail drop directory settings
type MailConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	InboxDir        string        `mapstructure:"inbox_dir"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	SubjectKeywords []string      `mapstructure:"subject_keywords"`
}

// Load loads configuration from .env, the YAML file and environment
// variables, in increasing order of precedence. An empty configPath skips
// the file.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding the process
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/nfe.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Limits defaults
	v.SetDefault("limits.max_xml_size", 10*1024*1024)
	v.SetDefault("limits.max_pdf_size", 50*1024*1024)
	v.SetDefault("limits.max_items", 1000)
	v.SetDefault("limits.max_text_length", 1000)
	v.SetDefault("limits.raw_xml_chars", 10000)
	v.SetDefault("limits.max_files_per_request", 10)
	v.SetDefault("limits.max_archive_entry_size", 50*1024*1024)

	// Rate limit defaults
	v.SetDefault("rate_limit.uploads_per_window", 30)
	v.SetDefault("rate_limit.upload_window", time.Minute)
	v.SetDefault("rate_limit.emails_per_window", 10)
	v.SetDefault("rate_limit.email_window", 60*time.Minute)

	v.SetDefault("audit.path", "data/audit.bolt")
	v.SetDefault("storage.originals_dir", "data/originals")

	// Mail defaults
	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.inbox_dir", "data/inbox")
	v.SetDefault("mail.poll_interval", time.Minute)
	v.SetDefault("mail.batch_size", 50)
	v.SetDefault("mail.subject_keywords", []string{"danfe", "nf-e", "nfc-e", "nf", "nfe", "xml", "nota fiscal"})
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("NFE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Deployment paths commonly set without the prefix
	_ = v.BindEnv("server.port", "NFE_SERVER_PORT", "PORT")
	_ = v.BindEnv("database.path", "NFE_DATABASE_PATH", "DATABASE_PATH")
	_ = v.BindEnv("audit.path", "NFE_AUDIT_PATH", "AUDIT_PATH")
	_ = v.BindEnv("storage.originals_dir", "NFE_STORAGE_ORIGINALS_DIR", "ORIGINALS_DIR")
	_ = v.BindEnv("mail.inbox_dir", "NFE_MAIL_INBOX_DIR", "MAIL_INBOX_DIR")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	limits := []struct {
		key   string
		value int64
	}{
		{"limits.max_xml_size", c.Limits.MaxXMLSize},
		{"limits.max_pdf_size", c.Limits.MaxPDFSize},
		{"limits.max_items", int64(c.Limits.MaxItems)},
		{"limits.max_text_length", int64(c.Limits.MaxTextLength)},
		{"limits.raw_xml_chars", int64(c.Limits.RawXMLChars)},
		{"limits.max_files_per_request", int64(c.Limits.MaxFilesPerRequest)},
		{"limits.max_archive_entry_size", c.Limits.MaxArchiveEntrySize},
		{"rate_limit.uploads_per_window", int64(c.RateLimit.UploadsPerWindow)},
		{"rate_limit.emails_per_window", int64(c.RateLimit.EmailsPerWindow)},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("%s must be positive", l.key)
		}
	}
	if c.RateLimit.UploadWindow <= 0 || c.RateLimit.EmailWindow <= 0 {
		return fmt.Errorf("rate_limit windows must be positive")
	}

	if c.Mail.Enabled {
		if c.Mail.InboxDir == "" {
			return fmt.Errorf("mail.inbox_dir is required when mail is enabled")
		}
		if c.Mail.PollInterval <= 0 {
			return fmt.Errorf("mail.poll_interval must be positive")
		}
		if len(c.Mail.SubjectKeywords) == 0 {
			return fmt.Errorf("mail.subject_keywords must not be empty")
		}
	}

	return nil
}

// Summary returns the effective settings in a form safe to log. File system
// locations are reduced to their base name.
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"server.addr":                   fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port),
		"database.path":                 maskPath(c.Database.Path),
		"logger.level":                  c.Logger.Level,
		"logger.format":                 c.Logger.Format,
		"limits.max_xml_size":           c.Limits.MaxXMLSize,
		"limits.max_pdf_size":           c.Limits.MaxPDFSize,
		"limits.max_items":              c.Limits.MaxItems,
		"limits.max_files_per_request":  c.Limits.MaxFilesPerRequest,
		"limits.max_archive_entry_size": c.Limits.MaxArchiveEntrySize,
		"rate_limit.uploads":            fmt.Sprintf("%d/%s", c.RateLimit.UploadsPerWindow, c.RateLimit.UploadWindow),
		"rate_limit.emails":             fmt.Sprintf("%d/%s", c.RateLimit.EmailsPerWindow, c.RateLimit.EmailWindow),
		"audit.path":                    maskPath(c.Audit.Path),
		"storage.originals_dir":         maskPath(c.Storage.OriginalsDir),
		"mail.enabled":                  c.Mail.Enabled,
		"mail.inbox_dir":                maskPath(c.Mail.InboxDir),
	}
}

func maskPath(p string) string {
	if p == "" {
		return ""
	}
	return "***/" + filepath.Base(p)
}
