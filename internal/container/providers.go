package container

import (
	"database/sql"
	"fmt"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/application/service"
	"github.com/garyjia/nfe-ingest/internal/archive"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/audit"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/persistence/repository"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/ratelimit"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/storage"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/worker"
	"github.com/garyjia/nfe-ingest/internal/invoice"
	"github.com/garyjia/nfe-ingest/internal/mailintake"
	"github.com/garyjia/nfe-ingest/internal/tabular"
	"github.com/garyjia/nfe-ingest/migrations"
	"github.com/garyjia/nfe-ingest/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// AuditBundle holds the audit store and the service writing to it.
type AuditBundle struct {
	Store   *audit.BoltStore
	Service service.AuditService
}

// ExtractorBundle holds the document readers and the validator.
type ExtractorBundle struct {
	XML       invoice.Extractor
	PDF       invoice.Extractor
	Tabular   *tabular.Extractor
	Walker    *archive.Walker
	Validator *invoice.Validator
}

// ProvideDatabase opens the database and applies pending migrations.
// Returns DatabaseBundle containing sql.DB and TransactionManager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dbWrapper, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(dbWrapper, logger).Run(migrations.FS)
	if err != nil {
		dbWrapper.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{
		SqlDB:          dbWrapper.DB,
		TransactionMgr: sqlite.NewDB(dbWrapper.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Invoice:       repository.NewInvoiceRepository(sqlDB, logger),
		Item:          repository.NewItemRepository(sqlDB, logger),
		ProcessingLog: repository.NewProcessingLogRepository(sqlDB, logger),
	}, nil
}

// ProvideAudit opens the audit store and wraps it in the audit service.
func ProvideAudit(cfg *AuditConfig, logger *zap.Logger) (*AuditBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("audit config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	store, err := audit.NewBoltStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}

	return &AuditBundle{
		Store:   store,
		Service: service.NewAuditService(store, &zapLoggerAdapter{logger: logger.Named("audit")}),
	}, nil
}

// ProvideRateLimiter creates the in-process limiter shared by uploads and
// mail intake. Denials are reported to recorder.
func ProvideRateLimiter(recorder port.AuditRecorder) port.RateLimiter {
	return ratelimit.NewSlidingWindow(recorder)
}

// ProvideStorage creates the originals store. Returns nil when keeping
// originals is disabled.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (port.OriginalStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.OriginalsDir == "" {
		logger.Info("Keeping originals disabled")
		return nil, nil
	}

	return storage.NewLocalFileStorage(cfg.OriginalsDir, logger), nil
}

// ProvideExtractors creates every document reader with the shared limits.
func ProvideExtractors(cfg *Config, repos *RepositoryBundle, logger *zap.Logger) (*ExtractorBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	limits := cfg.Limits
	return &ExtractorBundle{
		XML:       invoice.NewXMLExtractor(limits, logger.Named("xml")),
		PDF:       invoice.NewPDFExtractor(invoice.NewFitzTextLoader(logger), limits, logger.Named("pdf")),
		Tabular:   tabular.NewExtractor(repos.Invoice, repos.Item, limits.MaxTextLength, logger.Named("tabular")),
		Walker:    archive.NewWalker(cfg.Import.MaxArchiveEntrySize, service.ArchiveEntryExtensions(), logger.Named("archive")),
		Validator: invoice.NewValidator(limits, logger.Named("validator")),
	}, nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	Extractors  *ExtractorBundle
	Audit       service.AuditService
	Originals   port.OriginalStore
	MaxFileSize int64
	Logger      *zap.Logger
}

// ProvideServices creates all application services.
// Returns ServiceBundle containing all service implementations.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Extractors == nil {
		return nil, fmt.Errorf("extractors are required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit service is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	return &ServiceBundle{
		Audit: deps.Audit,
		Import: service.NewImportService(service.ImportDependencies{
			XML:         deps.Extractors.XML,
			PDF:         deps.Extractors.PDF,
			Tabular:     deps.Extractors.Tabular,
			Walker:      deps.Extractors.Walker,
			Validator:   deps.Extractors.Validator,
			Invoices:    deps.Repos.Invoice,
			Items:       deps.Repos.Item,
			Logs:        deps.Repos.ProcessingLog,
			TxManager:   deps.TxManager,
			Audit:       deps.Audit,
			Originals:   deps.Originals,
			MaxFileSize: deps.MaxFileSize,
		}, serviceLogger),
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Services *ServiceBundle
	Limiter  port.RateLimiter
	MailCfg  *MailConfig
	Logger   *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if deps.MailCfg == nil {
		return nil, fmt.Errorf("mail config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if !deps.MailCfg.Enabled {
		deps.Logger.Info("Mail intake disabled")
		return manager, nil
	}
	if deps.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required for mail intake")
	}

	intake := mailintake.NewIntake(
		deps.Services.Import,
		deps.Limiter,
		deps.Services.Audit,
		deps.MailCfg.Intake,
		deps.Logger.Named("mail"),
	)
	manager.Register(worker.NewMailWorker(deps.MailCfg.Worker, intake, deps.Logger))

	return manager, nil
}
