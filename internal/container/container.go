package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/application/service"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/audit"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/nfe-ingest/internal/infrastructure/worker"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Audit and throttling
	auditStore *audit.BoltStore
	limiter    port.RateLimiter

	// Infrastructure - Storage
	originals port.OriginalStore

	// Application
	extractors *ExtractorBundle
	services   *ServiceBundle

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Invoice       port.InvoiceRepository
	Item          port.ItemRepository
	ProcessingLog port.ProcessingLogRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Audit  service.AuditService
	Import service.ImportService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
	Workers    []worker.Status            `json:"workers,omitempty"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Audit store and rate limiter
// 3. Storage
// 4. Extractors and application services
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize audit store and limiter
	if err := c.initAudit(); err != nil {
		return fmt.Errorf("failed to initialize audit: %w", err)
	}
	c.logger.Info("Audit store initialized")

	// Step 3: Initialize storage
	if err := c.initStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.logger.Info("Storage initialized")

	// Step 4: Initialize extractors and services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 5: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 5)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Steps 2-3: services and storage hold no resources

	// Step 4: Close audit store (reverse of step 2)
	if c.auditStore != nil {
		if err := c.auditStore.Close(); err != nil {
			c.logger.Error("Failed to close audit store", zap.Error(err))
			errs = append(errs, fmt.Errorf("close audit store: %w", err))
		} else {
			c.logger.Info("Audit store closed")
		}
	}

	// Step 5: Close database (reverse of step 1)
	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	// Check database
	if c.sqlDB != nil {
		if err := c.sqlDB.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check audit store
	if c.auditStore != nil {
		status.Components["audit"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["audit"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check workers
	if c.workers != nil {
		running := c.workers.IsRunning()
		status.Components["workers"] = ComponentHealth{
			Healthy: running,
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		}
		status.Workers = c.workers.Statuses()
		if !running {
			status.Overall = false
		}
	} else {
		status.Components["workers"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.sqlDB, c.logger)
	if err != nil {
		c.sqlDB.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// initAudit opens the audit store and creates the limiter reporting into it.
func (c *Container) initAudit() error {
	bundle, err := ProvideAudit(&c.config.Audit, c.logger)
	if err != nil {
		return err
	}

	c.auditStore = bundle.Store
	c.services = &ServiceBundle{Audit: bundle.Service}
	c.limiter = ProvideRateLimiter(bundle.Service)
	return nil
}

// initStorage initializes the originals store using providers.
func (c *Container) initStorage() error {
	originals, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}

	c.originals = originals
	return nil
}

// initServices initializes extractors and application services using providers.
func (c *Container) initServices() error {
	extractors, err := ProvideExtractors(c.config, c.repositories, c.logger)
	if err != nil {
		return err
	}
	c.extractors = extractors

	services, err := ProvideServices(&ServiceDeps{
		Repos:       c.repositories,
		TxManager:   c.db,
		Extractors:  extractors,
		Audit:       c.services.Audit,
		Originals:   c.originals,
		MaxFileSize: c.config.Import.MaxFileSize,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Services: c.services,
		Limiter:  c.limiter,
		MailCfg:  &c.config.Mail,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// RateLimiter returns the shared rate limiter.
func (c *Container) RateLimiter() port.RateLimiter {
	return c.limiter
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// ServiceLogger returns the key/value logger handed to services and adapters.
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
