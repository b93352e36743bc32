package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/dispatcher"
	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/application/service"
	"github.com/garyjia/uxone/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/uxone/internal/infrastructure/worker"
	httpInterface "github.com/garyjia/uxone/internal/interfaces/http"
	"github.com/garyjia/uxone/internal/interfaces/websocket"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	messaging *MessagingBundle
	inventory *InventoryBundle
	metrics   *MetricsBundle

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Interfaces
	httpServer  *httpInterface.Server
	chatAdapter *websocket.LarkAdapter

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Aggregate    port.AggregateRepository
	Sequence     port.SequenceRepository
	Notification port.NotificationRepository
	User         port.UserRepository
	SystemConfig port.SystemConfigRepository
}

// ServiceBundle groups all application services.
// Inventory is nil when ERP lookups are disabled.
type ServiceBundle struct {
	Sequence     service.SequenceGenerator
	Approval     service.ApprovalService
	Notification service.NotificationService
	Export       service.ExportService
	Inventory    service.InventoryService
	Policy       service.AuthorizationPolicy
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
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
// 2. External clients (Lark, ERP, cache, metrics)
// 3. Event dispatcher and application services
// 4. Workers
// 5. Interfaces (HTTP server, Lark chat bot)
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

	// Step 2: Initialize external clients
	if err := c.initExternalClients(); err != nil {
		c.closeExternal()
		c.closeDatabase()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	// Step 3: Initialize dispatcher and services
	if err := c.initServices(); err != nil {
		c.closeExternal()
		c.closeDatabase()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 4: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		c.closeExternal()
		c.closeDatabase()
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	// Step 5: Initialize interfaces
	if err := c.initInterfaces(); err != nil {
		_ = c.workers.StopAll()
		c.closeExternal()
		c.closeDatabase()
		return fmt.Errorf("failed to initialize interfaces: %w", err)
	}
	c.logger.Info("Interfaces initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
// The HTTP server is owned by the caller and must be stopped before Close.
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

	// Step 1: Stop chat bot (reverse of step 5)
	if c.chatAdapter != nil {
		if err := c.chatAdapter.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop chat adapter: %w", err))
		}
	}

	// Step 2: Stop workers (reverse of step 4)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 3: Close dispatcher, waiting for in-flight notifications (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 4: Close external connections (reverse of step 2)
	errs = append(errs, c.closeExternal()...)

	// Step 5: Close database (reverse of step 1)
	errs = append(errs, c.closeDatabase()...)

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) closeExternal() []error {
	var errs []error
	if c.inventory != nil {
		if c.inventory.Redis != nil {
			if err := c.inventory.Redis.Close(); err != nil {
				c.logger.Error("Failed to close redis", zap.Error(err))
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		if c.inventory.ERP != nil {
			if err := c.inventory.ERP.Close(); err != nil {
				c.logger.Error("Failed to close ERP connection", zap.Error(err))
				errs = append(errs, fmt.Errorf("close erp: %w", err))
			}
		}
		c.inventory = nil
	}
	return errs
}

func (c *Container) closeDatabase() []error {
	if c.sqlDB == nil {
		return nil
	}
	err := c.sqlDB.Close()
	c.sqlDB = nil
	if err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
		return []error{fmt.Errorf("close database: %w", err)}
	}
	c.logger.Info("Database closed")
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

	// Check workers
	if c.workers != nil {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.WorkerCount()),
		}
		if !c.workers.IsRunning() {
			status.Overall = false
		}
	} else {
		status.Components["workers"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check dispatcher
	if c.dispatcher != nil {
		stats := c.dispatcher.Stats()
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("subscriptions: %d, delivered: %d, failed: %d, in flight: %d",
				len(c.dispatcher.Subscriptions()), stats.Delivered, stats.Failed, stats.InFlight),
		}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check ERP, only when enabled
	if c.inventory != nil && c.inventory.ERP != nil {
		if err := c.inventory.ERP.Ping(); err != nil {
			status.Components["erp"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["erp"] = ComponentHealth{Healthy: true}
		}
	}

	// Check chat bot, only when enabled
	if c.chatAdapter != nil {
		status.Components["lark_chat"] = ComponentHealth{Healthy: c.chatAdapter.IsRunning()}
		if !c.chatAdapter.IsRunning() {
			status.Overall = false
		}
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
		c.closeDatabase()
		return err
	}

	c.repositories = repos
	return nil
}

// initExternalClients initializes Lark, ERP, cache and metrics using providers.
func (c *Container) initExternalClients() error {
	messaging, err := ProvideMessaging(&c.config.Notification, c.logger)
	if err != nil {
		return err
	}
	c.messaging = messaging

	inventory, err := ProvideInventory(c.ctx, &c.config.Inventory, c.logger)
	if err != nil {
		return err
	}
	c.inventory = inventory

	c.metrics = ProvideMetrics(&c.config.Metrics)
	return nil
}

// initServices initializes the dispatcher, all application services and
// their event subscriptions.
func (c *Container) initServices() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	deps := &ServiceDeps{
		Config:     c.config,
		Repos:      c.repositories,
		TxManager:  c.db,
		Messenger:  c.messaging.Messenger,
		Inventory:  c.inventory,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	}
	if c.metrics != nil {
		deps.Metrics = c.metrics.Metrics
	}

	services, err := ProvideServices(deps)
	if err != nil {
		return err
	}
	c.services = services

	return RegisterEventHandlers(c.dispatcher, c.services, c.logger)
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Notification: c.services.Notification,
		Config:       &c.config.Notification,
		Logger:       c.logger,
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

// initInterfaces builds the HTTP server and starts the Lark chat bot when enabled.
func (c *Container) initInterfaces() error {
	server, err := ProvideHTTPServer(c.config, c.services, c.metrics, c.logger)
	if err != nil {
		return err
	}
	c.httpServer = server

	c.chatAdapter = ProvideChatAdapter(&c.config.Notification, c.services, c.repositories.User, c.messaging.Messenger, c.logger)
	if c.chatAdapter != nil {
		// Start blocks for the life of the connection
		go func(ctx context.Context, adapter *websocket.LarkAdapter) {
			if err := adapter.Start(ctx); err != nil {
				c.logger.Error("Lark chat adapter stopped", zap.Error(err))
			}
		}(c.ctx, c.chatAdapter)
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

// Messenger returns the Lark message sender.
func (c *Container) Messenger() port.LarkMessageSender {
	if c.messaging == nil {
		return nil
	}
	return c.messaging.Messenger
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// HTTPServer returns the REST API server. The caller runs it.
func (c *Container) HTTPServer() *httpInterface.Server {
	return c.httpServer
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
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
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
