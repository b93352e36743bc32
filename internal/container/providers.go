// Package container provides dependency injection and lifecycle management
// for the UXOne approval system following Clean Architecture principles.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/dispatcher"
	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/application/service"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/domain/event"
	"github.com/garyjia/uxone/internal/infrastructure/cache"
	"github.com/garyjia/uxone/internal/infrastructure/export"
	"github.com/garyjia/uxone/internal/infrastructure/external/erp"
	infraLark "github.com/garyjia/uxone/internal/infrastructure/external/lark"
	"github.com/garyjia/uxone/internal/infrastructure/metrics"
	"github.com/garyjia/uxone/internal/infrastructure/persistence/repository"
	"github.com/garyjia/uxone/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/uxone/internal/infrastructure/worker"
	httpInterface "github.com/garyjia/uxone/internal/interfaces/http"
	"github.com/garyjia/uxone/internal/interfaces/websocket"
	"github.com/garyjia/uxone/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// MessagingBundle holds the Lark client and the sender used for notifications.
// Client is nil when notifications are disabled.
type MessagingBundle struct {
	Client    *infraLark.Client
	Messenger port.LarkMessageSender
}

// InventoryBundle holds the ERP connection and the cache in front of it.
type InventoryBundle struct {
	ERP    *sql.DB
	Redis  *redis.Client
	Source port.InventorySource
	Cache  port.InventoryCache
	TTL    time.Duration
}

// MetricsBundle holds the Prometheus registry and the collectors registered on it.
type MetricsBundle struct {
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// ProvideDatabase opens the SQLite database and returns it with a transaction manager.
// Pending migrations are applied when AutoMigrate is set.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := database.NewMigrator(db, logger).RunMigrations(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
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
		Aggregate:    repository.NewAggregateRepository(sqlDB, logger),
		Sequence:     repository.NewSequenceRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
		User:         repository.NewUserRepository(sqlDB, logger),
		SystemConfig: repository.NewSystemConfigRepository(sqlDB, logger),
	}, nil
}

// ProvideMessaging creates the Lark client and messenger. When notifications are
// disabled messages are written to the log instead.
func ProvideMessaging(cfg *NotificationConfig, logger *zap.Logger) (*MessagingBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if !cfg.Enabled {
		logger.Info("Lark notifications disabled, messages will be logged only")
		return &MessagingBundle{Messenger: &logMessageSender{logger: logger}}, nil
	}

	client := infraLark.NewClient(infraLark.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		Domain:    cfg.Lark.Domain,
	}, logger)

	return &MessagingBundle{
		Client:    client,
		Messenger: infraLark.NewMessenger(client, logger),
	}, nil
}

// ProvideInventory connects to the ERP and builds the configured cache.
// It returns nil when inventory lookups are disabled.
func ProvideInventory(ctx context.Context, cfg *InventoryConfig, logger *zap.Logger) (*InventoryBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("inventory config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if !cfg.Enabled {
		return nil, nil
	}

	erpCfg := erp.Config{
		DSN:          cfg.ERP.DSN,
		View:         cfg.ERP.View,
		QueryTimeout: cfg.ERP.QueryTimeout,
		MaxOpenConns: cfg.ERP.MaxOpenConns,
	}
	erpDB, err := erp.Open(erpCfg, logger)
	if err != nil {
		return nil, err
	}

	bundle := &InventoryBundle{
		ERP:    erpDB,
		Source: erp.NewInventoryReader(erpDB, erpCfg, logger),
		TTL:    cfg.Cache.TTL,
	}

	switch cfg.Cache.Backend {
	case CacheBackendRedis:
		rc, err := cache.OpenRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.RedisDB)
		if err != nil {
			_ = erpDB.Close()
			return nil, err
		}
		bundle.Redis = rc
		bundle.Cache = cache.NewRedisCache(rc, cfg.Cache.KeyPrefix)
	default:
		bundle.Cache = cache.NewMemoryCache(nil)
	}

	logger.Info("Inventory lookups enabled", zap.String("cache_backend", cfg.Cache.Backend))
	return bundle, nil
}

// ProvideMetrics creates a registry with runtime collectors and the domain metrics.
// It returns nil when metrics are disabled.
func ProvideMetrics(cfg *MetricsConfig) *MetricsBundle {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &MetricsBundle{
		Registry: reg,
		Metrics:  metrics.New(reg),
	}
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
	), nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Config     *Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Messenger  port.LarkMessageSender
	Inventory  *InventoryBundle
	Metrics    port.MetricsRecorder
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger

	// SyncEvents runs event handlers before a service call returns.
	// Short-lived processes such as the CLI set it so notifications finish before exit.
	SyncEvents bool
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Messenger == nil {
		return nil, fmt.Errorf("message sender is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	cfg := deps.Config
	logger := &zapLoggerAdapter{logger: deps.Logger}

	opts := []service.Option{}
	if deps.Metrics != nil {
		opts = append(opts, service.WithMetrics(deps.Metrics))
	}
	if deps.Dispatcher != nil {
		opts = append(opts, service.WithDispatcher(deps.Dispatcher))
		if deps.SyncEvents {
			opts = append(opts, service.WithSynchronousEvents())
		}
	}

	families, err := cfg.SequenceFamilies()
	if err != nil {
		return nil, err
	}
	roles, err := cfg.ElevatedRoles()
	if err != nil {
		return nil, err
	}

	// Project and demand identifiers are stored on the aggregates table
	owners := map[string]port.IdentifierLookup{
		entity.FamilyProject: deps.Repos.Aggregate,
		entity.FamilyDemand:  deps.Repos.Aggregate,
	}
	sequences, err := service.NewSequenceGenerator(
		service.SequenceConfig{
			Families:    families,
			MaxAttempts: cfg.Sequence.MaxAttempts,
			BaseBackoff: cfg.Sequence.BaseBackoff,
			MaxBackoff:  cfg.Sequence.MaxBackoff,
		},
		deps.Repos.Sequence,
		deps.Repos.SystemConfig,
		owners,
		deps.TxManager,
		logger,
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sequence generator: %w", err)
	}

	approval := service.NewApprovalService(
		service.ApprovalConfig{
			ElevatedRoles: roles,
			MaxAttempts:   cfg.Approval.MaxAttempts,
			BaseBackoff:   cfg.Approval.BaseBackoff,
			MaxBackoff:    cfg.Approval.MaxBackoff,
		},
		deps.Repos.Aggregate,
		sequences,
		deps.TxManager,
		logger,
		opts...,
	)

	notification := service.NewNotificationService(
		service.NotificationConfig{
			MaxAttempts: cfg.Notification.MaxAttempts,
			BaseURL:     cfg.Notification.BaseURL,
		},
		deps.Repos.Aggregate,
		deps.Repos.Notification,
		deps.Repos.User,
		deps.Messenger,
		logger,
		opts...,
	)

	bundle := &ServiceBundle{
		Sequence:     sequences,
		Approval:     approval,
		Notification: notification,
		Export:       service.NewExportService(approval, export.NewXLSXWriter(time.Local), logger),
		Policy:       service.NewAuthorizationPolicy(roles),
	}
	if deps.Inventory != nil {
		bundle.Inventory = service.NewInventoryService(deps.Inventory.Source, deps.Inventory.Cache, deps.Inventory.TTL, logger, opts...)
	}
	return bundle, nil
}

// RegisterEventHandlers subscribes the services that react to domain events.
func RegisterEventHandlers(disp dispatcher.Dispatcher, services *ServiceBundle, logger *zap.Logger) error {
	if disp == nil {
		return fmt.Errorf("dispatcher is required")
	}
	if services == nil || services.Notification == nil {
		return fmt.Errorf("notification service is required")
	}
	if logger == nil {
		return fmt.Errorf("logger is required")
	}

	disp.Subscribe(
		event.TypeDecisionRecorded,
		"decision-notifier",
		"Notifies the owner and department heads about a recorded decision",
		services.Notification.HandleDecisionRecorded,
	)

	audit := outcomeAuditor(logger)
	disp.Subscribe(event.TypeAggregateReleased, "outcome-audit", "Logs released aggregates", audit)
	disp.Subscribe(event.TypeAggregateRejected, "outcome-audit", "Logs rejected aggregates", audit)
	return nil
}

// outcomeAuditor writes one audit log line per final or rejected outcome
func outcomeAuditor(logger *zap.Logger) dispatcher.Handler {
	return func(_ context.Context, evt *event.Event) error {
		logger.Info("Aggregate outcome",
			zap.String("event_type", evt.Type.String()),
			zap.Int64("aggregate_id", evt.AggregateID),
			zap.String("code", evt.AggregateCode),
			zap.String("status", evt.GetPayloadString(event.KeyStatus)),
			zap.String("department", evt.GetPayloadString(event.KeyDepartment)),
			zap.String("correlation_id", evt.CorrelationID))
		return nil
	}
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Notification service.NotificationService
	Config       *NotificationConfig
	Logger       *zap.Logger
}

// ProvideWorkers creates the worker manager with all background workers registered.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Notification == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	redeliveryCfg := worker.DefaultRedeliveryConfig()
	if deps.Config.RedeliveryInterval > 0 {
		redeliveryCfg.Interval = deps.Config.RedeliveryInterval
	}
	if deps.Config.RedeliveryBatch > 0 {
		redeliveryCfg.BatchSize = deps.Config.RedeliveryBatch
	}

	manager := worker.NewManager(deps.Logger)
	manager.Register(worker.NewRedeliveryWorker(redeliveryCfg, deps.Notification, deps.Logger))
	return manager, nil
}

// ProvideChatAdapter creates the Lark bot that accepts decisions by chat.
// It returns nil unless chat commands are enabled.
func ProvideChatAdapter(cfg *NotificationConfig, services *ServiceBundle, users port.UserRepository, messenger port.LarkMessageSender, logger *zap.Logger) *websocket.LarkAdapter {
	if cfg == nil || !cfg.Enabled || !cfg.Lark.ChatCommands {
		return nil
	}

	handler := websocket.NewCommandHandler(services.Approval, users, messenger, logger)
	return websocket.NewLarkAdapter(websocket.LarkAdapterConfig{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
		Domain:    cfg.Lark.Domain,
	}, handler, logger)
}

// ProvideHTTPServer creates the REST API server over the services.
func ProvideHTTPServer(cfg *Config, services *ServiceBundle, mb *MetricsBundle, logger *zap.Logger) (*httpInterface.Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if services == nil {
		return nil, fmt.Errorf("services are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	auth := httpInterface.NewTokenAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	var opts []httpInterface.ServerOption
	if mb != nil {
		opts = append(opts, httpInterface.WithMetrics(mb.Metrics, mb.Registry))
	}

	return httpInterface.NewServer(
		httpInterface.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Mode:            cfg.Server.Mode,
		},
		httpInterface.Services{
			Approval:     services.Approval,
			Sequence:     services.Sequence,
			Export:       services.Export,
			Inventory:    services.Inventory,
			Notification: services.Notification,
			Policy:       services.Policy,
		},
		auth,
		&zapLoggerAdapter{logger: logger},
		opts...,
	), nil
}

// logMessageSender writes messages to the log when Lark delivery is disabled.
type logMessageSender struct {
	logger *zap.Logger
}

func (s *logMessageSender) SendMessage(ctx context.Context, openID string, content string) error {
	s.logger.Info("Notification (not delivered)", zap.String("open_id", openID), zap.String("content", content))
	return nil
}

func (s *logMessageSender) SendCardMessage(ctx context.Context, openID string, cardContent interface{}) error {
	s.logger.Info("Card notification (not delivered)", zap.String("open_id", openID), zap.Any("card", cardContent))
	return nil
}
