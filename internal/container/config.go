package container

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/uxone/internal/domain/entity"
)

// Config holds all configuration needed by the container.
// This is a focused config struct that contains only what the container needs.
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Auth         AuthConfig
	Approval     ApprovalConfig
	Sequence     SequenceConfig
	Notification NotificationConfig
	Inventory    InventoryConfig
	Metrics      MetricsConfig
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ApprovalConfig holds decision recording settings.
type ApprovalConfig struct {
	ElevatedRoles []string
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

// SequenceFamilyConfig describes one identifier family.
type SequenceFamilyConfig struct {
	Name   string
	Prefix string
	Period string
	Width  int
}

// SequenceConfig holds identifier generation settings.
type SequenceConfig struct {
	Families    []SequenceFamilyConfig
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// LarkConfig holds Lark API credentials.
type LarkConfig struct {
	AppID     string
	AppSecret string
	Domain    string
	// ChatCommands enables the WebSocket bot that accepts decisions by chat
	ChatCommands bool
}

// NotificationConfig holds notification delivery settings.
type NotificationConfig struct {
	Enabled            bool
	Lark               LarkConfig
	BaseURL            string
	MaxAttempts        int
	RedeliveryInterval time.Duration
	RedeliveryBatch    int
}

// ERPConfig holds the ERP database connection.
type ERPConfig struct {
	DSN          string
	View         string
	QueryTimeout time.Duration
	MaxOpenConns int
}

// CacheConfig selects and configures the inventory cache.
type CacheConfig struct {
	Backend   string // memory or redis
	TTL       time.Duration
	RedisURL  string
	RedisDB   int
	KeyPrefix string
}

// InventoryConfig holds the ERP inventory lookup settings.
type InventoryConfig struct {
	Enabled bool
	ERP     ERPConfig
	Cache   CacheConfig
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
}

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/uxone.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			AutoMigrate:     true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			Mode:            "release",
		},
		Auth: AuthConfig{
			Issuer: "uxone",
		},
		Approval: ApprovalConfig{
			ElevatedRoles: []string{string(entity.RoleAdmin), string(entity.RoleManager), string(entity.RoleSeniorManager)},
			MaxAttempts:   3,
			BaseBackoff:   20 * time.Millisecond,
			MaxBackoff:    500 * time.Millisecond,
		},
		Sequence: SequenceConfig{
			MaxAttempts: 5,
			BaseBackoff: 10 * time.Millisecond,
			MaxBackoff:  200 * time.Millisecond,
		},
		Notification: NotificationConfig{
			MaxAttempts:        5,
			RedeliveryInterval: time.Minute,
			RedeliveryBatch:    50,
		},
		Inventory: InventoryConfig{
			Cache: CacheConfig{
				Backend: CacheBackendMemory,
				TTL:     5 * time.Minute,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth JWT secret is required")
	}
	if _, err := c.ElevatedRoles(); err != nil {
		return err
	}
	if _, err := c.SequenceFamilies(); err != nil {
		return err
	}

	if c.Notification.Enabled {
		if c.Notification.Lark.AppID == "" {
			return fmt.Errorf("lark app ID is required when notifications are enabled")
		}
		if c.Notification.Lark.AppSecret == "" {
			return fmt.Errorf("lark app secret is required when notifications are enabled")
		}
	}
	if c.Notification.Lark.ChatCommands && !c.Notification.Enabled {
		return fmt.Errorf("chat commands require notifications to be enabled")
	}

	if c.Inventory.Enabled {
		if c.Inventory.ERP.DSN == "" {
			return fmt.Errorf("ERP DSN is required when inventory is enabled")
		}
		switch c.Inventory.Cache.Backend {
		case CacheBackendMemory:
		case CacheBackendRedis:
			if c.Inventory.Cache.RedisURL == "" {
				return fmt.Errorf("redis URL is required for the redis cache backend")
			}
		default:
			return fmt.Errorf("unknown inventory cache backend %q", c.Inventory.Cache.Backend)
		}
		if c.Inventory.Cache.TTL <= 0 {
			return fmt.Errorf("inventory cache TTL must be positive")
		}
	}
	return nil
}

// ElevatedRoles parses the configured elevated roles.
func (c *Config) ElevatedRoles() ([]entity.Role, error) {
	roles := make([]entity.Role, 0, len(c.Approval.ElevatedRoles))
	for _, name := range c.Approval.ElevatedRoles {
		role, err := entity.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("approval elevated roles: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// SequenceFamilies converts the configured families, falling back to the
// built-in set when none are configured.
func (c *Config) SequenceFamilies() ([]entity.SequenceFamily, error) {
	if len(c.Sequence.Families) == 0 {
		return nil, nil
	}
	families := make([]entity.SequenceFamily, 0, len(c.Sequence.Families))
	for _, fc := range c.Sequence.Families {
		f := entity.SequenceFamily{
			Name:   strings.ToLower(strings.TrimSpace(fc.Name)),
			Prefix: strings.ToUpper(strings.TrimSpace(fc.Prefix)),
			Period: entity.BucketPeriod(strings.ToUpper(strings.TrimSpace(fc.Period))),
			Width:  fc.Width,
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		families = append(families, f)
	}
	return families, nil
}
