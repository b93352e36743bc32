package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Approval     ApprovalConfig     `mapstructure:"approval"`
	Sequence     SequenceConfig     `mapstructure:"sequence"`
	Notification NotificationConfig `mapstructure:"notification"`
	Inventory    InventoryConfig    `mapstructure:"inventory"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// AuthConfig holds bearer token configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// ApprovalConfig holds decision recording configuration
type ApprovalConfig struct {
	ElevatedRoles []string      `mapstructure:"elevated_roles"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseBackoff   time.Duration `mapstructure:"base_backoff"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
}

// SequenceFamilyConfig describes one identifier family
type SequenceFamilyConfig struct {
	Name   string `mapstructure:"name"`
	Prefix string `mapstructure:"prefix"`
	Period string `mapstructure:"period"` // daily or yearly
	Width  int    `mapstructure:"width"`
}

// SequenceConfig holds identifier generation configuration
type SequenceConfig struct {
	Families    []SequenceFamilyConfig `mapstructure:"families"`
	MaxAttempts int                    `mapstructure:"max_attempts"`
	BaseBackoff time.Duration          `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration          `mapstructure:"max_backoff"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID        string `mapstructure:"app_id"`
	AppSecret    string `mapstructure:"app_secret"`
	Domain       string `mapstructure:"domain"`
	ChatCommands bool   `mapstructure:"chat_commands"`
}

// NotificationConfig holds notification delivery configuration
type NotificationConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Lark               LarkConfig    `mapstructure:"lark"`
	BaseURL            string        `mapstructure:"base_url"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	RedeliveryInterval time.Duration `mapstructure:"redelivery_interval"`
	RedeliveryBatch    int           `mapstructure:"redelivery_batch"`
}

// ERPConfig holds the ERP connection
type ERPConfig struct {
	DSN          string        `mapstructure:"dsn"`
	View         string        `mapstructure:"view"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

// CacheConfig holds inventory cache configuration
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisURL  string        `mapstructure:"redis_url"`
	RedisDB   int           `mapstructure:"redis_db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// InventoryConfig holds ERP inventory lookup configuration
type InventoryConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	ERP     ERPConfig   `mapstructure:"erp"`
	Cache   CacheConfig `mapstructure:"cache"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file and environment variables.
// An empty configPath reads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("UXONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.path", "data/uxone.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 7)
	v.SetDefault("logger.max_age_days", 30)
	v.SetDefault("logger.compress", true)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "uxone")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	// Approval defaults
	v.SetDefault("approval.elevated_roles", []string{"ADMIN", "MANAGER", "SENIOR_MANAGER"})
	v.SetDefault("approval.max_attempts", 3)
	v.SetDefault("approval.base_backoff", 20*time.Millisecond)
	v.SetDefault("approval.max_backoff", 500*time.Millisecond)

	// Sequence defaults; no families means the built-in set
	v.SetDefault("sequence.max_attempts", 5)
	v.SetDefault("sequence.base_backoff", 10*time.Millisecond)
	v.SetDefault("sequence.max_backoff", 200*time.Millisecond)

	// Notification defaults
	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.lark.app_id", "")
	v.SetDefault("notification.lark.app_secret", "")
	v.SetDefault("notification.lark.domain", "lark")
	v.SetDefault("notification.lark.chat_commands", false)
	v.SetDefault("notification.base_url", "")
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.redelivery_interval", time.Minute)
	v.SetDefault("notification.redelivery_batch", 50)

	// Inventory defaults
	v.SetDefault("inventory.enabled", false)
	v.SetDefault("inventory.erp.dsn", "")
	v.SetDefault("inventory.erp.view", "inventory_snapshot_v")
	v.SetDefault("inventory.erp.query_timeout", 3*time.Second)
	v.SetDefault("inventory.erp.max_open_conns", 5)
	v.SetDefault("inventory.cache.backend", "memory")
	v.SetDefault("inventory.cache.ttl", 5*time.Minute)
	v.SetDefault("inventory.cache.redis_url", "")
	v.SetDefault("inventory.cache.redis_db", 0)
	v.SetDefault("inventory.cache.key_prefix", "uxone:inventory:")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Sensitive credentials from environment
	bindings := map[string][]string{
		"auth.jwt_secret":              {"UXONE_JWT_SECRET"},
		"notification.lark.app_id":     {"UXONE_LARK_APP_ID", "LARK_APP_ID"},
		"notification.lark.app_secret": {"UXONE_LARK_APP_SECRET", "LARK_APP_SECRET"},
		"inventory.erp.dsn":            {"UXONE_ERP_DSN", "ERP_DSN"},
		"inventory.cache.redis_url":    {"UXONE_REDIS_URL", "REDIS_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (set UXONE_JWT_SECRET)")
	}

	// Validate sequence families
	seen := make(map[string]bool, len(c.Sequence.Families))
	for i, f := range c.Sequence.Families {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			return fmt.Errorf("sequence.families[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("sequence.families[%d]: duplicate family %s", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(f.Prefix) == "" {
			return fmt.Errorf("sequence.families[%d].prefix is required", i)
		}
		switch strings.ToLower(strings.TrimSpace(f.Period)) {
		case "daily", "yearly":
		default:
			return fmt.Errorf("sequence.families[%d].period must be daily or yearly", i)
		}
		if f.Width < 1 || f.Width > 8 {
			return fmt.Errorf("sequence.families[%d].width must be between 1 and 8", i)
		}
	}

	// Validate notification credentials
	if c.Notification.Enabled {
		if c.Notification.Lark.AppID == "" {
			return fmt.Errorf("notification.lark.app_id is required when notifications are enabled")
		}
		if c.Notification.Lark.AppSecret == "" {
			return fmt.Errorf("notification.lark.app_secret is required when notifications are enabled")
		}
	}

	// Validate inventory
	if c.Inventory.Enabled {
		if c.Inventory.ERP.DSN == "" {
			return fmt.Errorf("inventory.erp.dsn is required when inventory is enabled")
		}
		switch c.Inventory.Cache.Backend {
		case "memory":
		case "redis":
			if c.Inventory.Cache.RedisURL == "" {
				return fmt.Errorf("inventory.cache.redis_url is required for the redis backend")
			}
		default:
			return fmt.Errorf("inventory.cache.backend must be memory or redis")
		}
	}

	return nil
}
