package config

import (
	"github.com/garyjia/uxone/internal/container"
	"github.com/garyjia/uxone/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	families := make([]container.SequenceFamilyConfig, 0, len(c.Sequence.Families))
	for _, f := range c.Sequence.Families {
		families = append(families, container.SequenceFamilyConfig{
			Name:   f.Name,
			Prefix: f.Prefix,
			Period: f.Period,
			Width:  f.Width,
		})
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
			Mode:            c.Server.Mode,
		},
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
		},
		Approval: container.ApprovalConfig{
			ElevatedRoles: c.Approval.ElevatedRoles,
			MaxAttempts:   c.Approval.MaxAttempts,
			BaseBackoff:   c.Approval.BaseBackoff,
			MaxBackoff:    c.Approval.MaxBackoff,
		},
		Sequence: container.SequenceConfig{
			Families:    families,
			MaxAttempts: c.Sequence.MaxAttempts,
			BaseBackoff: c.Sequence.BaseBackoff,
			MaxBackoff:  c.Sequence.MaxBackoff,
		},
		Notification: container.NotificationConfig{
			Enabled: c.Notification.Enabled,
			Lark: container.LarkConfig{
				AppID:        c.Notification.Lark.AppID,
				AppSecret:    c.Notification.Lark.AppSecret,
				Domain:       c.Notification.Lark.Domain,
				ChatCommands: c.Notification.Lark.ChatCommands,
			},
			BaseURL:            c.Notification.BaseURL,
			MaxAttempts:        c.Notification.MaxAttempts,
			RedeliveryInterval: c.Notification.RedeliveryInterval,
			RedeliveryBatch:    c.Notification.RedeliveryBatch,
		},
		Inventory: container.InventoryConfig{
			Enabled: c.Inventory.Enabled,
			ERP: container.ERPConfig{
				DSN:          c.Inventory.ERP.DSN,
				View:         c.Inventory.ERP.View,
				QueryTimeout: c.Inventory.ERP.QueryTimeout,
				MaxOpenConns: c.Inventory.ERP.MaxOpenConns,
			},
			Cache: container.CacheConfig{
				Backend:   c.Inventory.Cache.Backend,
				TTL:       c.Inventory.Cache.TTL,
				RedisURL:  c.Inventory.Cache.RedisURL,
				RedisDB:   c.Inventory.Cache.RedisDB,
				KeyPrefix: c.Inventory.Cache.KeyPrefix,
			},
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
		},
	}
}

// ToLoggerConfig converts the logger section for utils.NewLogger.
func (c *Config) ToLoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
		MaxSizeMB:  c.Logger.MaxSizeMB,
		MaxBackups: c.Logger.MaxBackups,
		MaxAgeDays: c.Logger.MaxAgeDays,
		Compress:   c.Logger.Compress,
	}
}
