// Package config loads the admin configuration from admin.yml and ADMIN_
// environment variables
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/admin/internal/orm/introspect"
	"github.com/conduit-lang/admin/internal/orm/transaction"
	"github.com/conduit-lang/admin/internal/store/sqlstore"
)

// EnvPrefix prefixes environment overrides: ADMIN_SERVER_PORT sets server.port
const EnvPrefix = "ADMIN"

// MemoryDriver selects the in-memory store
const MemoryDriver = "memory"

// Config represents the admin configuration
type Config struct {
	Admin    AdminConfig             `mapstructure:"admin"`
	Database DatabaseConfig          `mapstructure:"database"`
	Server   ServerConfig            `mapstructure:"server"`
	Auth     AuthConfig              `mapstructure:"auth"`
	Log      LogConfig               `mapstructure:"log"`
	Entities []introspect.Descriptor `mapstructure:"entities"`
}

// AdminConfig controls the admin surface
type AdminConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	BasePath     string `mapstructure:"base_path"`
	RequiredRole string `mapstructure:"required_role"`
	PageSize     int    `mapstructure:"page_size"`
	MaxPageSize  int    `mapstructure:"max_page_size"`
	AppTitle     string `mapstructure:"app_title"`
	BatchSize    int    `mapstructure:"batch_size"`

	// MaxFileSizeMB caps each binary field value; zero disables the check
	MaxFileSizeMB int `mapstructure:"max_file_size_mb"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
	// Migrate creates missing tables at startup
	Migrate   bool          `mapstructure:"migrate"`
	Isolation string        `mapstructure:"isolation"`
	TxTimeout time.Duration `mapstructure:"tx_timeout"`
	Retries   int           `mapstructure:"retries"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig configures bearer token verification. An empty secret disables
// authentication.
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Address returns the server listen address
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Load loads the configuration. An empty path looks for admin.yml or
// admin.yaml in the working directory and falls back to defaults when
// neither exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("admin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.base_path", "/admin")
	v.SetDefault("admin.required_role", "ADMIN")
	v.SetDefault("admin.page_size", 20)
	v.SetDefault("admin.max_page_size", 100)
	v.SetDefault("admin.app_title", "Admin")
	v.SetDefault("admin.batch_size", 500)
	v.SetDefault("admin.max_file_size_mb", 10)

	v.SetDefault("database.driver", MemoryDriver)
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", false)
	v.SetDefault("database.isolation", "default")
	v.SetDefault("database.tx_timeout", 0)
	v.SetDefault("database.retries", 0)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	base := cfg.Admin.BasePath
	if !strings.HasPrefix(base, "/") {
		return fmt.Errorf("admin.base_path must start with '/', got: %s", base)
	}
	if len(base) > 1 && strings.HasSuffix(base, "/") {
		return fmt.Errorf("admin.base_path must not end with '/', got: %s", base)
	}
	if cfg.Admin.PageSize <= 0 || cfg.Admin.MaxPageSize <= 0 {
		return fmt.Errorf("admin.page_size and admin.max_page_size must be positive")
	}
	if cfg.Admin.PageSize > cfg.Admin.MaxPageSize {
		return fmt.Errorf("admin.page_size (%d) exceeds admin.max_page_size (%d)",
			cfg.Admin.PageSize, cfg.Admin.MaxPageSize)
	}
	if cfg.Admin.MaxFileSizeMB < 0 {
		return fmt.Errorf("admin.max_file_size_mb must not be negative, got: %d", cfg.Admin.MaxFileSizeMB)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}

	if cfg.Database.Driver != MemoryDriver {
		if _, err := sqlstore.DialectFor(cfg.Database.Driver); err != nil {
			return fmt.Errorf("database.driver: %w", err)
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver %s", cfg.Database.Driver)
		}
	}
	if _, err := transaction.ParseIsolationLevel(cfg.Database.Isolation); err != nil {
		return fmt.Errorf("database.isolation: %w", err)
	}
	return nil
}

// TransactionOptions returns the transaction settings of the SQL store
func (c *Config) TransactionOptions() transaction.Options {
	level, _ := transaction.ParseIsolationLevel(c.Database.Isolation)
	opts := transaction.Options{Isolation: level, Timeout: c.Database.TxTimeout}
	if c.Database.Retries > 0 {
		opts.Retry = transaction.DefaultRetryConfig()
		opts.Retry.MaxRetries = c.Database.Retries
	}
	return opts
}
