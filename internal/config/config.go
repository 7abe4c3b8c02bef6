package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Mailer   MailerConfig   `yaml:"mailer"`

	// Roles maps a share role name to the operations it grants on each
	// entity type. Permission rebuilds expand shares through this table.
	Roles map[string]RoleConfig `yaml:"roles"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the bind host, defaulting to all interfaces.
func (s ServerConfig) GetHost() string {
	if s.Host == "" {
		return "0.0.0.0"
	}
	return s.Host
}

// DatabaseConfig holds the postgres connection settings.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the permission-cache redis settings.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	CacheTTL   int    `yaml:"cache_ttl_seconds"`
	Disabled   bool   `yaml:"disabled"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// AuthConfig holds Google OAuth settings for the login flow.
type AuthConfig struct {
	Enabled            bool     `yaml:"enabled"`
	GoogleClientID     string   `yaml:"google_client_id"`
	GoogleClientSecret string   `yaml:"google_client_secret"`
	AllowedDomains     []string `yaml:"allowed_domains"`
	SessionHours       int      `yaml:"session_hours"`
}

// MailerConfig holds send-configuration level settings, most importantly
// the well-known id of the system default send configuration.
type MailerConfig struct {
	SystemSendConfigurationID int64 `yaml:"system_send_configuration_id"`
}

// RoleConfig lists the operations a role grants, per entity type.
type RoleConfig struct {
	SendConfiguration []string `yaml:"send_configuration"`
	Namespace         []string `yaml:"namespace"`
}

// LoadFromEnv loads configuration from a YAML file, applying .env and
// environment variable overrides for secrets and connection strings.
func LoadFromEnv(path string) (*Config, error) {
	// .env is optional; environment wins over file values either way.
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if id := os.Getenv("SYSTEM_SEND_CONFIGURATION_ID"); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("SYSTEM_SEND_CONFIGURATION_ID: %w", err)
		}
		cfg.Mailer.SystemSendConfigurationID = n
	}
	if cid := os.Getenv("GOOGLE_CLIENT_ID"); cid != "" {
		cfg.Auth.GoogleClientID = cid
	}
	if sec := os.Getenv("GOOGLE_CLIENT_SECRET"); sec != "" {
		cfg.Auth.GoogleClientSecret = sec
	}

	if cfg.Mailer.SystemSendConfigurationID <= 0 {
		return nil, fmt.Errorf("system_send_configuration_id must be positive, got %d", cfg.Mailer.SystemSendConfigurationID)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			CacheTTL:  300,
			KeyPrefix: "mailtrain",
		},
		Auth:   AuthConfig{SessionHours: 24},
		Mailer: MailerConfig{SystemSendConfigurationID: 1},
		Roles: map[string]RoleConfig{
			"master": {
				SendConfiguration: []string{"viewPublic", "viewPrivate", "edit", "delete", "share"},
				Namespace:         []string{"view", "edit", "delete", "share", "createSendConfiguration"},
			},
			"editor": {
				SendConfiguration: []string{"viewPublic", "viewPrivate", "edit"},
				Namespace:         []string{"view", "createSendConfiguration"},
			},
			"viewer": {
				SendConfiguration: []string{"viewPublic"},
				Namespace:         []string{"view"},
			},
		},
	}
}

// RoleOperations returns the operations the named role grants on the given
// entity type. Unknown roles grant nothing.
func (c *Config) RoleOperations(role, entityType string) []string {
	rc, ok := c.Roles[role]
	if !ok {
		return nil
	}
	switch entityType {
	case "sendConfiguration":
		return rc.SendConfiguration
	case "namespace":
		return rc.Namespace
	}
	return nil
}
