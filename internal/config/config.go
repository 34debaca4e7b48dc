package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Anomaly  AnomalyConfig  `mapstructure:"anomaly"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds access-token validation configuration. Token issuance is
// handled by the identity service; this backend only validates.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	AdminRole string `mapstructure:"admin_role"`
}

// AnomalyConfig holds the detection policy: pattern thresholds, trailing
// windows, the alert/containment cooldown, and containment durations.
// Defaults match the shipped policy; deployments may tune them.
type AnomalyConfig struct {
	Cooldown           time.Duration `mapstructure:"cooldown"`
	CooldownMaxEntries int           `mapstructure:"cooldown_max_entries"`

	BlockDuration      time.Duration `mapstructure:"block_duration"`
	QuarantineDuration time.Duration `mapstructure:"quarantine_duration"`

	BruteForceThreshold int           `mapstructure:"brute_force_threshold"`
	BruteForceWindow    time.Duration `mapstructure:"brute_force_window"`

	MassExportThreshold int           `mapstructure:"mass_export_threshold"`
	MassExportWindow    time.Duration `mapstructure:"mass_export_window"`

	ProbingThreshold int           `mapstructure:"probing_threshold"`
	ProbingWindow    time.Duration `mapstructure:"probing_window"`

	DestructiveThreshold int           `mapstructure:"destructive_threshold"`
	DestructiveWindow    time.Duration `mapstructure:"destructive_window"`
}

// AlertsConfig holds alert dispatch configuration
type AlertsConfig struct {
	// Channel is the Redis pub/sub channel real-time consumers subscribe to
	Channel string `mapstructure:"channel"`
	// Email holds admin email notification settings (high/critical only)
	Email AlertEmailConfig `mapstructure:"email"`
}

// AlertEmailConfig holds email notification settings for the alert dispatcher
type AlertEmailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	AdminAddress string `mapstructure:"admin_address"`
	// Gmail OAuth2 credentials for the sending mailbox
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	RefreshToken  string `mapstructure:"refresh_token"`
	SenderAddress string `mapstructure:"sender_address"`
	SenderName    string `mapstructure:"sender_name"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/threattrace")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("THREATTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "threattrace")
	v.SetDefault("database.user", "threattrace")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "threattrace")
	v.SetDefault("auth.admin_role", "technical")

	// Anomaly policy defaults
	v.SetDefault("anomaly.cooldown", "10m")
	v.SetDefault("anomaly.cooldown_max_entries", 4096)
	v.SetDefault("anomaly.block_duration", "30m")
	v.SetDefault("anomaly.quarantine_duration", "30m")
	v.SetDefault("anomaly.brute_force_threshold", 8)
	v.SetDefault("anomaly.brute_force_window", "10m")
	v.SetDefault("anomaly.mass_export_threshold", 5)
	v.SetDefault("anomaly.mass_export_window", "15m")
	v.SetDefault("anomaly.probing_threshold", 6)
	v.SetDefault("anomaly.probing_window", "10m")
	v.SetDefault("anomaly.destructive_threshold", 3)
	v.SetDefault("anomaly.destructive_window", "10m")

	// Alert defaults
	v.SetDefault("alerts.channel", "threattrace:alerts")
	v.SetDefault("alerts.email.enabled", false)
	v.SetDefault("alerts.email.admin_address", "")
	v.SetDefault("alerts.email.sender_address", "")
	v.SetDefault("alerts.email.sender_name", "ThreatTrace Security")
}
