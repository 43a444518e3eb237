// Package config provides configuration management for Cortex.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Cortex.
type Config struct {
	NATS        NATSConfig        `mapstructure:"nats"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Supervision SupervisionConfig `mapstructure:"supervision"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Personas    PersonaConfig     `mapstructure:"personas"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientName    string `mapstructure:"clientName"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
	ReconnectWait int    `mapstructure:"reconnectWait"` // in seconds
}

// Storage driver names accepted by StorageConfig.Driver.
const (
	StorageDriverMemory   = "memory"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

// StorageConfig selects the backing store for the agent registry and
// reference code sequences.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`     // memory, sqlite, postgres
	SQLitePath string `mapstructure:"sqlitePath"` // path to the sqlite database file
}

// DatabaseConfig holds PostgreSQL connection configuration, used when
// storage.driver is "postgres".
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// SupervisionConfig holds the delegation supervision loop configuration.
type SupervisionConfig struct {
	CheckInterval    int    `mapstructure:"checkInterval"` // in seconds
	MaxRetries       int    `mapstructure:"maxRetries"`
	AlertTarget      string `mapstructure:"alertTarget"`
	EscalationTarget string `mapstructure:"escalationTarget"`
}

// LLMConfig holds the LLM client configuration used by the llm skill executor.
type LLMConfig struct {
	Provider  string   `mapstructure:"provider"` // cli, anthropic
	Command   string   `mapstructure:"command"`  // CLI provider: binary to invoke
	Args      []string `mapstructure:"args"`     // CLI provider: arguments
	Timeout   int      `mapstructure:"timeout"`  // in seconds
	Model     string   `mapstructure:"model"`    // anthropic provider: model identifier
	MaxTokens int      `mapstructure:"maxTokens"`
	APIKey    string   `mapstructure:"apiKey"`
}

// PersonaConfig holds persona definition loading configuration.
type PersonaConfig struct {
	Dir string `mapstructure:"dir"` // directory of persona yaml files
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// CheckIntervalDuration returns the supervision check interval as a time.Duration.
func (s *SupervisionConfig) CheckIntervalDuration() time.Duration {
	return time.Duration(s.CheckInterval) * time.Second
}

// TimeoutDuration returns the LLM call timeout as a time.Duration.
func (l *LLMConfig) TimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// ReconnectWaitDuration returns the NATS reconnect wait as a time.Duration.
func (n *NATSConfig) ReconnectWaitDuration() time.Duration {
	return time.Duration(n.ReconnectWait) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("CORTEX_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// NATS defaults - empty URL means use the in-memory bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientName", "cortex")
	v.SetDefault("nats.maxReconnects", 10)
	v.SetDefault("nats.reconnectWait", 2)

	// Storage defaults
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlitePath", "cortex.db")

	// Database defaults (postgres driver)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cortex")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "cortex")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Supervision defaults
	v.SetDefault("supervision.checkInterval", 60)
	v.SetDefault("supervision.maxRetries", 3)
	v.SetDefault("supervision.alertTarget", "agent.cos")
	v.SetDefault("supervision.escalationTarget", "agent.founder")

	// LLM defaults
	v.SetDefault("llm.provider", "cli")
	v.SetDefault("llm.command", "claude")
	v.SetDefault("llm.args", []string{"--print"})
	v.SetDefault("llm.timeout", 120)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.maxTokens", 4096)
	v.SetDefault("llm.apiKey", "")

	// Persona defaults
	v.SetDefault("personas.dir", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix CORTEX_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/cortex/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("CORTEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("llm.apiKey", "ANTHROPIC_API_KEY", "CORTEX_LLM_API_KEY")
	_ = v.BindEnv("llm.maxTokens", "CORTEX_LLM_MAX_TOKENS")
	_ = v.BindEnv("storage.sqlitePath", "CORTEX_STORAGE_SQLITE_PATH")
	_ = v.BindEnv("supervision.checkInterval", "CORTEX_SUPERVISION_CHECK_INTERVAL")
	_ = v.BindEnv("supervision.maxRetries", "CORTEX_SUPERVISION_MAX_RETRIES")
	_ = v.BindEnv("supervision.alertTarget", "CORTEX_SUPERVISION_ALERT_TARGET")
	_ = v.BindEnv("supervision.escalationTarget", "CORTEX_SUPERVISION_ESCALATION_TARGET")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/cortex/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// In development mode (default), most fields are optional.
func validate(cfg *Config) error {
	var errs []string

	// Storage validation
	switch strings.ToLower(cfg.Storage.Driver) {
	case StorageDriverMemory, StorageDriverSQLite, StorageDriverPostgres:
	default:
		errs = append(errs, "storage.driver must be one of: memory, sqlite, postgres")
	}
	if strings.EqualFold(cfg.Storage.Driver, StorageDriverSQLite) && cfg.Storage.SQLitePath == "" {
		errs = append(errs, "storage.sqlitePath is required when storage.driver is sqlite")
	}

	// Database validation - only when the postgres driver is selected
	if strings.EqualFold(cfg.Storage.Driver, StorageDriverPostgres) {
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required when storage.driver is postgres")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required when storage.driver is postgres")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required when storage.driver is postgres")
		}
	}

	// NATS validation - optional (uses the in-memory bus if not set)
	// No validation needed - empty URL means in-memory

	// Supervision validation
	if cfg.Supervision.CheckInterval <= 0 {
		errs = append(errs, "supervision.checkInterval must be positive")
	}
	if cfg.Supervision.MaxRetries < 0 {
		errs = append(errs, "supervision.maxRetries must not be negative")
	}
	if cfg.Supervision.AlertTarget == "" {
		errs = append(errs, "supervision.alertTarget is required")
	}
	if cfg.Supervision.EscalationTarget == "" {
		errs = append(errs, "supervision.escalationTarget is required")
	}

	// LLM validation
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "cli", "anthropic":
	default:
		errs = append(errs, "llm.provider must be one of: cli, anthropic")
	}
	if strings.EqualFold(cfg.LLM.Provider, "cli") && cfg.LLM.Command == "" {
		errs = append(errs, "llm.command is required when llm.provider is cli")
	}
	if cfg.LLM.Timeout <= 0 {
		errs = append(errs, "llm.timeout must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
