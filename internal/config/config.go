package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cxr-association-engine/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. CXR_MINING_MIN_SUPPORT
const EnvPrefix = "CXR"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager that searches the default
// config paths for config.yaml
func NewManager() (*Manager, error) {
	return NewManagerWithFile("")
}

// NewManagerWithFile creates a configuration manager reading the given file.
// An empty path falls back to the default search paths
func NewManagerWithFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cxr-association-engine/")
	}

	// Set environment variable prefix and enable automatic env binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.max_upload_bytes", 16<<20)
	v.SetDefault("server.admin_token", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "cxr_associations")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.migrations_table", "schema_migrations")

	// Mining defaults
	v.SetDefault("mining.min_support", 0.01)
	v.SetDefault("mining.metric", string(domain.MetricConfidence))
	v.SetDefault("mining.min_threshold", 0.3)
	v.SetDefault("mining.max_len", 0)
	v.SetDefault("mining.workers", 4)

	// Query defaults
	v.SetDefault("query.severe_conditions", []string{
		"Respiratory_Failure", "Heart_Failure", "Sepsis", "ARDS", "Pneumothorax", "Cardiac_Arrest",
	})
	v.SetDefault("query.max_results_per_group", 3)
	v.SetDefault("query.cache_size", 1024)

	// Dataset defaults
	v.SetDefault("dataset.source", "synthetic")
	v.SetDefault("dataset.csv_path", "")
	v.SetDefault("dataset.label_column", "Finding Labels")
	v.SetDefault("dataset.delimiter", "|")
	v.SetDefault("dataset.no_finding_label", "No Finding")
	v.SetDefault("dataset.synthetic_records", 5000)
	v.SetDefault("dataset.synthetic_normal", 1000)
	v.SetDefault("dataset.synthetic_seed", 42)
	v.SetDefault("dataset.postgres_table", "finding_records")

	// Artifact defaults
	v.SetDefault("artifact.backend", "file")
	v.SetDefault("artifact.name", "rule_store")
	v.SetDefault("artifact.path", "./data/artifacts")
	v.SetDefault("artifact.sqlite_path", "./data/artifacts.db")
	v.SetDefault("artifact.redis_url", "redis://localhost:6379/0")
	v.SetDefault("artifact.redis_ttl", "0s")
	v.SetDefault("artifact.s3_bucket", "")
	v.SetDefault("artifact.s3_region", "us-east-1")
	v.SetDefault("artifact.s3_endpoint", "")
	v.SetDefault("artifact.s3_prefix", "")
	v.SetDefault("artifact.s3_path_style", false)

	// Predictor defaults
	v.SetDefault("predictor.enabled", false)
	v.SetDefault("predictor.base_url", "http://localhost:8000")
	v.SetDefault("predictor.api_key", "")
	v.SetDefault("predictor.timeout", "30s")
	v.SetDefault("predictor.rate_limit", 5)
	v.SetDefault("predictor.max_failures", 5)
	v.SetDefault("predictor.open_interval", "60s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "cxr-association-engine")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.transport_type", "stdio")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetMiningConfig returns mining configuration
func (m *Manager) GetMiningConfig() *domain.MiningConfig {
	return &m.config.Mining
}

// GetQueryConfig returns query configuration
func (m *Manager) GetQueryConfig() *domain.QueryConfig {
	return &m.config.Query
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max_upload_bytes must be positive")
	}

	// Validate mining configuration
	if err := config.Mining.Params().Validate(); err != nil {
		return fmt.Errorf("invalid mining configuration: %w", err)
	}
	if config.Mining.Workers < 0 {
		return fmt.Errorf("mining workers must not be negative: %d", config.Mining.Workers)
	}

	// Validate query configuration
	if config.Query.MaxResultsPerGroup <= 0 {
		return fmt.Errorf("query max_results_per_group must be positive: %d", config.Query.MaxResultsPerGroup)
	}

	// Validate dataset configuration
	usesPostgres := false
	switch config.Dataset.Source {
	case "synthetic", "bundled":
	case "csv":
		if config.Dataset.CSVPath == "" {
			return fmt.Errorf("dataset csv_path is required for the csv source")
		}
	case "postgres":
		usesPostgres = true
	default:
		return fmt.Errorf("invalid dataset source: %s", config.Dataset.Source)
	}

	// Validate artifact configuration
	switch config.Artifact.Backend {
	case "file", "sqlite":
	case "postgres":
		usesPostgres = true
	case "redis":
		if config.Artifact.RedisURL == "" {
			return fmt.Errorf("artifact redis_url is required for the redis backend")
		}
	case "s3":
		if config.Artifact.S3Bucket == "" {
			return fmt.Errorf("artifact s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid artifact backend: %s", config.Artifact.Backend)
	}

	// Validate database configuration
	if usesPostgres {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	// Validate predictor configuration
	if config.Predictor.Enabled && config.Predictor.BaseURL == "" {
		return fmt.Errorf("predictor base_url is required when the predictor is enabled")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
