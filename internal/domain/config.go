package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Mining      MiningConfig    `mapstructure:"mining"`
	Query       QueryConfig     `mapstructure:"query"`
	Dataset     DatasetConfig   `mapstructure:"dataset"`
	Artifact    ArtifactConfig  `mapstructure:"artifact"`
	Predictor   PredictorConfig `mapstructure:"predictor"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	MCP         MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	AdminToken     string        `mapstructure:"admin_token"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsTable string        `mapstructure:"migrations_table"`
}

// MiningConfig represents Apriori and rule generation parameters
type MiningConfig struct {
	MinSupport   float64 `mapstructure:"min_support"`
	Metric       string  `mapstructure:"metric"`
	MinThreshold float64 `mapstructure:"min_threshold"`
	MaxLen       int     `mapstructure:"max_len"`
	Workers      int     `mapstructure:"workers"`
}

// Params converts the configuration into validated-shape mining parameters
func (c MiningConfig) Params() MiningParams {
	return MiningParams{
		MinSupport:   c.MinSupport,
		Metric:       Metric(c.Metric),
		MinThreshold: c.MinThreshold,
		MaxLen:       c.MaxLen,
	}
}

// QueryConfig represents rule application settings
type QueryConfig struct {
	SevereConditions   []string `mapstructure:"severe_conditions"`
	MaxResultsPerGroup int      `mapstructure:"max_results_per_group"`
	CacheSize          int      `mapstructure:"cache_size"`
}

// DatasetConfig selects where training transactions come from
type DatasetConfig struct {
	Source           string `mapstructure:"source"` // "synthetic", "csv", "postgres"
	CSVPath          string `mapstructure:"csv_path"`
	LabelColumn      string `mapstructure:"label_column"`
	Delimiter        string `mapstructure:"delimiter"`
	NoFindingLabel   string `mapstructure:"no_finding_label"`
	SyntheticRecords int    `mapstructure:"synthetic_records"`
	SyntheticNormal  int    `mapstructure:"synthetic_normal"`
	SyntheticSeed    int64  `mapstructure:"synthetic_seed"`
	PostgresTable    string `mapstructure:"postgres_table"`
}

// ArtifactConfig selects the rule store artifact backend
type ArtifactConfig struct {
	Backend    string        `mapstructure:"backend"` // "file", "sqlite", "postgres", "redis", "s3"
	Name       string        `mapstructure:"name"`
	Path       string        `mapstructure:"path"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	RedisURL   string        `mapstructure:"redis_url"`
	RedisTTL   time.Duration `mapstructure:"redis_ttl"`
	S3Bucket   string        `mapstructure:"s3_bucket"`
	S3Region   string        `mapstructure:"s3_region"`
	S3Endpoint string        `mapstructure:"s3_endpoint"`
	S3Prefix   string        `mapstructure:"s3_prefix"`
	PathStyle  bool          `mapstructure:"s3_path_style"`
}

// PredictorConfig represents the external condition predictor endpoint
type PredictorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    int           `mapstructure:"rate_limit"`
	MaxFailures  uint32        `mapstructure:"max_failures"`
	OpenInterval time.Duration `mapstructure:"open_interval"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
	TransportType string `mapstructure:"transport_type"` // "stdio"
}
