package domain

import (
	"context"
)

// ArtifactStore persists serialized rule store artifacts by name.
// Load returns ErrArtifactNotFound (possibly wrapped) when nothing was saved under name.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	Location(name string) string
	Close() error
}

// TransactionSource yields the training transactions for one mining run.
type TransactionSource interface {
	Transactions(ctx context.Context) ([]Transaction, error)
	Name() string
}

// ConditionPredictor turns an image into observed finding labels. Implementations
// live outside the core (image heuristics, deep classifiers, vision-language models).
type ConditionPredictor interface {
	PredictConditions(ctx context.Context, image []byte, contentType string) ([]string, error)
}

// ConfigManager defines the interface for configuration management.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetDatabaseConfig() *DatabaseConfig
	GetMiningConfig() *MiningConfig
	GetQueryConfig() *QueryConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
