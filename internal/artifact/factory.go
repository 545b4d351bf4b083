package artifact

import (
	"context"
	"fmt"

	"github.com/cxr-association-engine/internal/database"
	"github.com/cxr-association-engine/internal/domain"
)

// Backends accepted by artifact.backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

// DefaultName is the artifact name used when none is configured.
const DefaultName = "rule_store"

// Open builds the artifact store selected by cfg.Artifact.Backend.
func Open(ctx context.Context, cfg *domain.Config) (domain.ArtifactStore, error) {
	a := cfg.Artifact
	switch a.Backend {
	case "", BackendFile:
		dir := a.Path
		if dir == "" {
			dir = "./data/artifacts"
		}
		return NewFileStore(dir)
	case BackendSQLite:
		path := a.SQLitePath
		if path == "" {
			path = "./data/artifacts.db"
		}
		return NewSQLiteStore(path)
	case BackendPostgres:
		return NewPostgresStoreFromURL(database.ConfigFrom(cfg.Database).URL())
	case BackendRedis:
		return NewRedisStore(ctx, a.RedisURL, a.RedisTTL)
	case BackendS3:
		return NewS3Store(ctx, S3Config{
			Bucket:    a.S3Bucket,
			Region:    a.S3Region,
			Endpoint:  a.S3Endpoint,
			Prefix:    a.S3Prefix,
			PathStyle: a.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported artifact backend %q", a.Backend)
	}
}
