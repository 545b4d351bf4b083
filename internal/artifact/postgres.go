package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore keeps artifacts in the rule_artifacts table created by the schema
// migrations.
type PostgresStore struct {
	db       *sql.DB
	location string
}

// NewPostgresStore wraps an open connection.
func NewPostgresStore(db *sql.DB, location string) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db, location: location}, nil
}

// NewPostgresStoreFromURL opens a connection pool for databaseURL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db, "postgres")
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Location implements domain.ArtifactStore.
func (s *PostgresStore) Location(name string) string {
	return fmt.Sprintf("%s/rule_artifacts/%s", s.location, name)
}

// Save implements domain.ArtifactStore. The latest save under a name wins.
func (s *PostgresStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_artifacts (name, data, size_bytes, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			data = EXCLUDED.data,
			size_bytes = EXCLUDED.size_bytes,
			updated_at = EXCLUDED.updated_at
	`, name, data, len(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// Load implements domain.ArtifactStore.
func (s *PostgresStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM rule_artifacts WHERE name = $1", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	return data, nil
}

// Close implements domain.ArtifactStore.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
