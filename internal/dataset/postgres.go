package dataset

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/mining"
)

const (
	DefaultPostgresTable  = "finding_records"
	DefaultPostgresColumn = "finding_labels"
)

// PostgresSource reads the multi-label column of a table through a pgx pool.
type PostgresSource struct {
	pool      *pgxpool.Pool
	table     string
	column    string
	delimiter string
	noFinding string
}

// NewPostgresSource creates a source over table.column. Empty names take the
// defaults created by the schema migrations.
func NewPostgresSource(pool *pgxpool.Pool, table, column, delimiter, noFinding string) *PostgresSource {
	if table == "" {
		table = DefaultPostgresTable
	}
	if column == "" {
		column = DefaultPostgresColumn
	}
	if delimiter == "" {
		delimiter = mining.DefaultDelimiter
	}
	if noFinding == "" {
		noFinding = mining.DefaultNoFindingLabel
	}
	return &PostgresSource{pool: pool, table: table, column: column, delimiter: delimiter, noFinding: noFinding}
}

// Name implements domain.TransactionSource.
func (s *PostgresSource) Name() string {
	return "postgres:" + s.table
}

// query builds the select statement with quoted identifiers.
func (s *PostgresSource) query() string {
	return fmt.Sprintf("SELECT COALESCE(%s, '') FROM %s ORDER BY 1",
		pgx.Identifier{s.column}.Sanitize(), pgx.Identifier{s.table}.Sanitize())
}

// Transactions implements domain.TransactionSource.
func (s *PostgresSource) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, s.query())
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.table, err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.table, err)
		}
		transactions = append(transactions, mining.ParseTransaction(field, s.delimiter, s.noFinding))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", s.table, err)
	}
	return transactions, nil
}
