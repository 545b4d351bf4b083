package dataset

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cxr-association-engine/internal/domain"
)

// Source kinds accepted by dataset.source.
const (
	SourceSynthetic = "synthetic"
	SourceCSV       = "csv"
	SourcePostgres  = "postgres"
	SourceBundled   = "bundled"
)

// NewSource builds the transaction source selected by cfg. pool is only required
// for the postgres source.
func NewSource(cfg domain.DatasetConfig, pool *pgxpool.Pool) (domain.TransactionSource, error) {
	switch cfg.Source {
	case "", SourceSynthetic:
		return NewSyntheticSource(cfg.SyntheticRecords, cfg.SyntheticNormal, cfg.SyntheticSeed), nil
	case SourceCSV:
		if cfg.CSVPath == "" {
			return nil, domain.NewDataError("dataset.csv_path", "required for the csv source")
		}
		return NewCSVSource(cfg.CSVPath, cfg.LabelColumn, cfg.Delimiter, cfg.NoFindingLabel), nil
	case SourcePostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres dataset source requires a database connection")
		}
		return NewPostgresSource(pool, cfg.PostgresTable, "", cfg.Delimiter, cfg.NoFindingLabel), nil
	case SourceBundled:
		return DefaultSource(), nil
	default:
		return nil, domain.NewDataError("dataset.source", fmt.Sprintf("unsupported dataset source %q", cfg.Source))
	}
}
