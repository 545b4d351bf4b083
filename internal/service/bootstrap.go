package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cxr-association-engine/internal/artifact"
	"github.com/cxr-association-engine/internal/database"
	"github.com/cxr-association-engine/internal/dataset"
	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/metrics"
	"github.com/cxr-association-engine/pkg/external"
)

// Components are the long-lived dependencies a binary builds from configuration.
type Components struct {
	Service *ModelService
	Metrics *metrics.Metrics
	DB      *database.DB
}

// Build wires the model service from configuration. A postgres connection is only
// opened, and migrated, when the dataset source or artifact backend needs one.
// The returned service has not loaded a model yet.
func Build(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*Components, error) {
	c := &Components{Metrics: metrics.New()}

	if cfg.Dataset.Source == dataset.SourcePostgres || cfg.Artifact.Backend == artifact.BackendPostgres {
		dbConfig := database.ConfigFrom(cfg.Database)

		runner, err := database.NewMigrationRunner(dbConfig.URL(), logger)
		if err != nil {
			return nil, err
		}
		err = runner.Up(ctx)
		if closeErr := runner.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close migration runner")
		}
		if err != nil {
			return nil, err
		}

		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			return nil, err
		}
		c.DB = db
	}

	source, err := dataset.NewSource(cfg.Dataset, c.poolOrNil())
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	store, err := artifact.Open(ctx, cfg)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	var predictor domain.ConditionPredictor
	if cfg.Predictor.Enabled {
		predictor = external.NewPredictorClientFromDomain(cfg.Predictor, logger)
	}

	svc, err := NewModelService(Options{
		Store:        store,
		ArtifactName: cfg.Artifact.Name,
		Source:       source,
		Params:       cfg.Mining.Params(),
		Workers:      cfg.Mining.Workers,
		Query:        cfg.Query,
		Predictor:    predictor,
		Metrics:      c.Metrics,
	}, logger)
	if err != nil {
		_ = store.Close()
		_ = c.Close()
		return nil, err
	}
	c.Service = svc

	logger.WithFields(logrus.Fields{
		"dataset":   source.Name(),
		"artifact":  store.Location(svc.name),
		"predictor": cfg.Predictor.Enabled,
	}).Info("Model service configured")
	return c, nil
}

// Close releases the service's artifact store and the database pool.
func (c *Components) Close() error {
	var err error
	if c.Service != nil {
		err = c.Service.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
	return err
}

func (c *Components) poolOrNil() *pgxpool.Pool {
	if c.DB == nil {
		return nil
	}
	return c.DB.Pool
}
