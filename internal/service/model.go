package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cxr-association-engine/internal/dataset"
	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/metrics"
	"github.com/cxr-association-engine/internal/mining"
	"github.com/cxr-association-engine/internal/query"
	"github.com/cxr-association-engine/internal/rulestore"
)

// FeatureSuffix is appended to the artifact name of the feature rule store.
const FeatureSuffix = "_features"

// Options configures a ModelService.
type Options struct {
	Store        domain.ArtifactStore
	ArtifactName string
	Source       domain.TransactionSource
	Params       domain.MiningParams
	Workers      int
	Query        domain.QueryConfig
	Predictor    domain.ConditionPredictor
	Metrics      *metrics.Metrics
}

// ModelService owns the live rule store. It loads the persisted artifact at startup,
// retrains on demand and answers queries against whichever snapshot is current.
type ModelService struct {
	logger    *logrus.Logger
	store     domain.ArtifactStore
	name      string
	source    domain.TransactionSource
	params    domain.MiningParams
	predictor domain.ConditionPredictor
	metrics   *metrics.Metrics

	miner   *mining.Miner
	engine  *query.Engine
	queries *query.CachedEngine
	holder  *rulestore.Holder

	// retrain serializes retrains; capacity one.
	retrain chan struct{}
}

// NewModelService creates a model service serving an empty snapshot until Load or
// Retrain installs a real one.
func NewModelService(opts Options, logger *logrus.Logger) (*ModelService, error) {
	if logger == nil {
		logger = logrus.New()
	}
	name := opts.ArtifactName
	if name == "" {
		name = "rule_store"
	}
	if opts.Source == nil {
		opts.Source = dataset.DefaultSource()
	}

	engine := query.NewEngine(opts.Query, logger)
	cached, err := query.NewCachedEngine(engine, opts.Query.CacheSize, opts.Metrics)
	if err != nil {
		return nil, err
	}

	s := &ModelService{
		logger:    logger,
		store:     opts.Store,
		name:      name,
		source:    opts.Source,
		params:    opts.Params,
		predictor: opts.Predictor,
		metrics:   opts.Metrics,
		miner:     mining.NewMiner(logger, opts.Workers),
		engine:    engine,
		queries:   cached,
		holder:    rulestore.NewHolder(nil, domain.SourceDegraded),
		retrain:   make(chan struct{}, 1),
	}
	return s, nil
}

// Load installs the persisted rule store. A missing or unreadable artifact falls back
// to mining the bundled dataset, and if that fails too the service keeps serving an
// empty snapshot. Only an inconsistent artifact is returned as an error.
func (s *ModelService) Load(ctx context.Context) (domain.ModelInfo, error) {
	snapshot, err := s.loadArtifact(ctx, s.name)
	if err == nil {
		s.install(snapshot, domain.SourceArtifact)
		s.logger.WithFields(logrus.Fields{
			"location":    s.location(s.name),
			"snapshot_id": snapshot.ID(),
			"rules":       snapshot.NumRules(),
		}).Info("Loaded rule store")
		return s.Info(), nil
	}

	var inconsistent *domain.ModelInconsistencyError
	if errors.As(err, &inconsistent) {
		s.logger.WithError(err).Error("Rule store artifact is inconsistent")
		return s.Info(), err
	}

	s.logger.WithError(err).Warn("Rule store unavailable, mining bundled dataset")
	result, mineErr := s.miner.Mine(ctx, dataset.DefaultTransactions(), dataset.DefaultParams())
	if mineErr != nil {
		s.logger.WithError(mineErr).Error("Fallback mining failed, serving without association rules")
		s.install(rulestore.Empty(), domain.SourceDegraded)
		return s.Info(), nil
	}
	s.metrics.ObserveMining(result.Duration)
	s.install(rulestore.FromResult(result), domain.SourceFallback)
	return s.Info(), nil
}

func (s *ModelService) loadArtifact(ctx context.Context, name string) (*rulestore.Snapshot, error) {
	location := s.location(name)
	if s.store == nil {
		return nil, domain.NewModelLoadError(location, fmt.Errorf("no artifact store configured"))
	}
	data, err := s.store.Load(ctx, name)
	if err != nil {
		return nil, domain.NewModelLoadError(location, err)
	}
	return rulestore.Decode(data, location)
}

func (s *ModelService) location(name string) string {
	if s.store == nil {
		return name
	}
	return s.store.Location(name)
}

// Retrain mines a new rule store from source (the configured source when nil),
// persists it and then publishes it. Queries keep using the previous snapshot until
// the swap. Retrains run one at a time; a caller whose context ends while waiting
// gets domain.ErrRetrainBusy.
func (s *ModelService) Retrain(ctx context.Context, source domain.TransactionSource, params domain.MiningParams) (*domain.TrainingReport, error) {
	// select picks randomly among ready cases
	if err := ctx.Err(); err != nil {
		s.metrics.IncRetrain("canceled")
		return nil, err
	}
	select {
	case s.retrain <- struct{}{}:
	case <-ctx.Done():
		s.metrics.IncRetrain(domain.ErrRetrainInProgress)
		return nil, fmt.Errorf("%w: %v", domain.ErrRetrainBusy, ctx.Err())
	}
	defer func() { <-s.retrain }()

	report, snapshot, err := s.mine(ctx, source, params)
	if err != nil {
		s.metrics.IncRetrain(domain.ErrorCode(err))
		return nil, err
	}
	if err := s.save(ctx, s.name, snapshot); err != nil {
		s.metrics.IncRetrain(domain.ErrorCode(err))
		return nil, err
	}

	prev := s.install(snapshot, domain.SourceRetrain)
	s.queries.Purge()
	s.metrics.IncRetrain("ok")

	s.logger.WithFields(logrus.Fields{
		"snapshot_id":  snapshot.ID(),
		"previous_id":  prev.ID(),
		"source":       sourceName(source, s.source),
		"rules":        report.Rules,
		"itemsets":     report.Itemsets,
		"duration_ms":  report.Duration.Milliseconds(),
		"transactions": report.Transactions,
	}).Info("Rule store retrained")
	return report, nil
}

// TrainFeatures mines the image-feature rule store from source and saves it next to
// the main artifact. The served snapshot is not touched.
func (s *ModelService) TrainFeatures(ctx context.Context, source domain.TransactionSource) (*domain.TrainingReport, error) {
	if source == nil {
		source = s.source
	}
	transactions, err := source.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions from %s: %w", source.Name(), err)
	}
	features := dataset.NewStaticSource(source.Name()+"+features", dataset.FeatureTransactions(transactions))

	report, snapshot, err := s.mine(ctx, features, dataset.FeatureParams())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, s.name+FeatureSuffix, snapshot); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ModelService) mine(ctx context.Context, source domain.TransactionSource, params domain.MiningParams) (*domain.TrainingReport, *rulestore.Snapshot, error) {
	if source == nil {
		source = s.source
	}
	if params == (domain.MiningParams{}) {
		params = s.params
	}

	transactions, err := source.Transactions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read transactions from %s: %w", source.Name(), err)
	}
	result, err := s.miner.Mine(ctx, transactions, params)
	if err != nil {
		return nil, nil, err
	}
	s.metrics.ObserveMining(result.Duration)

	snapshot := rulestore.FromResult(result)
	report := &domain.TrainingReport{
		SnapshotID:   snapshot.ID(),
		Transactions: result.Transactions,
		Items:        len(result.Universe),
		Itemsets:     len(result.Itemsets),
		Rules:        len(result.Rules),
		Duration:     result.Duration,
		Params:       result.Params,
	}
	return report, snapshot, nil
}

func (s *ModelService) save(ctx context.Context, name string, snapshot *rulestore.Snapshot) error {
	if s.store == nil {
		return nil
	}
	data, err := rulestore.Encode(snapshot)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, name, data); err != nil {
		return &domain.ArtifactError{Location: s.store.Location(name), Err: err}
	}
	return nil
}

func (s *ModelService) install(snapshot *rulestore.Snapshot, source domain.ModelSource) *rulestore.Snapshot {
	prev := s.holder.Swap(snapshot, source)
	s.metrics.SetModel(s.holder.Info())
	return prev
}

// Query applies the current rule store to the observed findings.
func (s *ModelService) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := s.queries.Query(s.holder.Current(), req)
	if err != nil {
		s.metrics.IncQuery(domain.ErrorCode(err))
		return nil, err
	}
	s.metrics.IncQuery("ok")
	return result, nil
}

// Diagnose asks the condition predictor for the findings in image and queries the
// rule store with them.
func (s *ModelService) Diagnose(ctx context.Context, image []byte, contentType string, severe []string) (*domain.QueryResult, error) {
	if s.predictor == nil {
		return nil, fmt.Errorf("%w: no predictor configured", domain.ErrPredictorUnavailable)
	}
	start := time.Now()
	observed, err := s.predictor.PredictConditions(ctx, image, contentType)
	if err != nil {
		s.metrics.IncQuery(domain.ErrorCode(err))
		return nil, fmt.Errorf("condition prediction failed: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"conditions":  observed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Predictor returned conditions")

	if len(observed) == 0 {
		s.metrics.IncQuery(domain.ErrInvalidInput)
		return nil, &domain.QueryError{Message: "predictor reported no findings"}
	}
	return s.Query(ctx, domain.QueryRequest{Observed: observed, Severe: severe})
}

// Info summarises the rule store being served.
func (s *ModelService) Info() domain.ModelInfo {
	return s.holder.Info()
}

// Snapshot returns the rule store being served.
func (s *ModelService) Snapshot() *rulestore.Snapshot {
	return s.holder.Current()
}

// Rules returns up to limit rules (all when limit <= 0) with confidence of at least
// minConfidence, in store order.
func (s *ModelService) Rules(limit int, minConfidence float64) []domain.Rule {
	all := s.holder.Current().Rules()
	out := make([]domain.Rule, 0, len(all))
	for _, r := range all {
		if r.Confidence < minConfidence {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Itemsets returns the frequent itemsets with at least minSize items, ordered by
// descending support then signature.
func (s *ModelService) Itemsets(minSize int) []domain.Itemset {
	all := s.holder.Current().Itemsets()
	out := make([]domain.Itemset, 0, len(all))
	for _, set := range all {
		if set.Len() >= minSize {
			out = append(out, set)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Support != out[j].Support {
			return out[i].Support > out[j].Support
		}
		return out[i].Signature() < out[j].Signature()
	})
	return out
}

// SevereConditions returns the configured severe condition list.
func (s *ModelService) SevereConditions() []domain.Item {
	return s.engine.SevereConditions()
}

// Close releases the artifact store.
func (s *ModelService) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func sourceName(source, fallback domain.TransactionSource) string {
	if source == nil {
		source = fallback
	}
	return source.Name()
}
