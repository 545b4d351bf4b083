package mining

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cxr-association-engine/internal/domain"
)

// Result is the output of one complete mining run.
type Result struct {
	Universe     []domain.Item
	Itemsets     []domain.Itemset
	Rules        []domain.Rule
	Transactions int
	Params       domain.MiningParams
	Duration     time.Duration
}

// Miner runs encode → Apriori → rule generation over a transaction set.
type Miner struct {
	logger  *logrus.Logger
	workers int
}

// NewMiner creates a new miner. workers bounds parallel support counting.
func NewMiner(logger *logrus.Logger, workers int) *Miner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Miner{
		logger:  logger,
		workers: workers,
	}
}

// Mine mines frequent itemsets and association rules. Finding no frequent itemset is
// reported as a NoFrequentPatternsError so callers can lower MinSupport and retry.
func (m *Miner) Mine(ctx context.Context, transactions []domain.Transaction, params domain.MiningParams) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	matrix, err := Encode(transactions)
	if err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{
		"transactions": matrix.NumTransactions(),
		"items":        len(matrix.Universe),
	}).Debug("Encoded transactions")

	itemsets, err := Apriori(ctx, matrix, MinerOptions{
		MinSupport: params.MinSupport,
		MaxLen:     params.MaxLen,
		Workers:    m.workers,
	})
	if err != nil {
		return nil, fmt.Errorf("mining frequent itemsets: %w", err)
	}
	if len(itemsets) == 0 {
		m.logger.WithFields(logrus.Fields{
			"transactions": matrix.NumTransactions(),
			"min_support":  params.MinSupport,
		}).Warn("No frequent itemsets found")
		return nil, &domain.NoFrequentPatternsError{
			MinSupport:   params.MinSupport,
			Transactions: matrix.NumTransactions(),
		}
	}

	rules, err := GenerateRules(itemsets, params.Metric, params.MinThreshold)
	if err != nil {
		return nil, fmt.Errorf("generating association rules: %w", err)
	}

	result := &Result{
		Universe:     matrix.Universe,
		Itemsets:     itemsets,
		Rules:        rules,
		Transactions: matrix.NumTransactions(),
		Params:       params,
		Duration:     time.Since(start),
	}

	m.logger.WithFields(logrus.Fields{
		"transactions":      result.Transactions,
		"items":             len(result.Universe),
		"frequent_itemsets": len(itemsets),
		"association_rules": len(rules),
		"min_support":       params.MinSupport,
		"metric":            params.Metric,
		"min_threshold":     params.MinThreshold,
		"duration_ms":       result.Duration.Milliseconds(),
	}).Info("Completed association rule mining")

	return result, nil
}
