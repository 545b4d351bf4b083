package mining

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-association-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func TestMiner_Mine(t *testing.T) {
	miner := NewMiner(testLogger(), 2)

	result, err := miner.Mine(context.Background(), scenarioTransactions(), domain.MiningParams{
		MinSupport:   0.5,
		Metric:       domain.MetricConfidence,
		MinThreshold: 0.6,
	})

	require.NoError(t, err)
	assert.Equal(t, 4, result.Transactions)
	assert.Equal(t, []domain.Item{"A", "B", "C"}, result.Universe)
	assert.Len(t, result.Itemsets, 5)
	assert.Len(t, result.Rules, 4)
	assert.Equal(t, 0.5, result.Params.MinSupport)
}

func TestMiner_NoFrequentPatterns(t *testing.T) {
	miner := NewMiner(testLogger(), 1)

	result, err := miner.Mine(context.Background(), scenarioTransactions(), domain.MiningParams{
		MinSupport:   0.99,
		Metric:       domain.MetricConfidence,
		MinThreshold: 0.6,
	})

	assert.Nil(t, result)
	var noPatterns *domain.NoFrequentPatternsError
	require.ErrorAs(t, err, &noPatterns)
	assert.Equal(t, 0.99, noPatterns.MinSupport)
	assert.Equal(t, 4, noPatterns.Transactions)
}

func TestMiner_EmptyTransactions(t *testing.T) {
	miner := NewMiner(testLogger(), 1)

	_, err := miner.Mine(context.Background(), nil, domain.MiningParams{
		MinSupport: 0.1,
		Metric:     domain.MetricConfidence,
	})

	var dataErr *domain.DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestMiner_InvalidParams(t *testing.T) {
	miner := NewMiner(nil, 1)

	_, err := miner.Mine(context.Background(), scenarioTransactions(), domain.MiningParams{
		MinSupport: 0.5,
		Metric:     "accuracy",
	})

	var dataErr *domain.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "metric", dataErr.Field)
}

func TestMiner_Idempotent(t *testing.T) {
	miner := NewMiner(testLogger(), 4)
	transactions := randomTransactions(42, 1000, 14)
	params := domain.MiningParams{MinSupport: 0.01, Metric: domain.MetricConfidence, MinThreshold: 0.3}

	first, err := miner.Mine(context.Background(), transactions, params)
	require.NoError(t, err)
	second, err := miner.Mine(context.Background(), transactions, params)
	require.NoError(t, err)

	assert.Equal(t, first.Itemsets, second.Itemsets)
	assert.Equal(t, first.Rules, second.Rules)
}
