package dataset

import (
	"context"

	"github.com/cxr-association-engine/internal/domain"
)

// Mining parameters for the bundled dataset. It is tiny, so a much higher support
// threshold than the production default still yields rules.
const (
	DefaultMinSupport   = 0.1
	DefaultMinThreshold = 0.3
)

var defaultRecords = [][]string{
	{"Pneumonia", "Consolidation", "Pleural_Effusion", "Fever"},
	{"Cardiomegaly", "Edema", "Heart_Failure", "Atelectasis"},
	{"Mass", "Nodule", "Lung_Cancer", "Atelectasis"},
	{"Pneumothorax", "Atelectasis", "Respiratory_Distress"},
	{"Consolidation", "Pneumonia", "Infiltration"},
	{"Pleural_Effusion", "Heart_Failure", "Edema"},
	{"Atelectasis", "Pneumonia", "Consolidation"},
	{"Fibrosis", "Emphysema", "COPD"},
	{"Emphysema", "COPD", "Respiratory_Failure"},
	{"Edema", "Heart_Failure", "Cardiomegaly"},
	{"No_Finding", "Normal", "Healthy"},
}

// DefaultTransactions returns the bundled dataset used when no rule store artifact
// can be loaded.
func DefaultTransactions() []domain.Transaction {
	out := make([]domain.Transaction, len(defaultRecords))
	for i, record := range defaultRecords {
		out[i] = domain.NewTransaction(record...)
	}
	return out
}

// DefaultParams returns the mining parameters for DefaultTransactions.
func DefaultParams() domain.MiningParams {
	return domain.MiningParams{
		MinSupport:   DefaultMinSupport,
		Metric:       domain.MetricConfidence,
		MinThreshold: DefaultMinThreshold,
	}
}

// StaticSource serves a fixed set of transactions.
type StaticSource struct {
	name         string
	transactions []domain.Transaction
}

// NewStaticSource wraps transactions as a source.
func NewStaticSource(name string, transactions []domain.Transaction) *StaticSource {
	return &StaticSource{name: name, transactions: transactions}
}

// DefaultSource serves DefaultTransactions.
func DefaultSource() *StaticSource {
	return NewStaticSource("bundled", DefaultTransactions())
}

// Name implements domain.TransactionSource.
func (s *StaticSource) Name() string { return s.name }

// Transactions implements domain.TransactionSource.
func (s *StaticSource) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out, nil
}
