package dataset

import (
	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/mining"
)

// Mining parameters for the feature rule store.
const (
	FeatureMinSupport   = 0.05
	FeatureMinThreshold = 0.4
)

type featureRule struct {
	triggers []domain.Item
	features []domain.Item
}

// featureRules lists, in a fixed order, the image-feature tokens simulated for a case
// containing any of the trigger findings.
var featureRules = []featureRule{
	{triggers: []domain.Item{"Pneumonia", "Consolidation"}, features: []domain.Item{"low_brightness", "high_contrast"}},
	{triggers: []domain.Item{"Cardiomegaly"}, features: []domain.Item{"high_edge_density", "low_symmetry"}},
	{triggers: []domain.Item{"Mass", "Nodule"}, features: []domain.Item{"very_high_contrast", "medium_brightness"}},
	{triggers: []domain.Item{"Pneumothorax"}, features: []domain.Item{"very_high_edge_density", "high_brightness"}},
	{triggers: []domain.Item{mining.DefaultNoFindingLabel}, features: []domain.Item{"normal_brightness", "normal_contrast"}},
}

// FeatureTransactions pairs findings with simulated image-feature tokens. Every
// feature implied by a transaction yields one output transaction made of the
// findings plus that feature; transactions implying no feature are dropped.
func FeatureTransactions(transactions []domain.Transaction) []domain.Transaction {
	var out []domain.Transaction
	for _, tx := range transactions {
		for _, rule := range featureRules {
			if !containsAny(tx, rule.triggers) {
				continue
			}
			for _, feature := range rule.features {
				labels := make([]string, 0, len(tx)+1)
				for _, item := range tx {
					labels = append(labels, string(item))
				}
				labels = append(labels, string(feature))
				out = append(out, domain.NewTransaction(labels...))
			}
		}
	}
	return out
}

// FeatureParams returns the mining parameters for feature transactions.
func FeatureParams() domain.MiningParams {
	return domain.MiningParams{
		MinSupport:   FeatureMinSupport,
		Metric:       domain.MetricConfidence,
		MinThreshold: FeatureMinThreshold,
	}
}

func containsAny(tx domain.Transaction, items []domain.Item) bool {
	for _, item := range items {
		if tx.Contains(item) {
			return true
		}
	}
	return false
}
