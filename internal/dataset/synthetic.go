package dataset

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/mining"
)

const (
	DefaultSyntheticRecords = 5000
	DefaultSyntheticNormal  = 1000

	associatedChance  = 0.7
	randomExtraChance = 0.3
)

// cooccurrence lists, per primary finding, the findings that commonly accompany it.
var cooccurrence = map[domain.Item][]domain.Item{
	"Pneumonia":          {"Consolidation", "Pleural_Effusion", "Infiltration"},
	"Cardiomegaly":       {"Edema", "Pleural_Effusion", "Atelectasis"},
	"Atelectasis":        {"Pneumonia", "Pleural_Effusion"},
	"Mass":               {"Nodule", "Atelectasis"},
	"Nodule":             {"Mass", "Fibrosis"},
	"Pneumothorax":       {"Atelectasis"},
	"Consolidation":      {"Pneumonia", "Infiltration"},
	"Infiltration":       {"Pneumonia", "Edema"},
	"Effusion":           {"Cardiomegaly", "Pneumonia", "Edema"},
	"Emphysema":          {"Fibrosis", "Atelectasis"},
	"Fibrosis":           {"Emphysema", "Pleural_Thickening"},
	"Pleural_Thickening": {"Fibrosis", "Effusion"},
}

// SyntheticSource generates plausible multi-finding cases from the co-occurrence
// table. The same seed always yields the same transactions.
type SyntheticSource struct {
	records int
	normal  int
	seed    int64
}

// NewSyntheticSource creates a generator producing records findings cases plus
// normal "No Finding" cases.
func NewSyntheticSource(records, normal int, seed int64) *SyntheticSource {
	if records <= 0 {
		records = DefaultSyntheticRecords
	}
	if normal < 0 {
		normal = DefaultSyntheticNormal
	}
	return &SyntheticSource{records: records, normal: normal, seed: seed}
}

// Name implements domain.TransactionSource.
func (s *SyntheticSource) Name() string {
	return fmt.Sprintf("synthetic:%d+%d@%d", s.records, s.normal, s.seed)
}

// Transactions implements domain.TransactionSource.
func (s *SyntheticSource) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	rng := rand.New(rand.NewSource(s.seed))
	primaries := Conditions()

	transactions := make([]domain.Transaction, 0, s.records+s.normal)
	for i := 0; i < s.records; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		primary := primaries[rng.Intn(len(primaries))]
		labels := []domain.Item{primary}

		if rng.Float64() < associatedChance {
			related := cooccurrence[primary]
			n := 1 + rng.Intn(2)
			if n > len(related) {
				n = len(related)
			}
			for _, j := range rng.Perm(len(related))[:n] {
				labels = append(labels, related[j])
			}
		}

		if rng.Float64() < randomExtraChance {
			labels = append(labels, primaries[rng.Intn(len(primaries))])
		}

		transactions = append(transactions, transaction(labels))
	}

	for i := 0; i < s.normal; i++ {
		transactions = append(transactions, domain.Transaction{mining.DefaultNoFindingLabel})
	}
	return transactions, nil
}

// Conditions returns the primary findings the generator draws from, sorted.
func Conditions() []domain.Item {
	out := make([]domain.Item, 0, len(cooccurrence))
	for c := range cooccurrence {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func transaction(items []domain.Item) domain.Transaction {
	labels := make([]string, len(items))
	for i, item := range items {
		labels[i] = string(item)
	}
	return domain.NewTransaction(labels...)
}
