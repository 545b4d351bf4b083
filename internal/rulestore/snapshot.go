// Package rulestore holds the immutable, queryable snapshot of mined itemsets and
// association rules, its artifact encoding, and the holder that swaps snapshots
// atomically when a model is retrained.
package rulestore

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/mining"
)

// Snapshot is a read-only view of one mining run. It is never mutated after
// construction and may be shared by any number of concurrent readers.
type Snapshot struct {
	id           string
	createdAt    time.Time
	params       domain.MiningParams
	transactions int

	supports map[string]float64
	itemsets []domain.Itemset
	rules    []domain.Rule
	items    []domain.Item

	// index maps an item to the positions of rules whose antecedent contains it,
	// in ascending rule order.
	index map[domain.Item][]int
}

// FromResult builds a snapshot from a completed mining run.
func FromResult(result *mining.Result) *Snapshot {
	return newSnapshot(uuid.New().String(), time.Now().UTC(), result.Params, result.Transactions, result.Itemsets, result.Rules)
}

// Empty returns a snapshot with no itemsets and no rules. Queries against it only
// produce primary findings and static complications.
func Empty() *Snapshot {
	return newSnapshot(uuid.New().String(), time.Now().UTC(), domain.MiningParams{}, 0, nil, nil)
}

// New builds a snapshot from explicit itemsets and rules kept in the given order.
// Every rule must be backed by the itemset table.
func New(params domain.MiningParams, transactions int, itemsets []domain.Itemset, rules []domain.Rule) (*Snapshot, error) {
	if err := checkItems(itemsets, rules); err != nil {
		return nil, err
	}
	s := newSnapshot(uuid.New().String(), time.Now().UTC(), params, transactions, itemsets, rules)
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func checkItems(itemsets []domain.Itemset, rules []domain.Rule) error {
	for _, set := range itemsets {
		for _, item := range set.Items {
			if err := domain.CheckItem(item); err != nil {
				return err
			}
		}
	}
	for _, rule := range rules {
		for _, item := range append(append([]domain.Item{}, rule.Antecedent...), rule.Consequent...) {
			if err := domain.CheckItem(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func newSnapshot(id string, createdAt time.Time, params domain.MiningParams, transactions int, itemsets []domain.Itemset, rules []domain.Rule) *Snapshot {
	s := &Snapshot{
		id:           id,
		createdAt:    createdAt,
		params:       params,
		transactions: transactions,
		supports:     make(map[string]float64, len(itemsets)),
		itemsets:     make([]domain.Itemset, 0, len(itemsets)),
		rules:        make([]domain.Rule, len(rules)),
		index:        make(map[domain.Item][]int),
	}

	seen := make(map[domain.Item]struct{})
	for _, set := range itemsets {
		items := domain.SortItems(set.Items)
		s.supports[domain.Signature(items)] = set.Support
		s.itemsets = append(s.itemsets, domain.Itemset{Items: items, Support: set.Support})
		for _, item := range items {
			seen[item] = struct{}{}
		}
	}
	sort.SliceStable(s.itemsets, func(i, j int) bool {
		if s.itemsets[i].Len() != s.itemsets[j].Len() {
			return s.itemsets[i].Len() < s.itemsets[j].Len()
		}
		return s.itemsets[i].Signature() < s.itemsets[j].Signature()
	})
	for item := range seen {
		s.items = append(s.items, item)
	}
	sort.Slice(s.items, func(i, j int) bool { return s.items[i] < s.items[j] })

	copy(s.rules, rules)
	for pos, rule := range s.rules {
		for _, item := range rule.Antecedent {
			s.index[item] = append(s.index[item], pos)
		}
	}
	return s
}

// validate checks that every rule's antecedent, consequent and union are known
// frequent itemsets.
func (s *Snapshot) validate() error {
	for _, rule := range s.rules {
		antecedent := domain.Signature(domain.SortItems(rule.Antecedent))
		consequent := domain.Signature(domain.SortItems(rule.Consequent))
		union := domain.Signature(domain.SortItems(append(append([]domain.Item{}, rule.Antecedent...), rule.Consequent...)))
		for _, sig := range []string{antecedent, consequent} {
			if _, ok := s.supports[sig]; !ok {
				return &domain.ModelInconsistencyError{Itemset: union, Missing: sig}
			}
		}
		if _, ok := s.supports[union]; !ok {
			return &domain.ModelInconsistencyError{Itemset: union, Missing: union}
		}
	}
	return nil
}

// ID returns the unique identifier of the snapshot.
func (s *Snapshot) ID() string { return s.id }

// CreatedAt returns when the snapshot was mined.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Params returns the mining parameters that produced the snapshot.
func (s *Snapshot) Params() domain.MiningParams { return s.params }

// Transactions returns the number of transactions mined.
func (s *Snapshot) Transactions() int { return s.transactions }

// NumItemsets returns the number of frequent itemsets.
func (s *Snapshot) NumItemsets() int { return len(s.itemsets) }

// NumRules returns the number of association rules.
func (s *Snapshot) NumRules() int { return len(s.rules) }

// IsEmpty reports whether the snapshot holds no rules.
func (s *Snapshot) IsEmpty() bool { return len(s.rules) == 0 }

// Items returns the distinct items appearing in frequent itemsets.
func (s *Snapshot) Items() []domain.Item {
	out := make([]domain.Item, len(s.items))
	copy(out, s.items)
	return out
}

// Itemsets returns the frequent itemsets ordered by size, then signature.
func (s *Snapshot) Itemsets() []domain.Itemset {
	out := make([]domain.Itemset, len(s.itemsets))
	copy(out, s.itemsets)
	return out
}

// Rules returns every rule in store order.
func (s *Snapshot) Rules() []domain.Rule {
	out := make([]domain.Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Support returns the support of a frequent itemset.
func (s *Snapshot) Support(items ...domain.Item) (float64, bool) {
	support, ok := s.supports[domain.Signature(domain.SortItems(items))]
	return support, ok
}

// RulesWithAntecedent returns, in store order, the rules whose antecedent contains item.
func (s *Snapshot) RulesWithAntecedent(item domain.Item) []domain.Rule {
	positions := s.index[item]
	out := make([]domain.Rule, len(positions))
	for i, pos := range positions {
		out[i] = s.rules[pos]
	}
	return out
}

// Info summarises the snapshot.
func (s *Snapshot) Info(source domain.ModelSource) domain.ModelInfo {
	return domain.ModelInfo{
		SnapshotID:   s.id,
		CreatedAt:    s.createdAt,
		Source:       source,
		Params:       s.params,
		Transactions: s.transactions,
		Itemsets:     len(s.itemsets),
		Rules:        len(s.rules),
		Items:        len(s.items),
	}
}
