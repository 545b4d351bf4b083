// Package domain contains the core entities for mining co-occurrence patterns between
// chest X-ray findings and applying the resulting association rules.
//
// Items are opaque finding labels (for example "Pneumonia" or "Pleural_Effusion").
// Transactions group the findings recorded for one patient case, itemsets carry
// their support over a transaction set, and rules relate two disjoint itemsets.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Item is a single categorical finding label. Equality is exact string identity.
type Item string

// SignatureSeparator joins the sorted items of an itemset into its signature.
const SignatureSeparator = "|"

// CheckItem rejects labels that cannot round-trip through a signature.
func CheckItem(item Item) error {
	if strings.Contains(string(item), SignatureSeparator) {
		return NewDataError("item", fmt.Sprintf("label %q contains the reserved separator %q", item, SignatureSeparator))
	}
	return nil
}

// Transaction is the set of distinct findings recorded for one case.
// Items are kept sorted so that two transactions with the same findings compare equal.
type Transaction []Item

// NewTransaction trims every label, drops blanks and collapses duplicates.
func NewTransaction(labels ...string) Transaction {
	seen := make(map[Item]struct{}, len(labels))
	items := make(Transaction, 0, len(labels))
	for _, label := range labels {
		item := Item(strings.TrimSpace(label))
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

// Contains reports whether the transaction includes item.
func (t Transaction) Contains(item Item) bool {
	i := sort.Search(len(t), func(i int) bool { return t[i] >= item })
	return i < len(t) && t[i] == item
}

// Itemset is a sorted set of distinct items together with its support.
type Itemset struct {
	Items   []Item  `json:"items"`
	Support float64 `json:"support"`
}

// Signature returns the canonical key of the itemset.
func (s Itemset) Signature() string {
	return Signature(s.Items)
}

// Len returns the number of items in the itemset.
func (s Itemset) Len() int {
	return len(s.Items)
}

// Signature builds the canonical key for a set of items. Callers must pass sorted items;
// SortItems does that for arbitrary input.
func Signature(items []Item) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = string(item)
	}
	return strings.Join(parts, SignatureSeparator)
}

// ParseSignature splits a signature back into its items.
func ParseSignature(sig string) []Item {
	if sig == "" {
		return nil
	}
	parts := strings.Split(sig, SignatureSeparator)
	items := make([]Item, len(parts))
	for i, p := range parts {
		items[i] = Item(p)
	}
	return items
}

// SortItems returns a sorted copy of items.
func SortItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Metric selects the rule measure compared against the minimum threshold.
type Metric string

const (
	MetricConfidence Metric = "confidence"
	MetricLift       Metric = "lift"
	MetricSupport    Metric = "support"
	MetricLeverage   Metric = "leverage"
)

// IsValid reports whether m is a supported rule metric.
func (m Metric) IsValid() bool {
	switch m {
	case MetricConfidence, MetricLift, MetricSupport, MetricLeverage:
		return true
	default:
		return false
	}
}

// ParseMetric converts a configuration string into a Metric.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", NewDataError("metric", fmt.Sprintf("unsupported rule metric %q", s))
	}
	return m, nil
}

// Rule is a directional association antecedent → consequent between two disjoint
// frequent itemsets whose union is itself frequent.
type Rule struct {
	Antecedent        []Item  `json:"antecedent"`
	Consequent        []Item  `json:"consequent"`
	AntecedentSupport float64 `json:"antecedent_support"`
	ConsequentSupport float64 `json:"consequent_support"`
	Support           float64 `json:"support"`
	Confidence        float64 `json:"confidence"`
	Lift              float64 `json:"lift"`
	Leverage          float64 `json:"leverage"`
}

// Value returns the rule's measure for metric.
func (r Rule) Value(metric Metric) float64 {
	switch metric {
	case MetricLift:
		return r.Lift
	case MetricSupport:
		return r.Support
	case MetricLeverage:
		return r.Leverage
	default:
		return r.Confidence
	}
}

// HasAntecedent reports whether item is one of the rule's antecedent items.
func (r Rule) HasAntecedent(item Item) bool {
	for _, a := range r.Antecedent {
		if a == item {
			return true
		}
	}
	return false
}

// String renders the rule as "A, B → C".
func (r Rule) String() string {
	return fmt.Sprintf("%s → %s", joinItems(r.Antecedent), joinItems(r.Consequent))
}

func joinItems(items []Item) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = string(item)
	}
	return strings.Join(parts, ", ")
}

// MiningParams records how a rule store was produced.
type MiningParams struct {
	MinSupport   float64 `json:"min_support" mapstructure:"min_support"`
	Metric       Metric  `json:"metric" mapstructure:"metric"`
	MinThreshold float64 `json:"min_threshold" mapstructure:"min_threshold"`
	MaxLen       int     `json:"max_len,omitempty" mapstructure:"max_len"`
}

// Validate checks the parameter ranges accepted by the miner and rule generator.
func (p MiningParams) Validate() error {
	if p.MinSupport <= 0 || p.MinSupport > 1 {
		return NewDataError("min_support", fmt.Sprintf("must be in (0,1], got %v", p.MinSupport))
	}
	if !p.Metric.IsValid() {
		return NewDataError("metric", fmt.Sprintf("unsupported rule metric %q", p.Metric))
	}
	if p.MinThreshold < 0 {
		return NewDataError("min_threshold", fmt.Sprintf("must be non-negative, got %v", p.MinThreshold))
	}
	if p.MaxLen < 0 {
		return NewDataError("max_len", fmt.Sprintf("must be non-negative, got %d", p.MaxLen))
	}
	return nil
}
