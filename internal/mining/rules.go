package mining

import (
	"sort"

	"github.com/cxr-association-engine/internal/domain"
)

// maxRuleItemsetLen caps the subset enumeration of a single itemset (2^n splits).
const maxRuleItemsetLen = 20

// SupportTable maps itemset signatures to their support.
type SupportTable map[string]float64

// NewSupportTable indexes itemsets by signature.
func NewSupportTable(itemsets []domain.Itemset) SupportTable {
	table := make(SupportTable, len(itemsets))
	for _, set := range itemsets {
		table[domain.Signature(domain.SortItems(set.Items))] = set.Support
	}
	return table
}

// GenerateRules expands every frequent itemset of two or more items into all
// antecedent → consequent splits and keeps those whose selected metric reaches
// minThreshold. A split whose antecedent or consequent is missing from the itemset
// table is a ModelInconsistencyError.
func GenerateRules(itemsets []domain.Itemset, metric domain.Metric, minThreshold float64) ([]domain.Rule, error) {
	if !metric.IsValid() {
		return nil, domain.NewDataError("metric", "unsupported rule metric "+string(metric))
	}
	if len(itemsets) == 0 {
		return []domain.Rule{}, nil
	}

	table := NewSupportTable(itemsets)
	rules := make([]domain.Rule, 0)

	for _, set := range itemsets {
		n := set.Len()
		if n < 2 {
			continue
		}
		items := domain.SortItems(set.Items)
		sig := domain.Signature(items)
		if n > maxRuleItemsetLen {
			return nil, domain.NewDataError("itemset", "itemset too large for rule generation: "+sig)
		}
		full := uint32(1)<<uint(n) - 1

		for mask := uint32(1); mask < full; mask++ {
			antecedent, consequent := split(items, mask)
			rule, err := buildRule(sig, set.Support, antecedent, consequent, table)
			if err != nil {
				return nil, err
			}
			if rule.Value(metric) >= minThreshold {
				rules = append(rules, rule)
			}
		}
	}

	SortRules(rules)
	return rules, nil
}

func buildRule(sig string, support float64, antecedent, consequent []domain.Item, table SupportTable) (domain.Rule, error) {
	aSig := domain.Signature(antecedent)
	aSupport, ok := table[aSig]
	if !ok || aSupport <= 0 {
		return domain.Rule{}, &domain.ModelInconsistencyError{Itemset: sig, Missing: aSig}
	}
	cSig := domain.Signature(consequent)
	cSupport, ok := table[cSig]
	if !ok || cSupport <= 0 {
		return domain.Rule{}, &domain.ModelInconsistencyError{Itemset: sig, Missing: cSig}
	}

	confidence := support / aSupport
	return domain.Rule{
		Antecedent:        antecedent,
		Consequent:        consequent,
		AntecedentSupport: aSupport,
		ConsequentSupport: cSupport,
		Support:           support,
		Confidence:        confidence,
		Lift:              confidence / cSupport,
		Leverage:          support - aSupport*cSupport,
	}, nil
}

// split partitions sorted items by mask; both halves stay sorted.
func split(items []domain.Item, mask uint32) (in, out []domain.Item) {
	for i, item := range items {
		if mask&(1<<uint(i)) != 0 {
			in = append(in, item)
		} else {
			out = append(out, item)
		}
	}
	return in, out
}

// SortRules orders rules by descending confidence, descending lift, antecedent size,
// antecedent signature and consequent signature. Query results depend on this order.
func SortRules(rules []domain.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Lift != b.Lift {
			return a.Lift > b.Lift
		}
		if len(a.Antecedent) != len(b.Antecedent) {
			return len(a.Antecedent) < len(b.Antecedent)
		}
		if as, bs := domain.Signature(a.Antecedent), domain.Signature(b.Antecedent); as != bs {
			return as < bs
		}
		return domain.Signature(a.Consequent) < domain.Signature(b.Consequent)
	})
}
