package rulestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cxr-association-engine/internal/domain"
)

// FormatVersion is the artifact schema version written by Encode.
const FormatVersion = 1

// artifact is the persisted form of a snapshot. float64 values are written in
// shortest round-trip form, so decoding restores them bit for bit.
type artifact struct {
	Version          int                 `json:"version"`
	ID               string              `json:"id"`
	CreatedAt        time.Time           `json:"created_at"`
	Params           domain.MiningParams `json:"params"`
	Transactions     int                 `json:"transactions"`
	FrequentItemsets map[string]float64  `json:"frequent_itemsets"`
	Rules            []artifactRule      `json:"rules"`
}

type artifactRule struct {
	Antecedent        []domain.Item `json:"antecedent"`
	Consequent        []domain.Item `json:"consequent"`
	AntecedentSupport float64       `json:"antecedent_support"`
	ConsequentSupport float64       `json:"consequent_support"`
	Support           float64       `json:"support"`
	Confidence        float64       `json:"confidence"`
	Lift              float64       `json:"lift"`
	Leverage          float64       `json:"leverage"`
}

// Encode serializes a snapshot into an artifact.
func Encode(s *Snapshot) ([]byte, error) {
	a := artifact{
		Version:          FormatVersion,
		ID:               s.id,
		CreatedAt:        s.createdAt,
		Params:           s.params,
		Transactions:     s.transactions,
		FrequentItemsets: make(map[string]float64, len(s.supports)),
		Rules:            make([]artifactRule, len(s.rules)),
	}
	for sig, support := range s.supports {
		a.FrequentItemsets[sig] = support
	}
	for i, r := range s.rules {
		a.Rules[i] = artifactRule(r)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding rule store artifact: %w", err)
	}
	return data, nil
}

// Decode restores a snapshot from an artifact. Unreadable or out-of-range content is
// a ModelLoadError; rules that reference unknown itemsets are a ModelInconsistencyError.
func Decode(data []byte, location string) (*Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domain.NewModelLoadError(location, fmt.Errorf("artifact is empty"))
	}

	var a artifact
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, domain.NewModelLoadError(location, fmt.Errorf("parsing artifact: %w", err))
	}
	if a.Version != FormatVersion {
		return nil, domain.NewModelLoadError(location, fmt.Errorf("unsupported artifact version %d", a.Version))
	}
	if a.ID == "" {
		return nil, domain.NewModelLoadError(location, fmt.Errorf("artifact has no id"))
	}

	itemsets := make([]domain.Itemset, 0, len(a.FrequentItemsets))
	for sig, support := range a.FrequentItemsets {
		if sig == "" {
			return nil, domain.NewModelLoadError(location, fmt.Errorf("empty itemset signature"))
		}
		if support < 0 || support > 1 {
			return nil, domain.NewModelLoadError(location, fmt.Errorf("itemset {%s} has support %v outside [0,1]", sig, support))
		}
		itemsets = append(itemsets, domain.Itemset{Items: domain.ParseSignature(sig), Support: support})
	}

	rules := make([]domain.Rule, len(a.Rules))
	for i, r := range a.Rules {
		if len(r.Antecedent) == 0 || len(r.Consequent) == 0 {
			return nil, domain.NewModelLoadError(location, fmt.Errorf("rule %d has an empty side", i))
		}
		if r.Confidence < 0 || r.Confidence > 1 || r.Lift < 0 {
			return nil, domain.NewModelLoadError(location, fmt.Errorf("rule %d has out-of-range metrics", i))
		}
		rules[i] = domain.Rule(r)
	}

	s := newSnapshot(a.ID, a.CreatedAt, a.Params, a.Transactions, itemsets, rules)
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}
