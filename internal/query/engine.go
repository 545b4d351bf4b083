// Package query applies a rule store to the findings observed on one case and
// classifies the implied conditions into associated findings and complications.
package query

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cxr-association-engine/internal/domain"
	"github.com/cxr-association-engine/internal/rulestore"
)

const (
	// DefaultMaxResultsPerGroup bounds the associated and complication groups.
	DefaultMaxResultsPerGroup = 3

	// PrimaryConfidence is reported for every observed finding.
	PrimaryConfidence = 75.0
	// PrimaryRule is the provenance of observed findings.
	PrimaryRule = "Image Analysis"
)

// DefaultSevereConditions are classified as complications when a rule implies them.
var DefaultSevereConditions = []string{
	"Respiratory_Failure",
	"Heart_Failure",
	"Sepsis",
	"ARDS",
	"Pneumothorax",
	"Cardiac_Arrest",
}

// Engine answers queries against a rule store snapshot. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	severe     []domain.Item
	maxResults int
	logger     *logrus.Logger
}

// NewEngine creates an engine from the query configuration. Missing values fall back
// to DefaultSevereConditions and DefaultMaxResultsPerGroup.
func NewEngine(cfg domain.QueryConfig, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	severe := cfg.SevereConditions
	if len(severe) == 0 {
		severe = DefaultSevereConditions
	}
	maxResults := cfg.MaxResultsPerGroup
	if maxResults <= 0 {
		maxResults = DefaultMaxResultsPerGroup
	}
	return &Engine{
		severe:     domain.NewTransaction(severe...),
		maxResults: maxResults,
		logger:     logger,
	}
}

// SevereConditions returns the severe list used when a request carries none.
func (e *Engine) SevereConditions() []domain.Item {
	return append([]domain.Item(nil), e.severe...)
}

// Query runs the observed findings of req against snapshot.
//
// Rules are matched by antecedent membership in store order. Each consequent item
// that was not observed becomes a candidate; a severe candidate joins the
// complications, any other joins the associated findings, first seen wins. Both
// groups are truncated in insertion order. When no rule yields a complication the
// static complication table is consulted instead.
func (e *Engine) Query(snapshot *rulestore.Snapshot, req domain.QueryRequest) (*domain.QueryResult, error) {
	observed := domain.NewTransaction(req.Observed...)
	if len(observed) == 0 {
		return nil, &domain.QueryError{Message: "at least one observed condition is required"}
	}
	for _, c := range observed {
		if err := domain.CheckItem(c); err != nil {
			return nil, &domain.QueryError{Message: err.Error()}
		}
	}

	severe := domain.Transaction(e.severe)
	if len(req.Severe) > 0 {
		severe = domain.NewTransaction(req.Severe...)
	}

	result := &domain.QueryResult{
		SnapshotID:    snapshot.ID(),
		Primary:       make([]domain.Association, 0, len(observed)),
		Associated:    []domain.Association{},
		Complications: []domain.Association{},
	}
	for _, c := range observed {
		result.Primary = append(result.Primary, domain.NewAssociation(c, PrimaryConfidence, domain.PRIMARY, PrimaryRule))
	}

	seenAssociated := make(map[domain.Item]struct{})
	seenComplications := make(map[domain.Item]struct{})
	for _, c := range observed {
		for _, rule := range snapshot.RulesWithAntecedent(c) {
			confidence := percent(rule.Confidence)
			for _, consequent := range rule.Consequent {
				if observed.Contains(consequent) {
					continue
				}
				provenance := string(c) + " → " + string(consequent)
				if severe.Contains(consequent) {
					if _, ok := seenComplications[consequent]; !ok {
						seenComplications[consequent] = struct{}{}
						result.Complications = append(result.Complications,
							domain.NewAssociation(consequent, confidence, domain.COMPLICATION, provenance))
					}
					continue
				}
				if _, ok := seenAssociated[consequent]; !ok {
					seenAssociated[consequent] = struct{}{}
					result.Associated = append(result.Associated,
						domain.NewAssociation(consequent, confidence, domain.ASSOCIATED, provenance))
				}
			}
		}
	}

	result.Associated = truncate(result.Associated, e.maxResults)
	result.Complications = truncate(result.Complications, e.maxResults)

	if len(result.Complications) == 0 {
		result.Complications = staticComplications(observed)
		result.StaticFallback = len(result.Complications) > 0
	}

	e.logger.WithFields(logrus.Fields{
		"snapshot_id":     snapshot.ID(),
		"observed":        len(observed),
		"associated":      len(result.Associated),
		"complications":   len(result.Complications),
		"static_fallback": result.StaticFallback,
	}).Debug("Query answered")

	return result, nil
}

// percent converts a ratio into a percentage rounded to two decimals.
func percent(ratio float64) float64 {
	return math.Round(ratio*100*100) / 100
}

func truncate(group []domain.Association, n int) []domain.Association {
	if len(group) > n {
		return group[:n]
	}
	return group
}
