package domain

import (
	"strings"
	"time"
)

// AssociationType labels the group an association belongs to
type AssociationType string

const (
	PRIMARY      AssociationType = "Primary"
	ASSOCIATED   AssociationType = "Associated"
	COMPLICATION AssociationType = "Complication"
)

// Association is one entry of a query result group
type Association struct {
	Condition  Item            `json:"condition"`
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Type       AssociationType `json:"type"`
	Rule       string          `json:"rule"`
}

// NewAssociation builds an association whose display label replaces underscores with spaces
func NewAssociation(condition Item, confidence float64, kind AssociationType, rule string) Association {
	return Association{
		Condition:  condition,
		Label:      DisplayLabel(condition),
		Confidence: confidence,
		Type:       kind,
		Rule:       rule,
	}
}

// DisplayLabel renders a finding label for humans ("Pleural_Effusion" → "Pleural Effusion")
func DisplayLabel(item Item) string {
	return strings.ReplaceAll(string(item), "_", " ")
}

// QueryRequest carries the observed findings of one case
type QueryRequest struct {
	Observed []string `json:"observed" binding:"required"`
	Severe   []string `json:"severe,omitempty"`
}

// QueryResult holds the three ordered result groups for one query
type QueryResult struct {
	SnapshotID    string        `json:"snapshot_id"`
	Primary       []Association `json:"primary"`
	Associated    []Association `json:"associated"`
	Complications []Association `json:"complications"`
	// StaticFallback is set when complications came from the static lookup table
	StaticFallback bool `json:"static_fallback"`
}

// ModelSource tells where the live rule store came from
type ModelSource string

const (
	SourceArtifact ModelSource = "artifact"
	SourceRetrain  ModelSource = "retrain"
	SourceFallback ModelSource = "fallback"
	SourceDegraded ModelSource = "degraded"
)

// ModelInfo summarises the rule store currently being served
type ModelInfo struct {
	SnapshotID   string       `json:"snapshot_id"`
	CreatedAt    time.Time    `json:"created_at"`
	Source       ModelSource  `json:"source"`
	Params       MiningParams `json:"params"`
	Transactions int          `json:"transactions"`
	Itemsets     int          `json:"frequent_itemsets"`
	Rules        int          `json:"association_rules"`
	Items        int          `json:"items"`
}

// TrainingReport describes the outcome of one mining run
type TrainingReport struct {
	SnapshotID   string        `json:"snapshot_id"`
	Transactions int           `json:"transactions"`
	Items        int           `json:"items"`
	Itemsets     int           `json:"frequent_itemsets"`
	Rules        int           `json:"association_rules"`
	Duration     time.Duration `json:"duration"`
	Params       MiningParams  `json:"params"`
}
