package mcp

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/cxr-association-engine/internal/domain"
)

// Tool names
const (
	ToolQueryAssociations = "query_associations"
	ToolListRules         = "list_rules"
	ToolModelInfo         = "model_info"
)

const defaultRuleLimit = 20

// QueryAssociationsParams defines parameters for query_associations tool
type QueryAssociationsParams struct {
	Observed []string `json:"observed" jsonschema:"finding labels observed on the image, e.g. Pneumonia or Pleural_Effusion"`
	Severe   []string `json:"severe,omitempty" jsonschema:"conditions to classify as complications instead of the configured list"`
}

// ListRulesParams defines parameters for list_rules tool
type ListRulesParams struct {
	Limit         int     `json:"limit,omitempty" jsonschema:"maximum number of rules to return (default 20)"`
	MinConfidence float64 `json:"min_confidence,omitempty" jsonschema:"minimum rule confidence in [0,1]"`
}

// ModelInfoParams defines parameters for model_info tool
type ModelInfoParams struct{}

// RuleEntry is a rule as returned by list_rules
type RuleEntry struct {
	Rule       string  `json:"rule"`
	Support    float64 `json:"support"`
	Confidence float64 `json:"confidence"`
	Lift       float64 `json:"lift"`
}

// ListRulesResult defines the result structure for list_rules tool
type ListRulesResult struct {
	SnapshotID string      `json:"snapshot_id"`
	Count      int         `json:"count"`
	Rules      []RuleEntry `json:"rules"`
}

// handleQueryAssociations handles the query_associations tool invocation
func (s *Server) handleQueryAssociations(ctx context.Context, req *mcp.CallToolRequest, params QueryAssociationsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":     ToolQueryAssociations,
		"observed": params.Observed,
	}).Info("Tool invoked")

	result, err := s.service.Query(ctx, domain.QueryRequest{Observed: params.Observed, Severe: params.Severe})
	if err != nil {
		return s.createErrorResult("Query failed", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summarizeResult(result)},
		},
	}, result, nil
}

// handleListRules handles the list_rules tool invocation
func (s *Server) handleListRules(ctx context.Context, req *mcp.CallToolRequest, params ListRulesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolListRules).Info("Tool invoked")

	if params.Limit < 0 {
		return s.createErrorResult("Invalid parameter", fmt.Errorf("limit must not be negative")), nil, nil
	}
	if params.MinConfidence < 0 || params.MinConfidence > 1 {
		return s.createErrorResult("Invalid parameter", fmt.Errorf("min_confidence must be in [0,1]")), nil, nil
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultRuleLimit
	}

	rules := s.service.Rules(limit, params.MinConfidence)
	result := ListRulesResult{
		SnapshotID: s.service.Info().SnapshotID,
		Count:      len(rules),
		Rules:      make([]RuleEntry, len(rules)),
	}
	var text strings.Builder
	fmt.Fprintf(&text, "%d association rules", len(rules))
	for i, r := range rules {
		entry := RuleEntry{
			Rule:       r.String(),
			Support:    round3(r.Support),
			Confidence: round3(r.Confidence),
			Lift:       round3(r.Lift),
		}
		result.Rules[i] = entry
		fmt.Fprintf(&text, "\n%s (confidence %.3f, lift %.3f)", entry.Rule, entry.Confidence, entry.Lift)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text.String()},
		},
	}, result, nil
}

// handleModelInfo handles the model_info tool invocation
func (s *Server) handleModelInfo(ctx context.Context, req *mcp.CallToolRequest, params ModelInfoParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolModelInfo).Info("Tool invoked")

	info := s.service.Info()
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Rule store %s (%s): %d rules, %d frequent itemsets over %d transactions",
					info.SnapshotID, info.Source, info.Rules, info.Itemsets, info.Transactions),
			},
		},
	}, info, nil
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %s: %v", domain.ErrorCode(err), err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

func summarizeResult(r *domain.QueryResult) string {
	var b strings.Builder
	writeGroup := func(title string, group []domain.Association) {
		fmt.Fprintf(&b, "%s:", title)
		if len(group) == 0 {
			b.WriteString(" none")
		}
		for _, a := range group {
			fmt.Fprintf(&b, "\n  - %s (%.2f%%, %s)", a.Label, a.Confidence, a.Rule)
		}
		b.WriteString("\n")
	}
	writeGroup("Primary findings", r.Primary)
	writeGroup("Associated conditions", r.Associated)
	writeGroup("Potential complications", r.Complications)
	if r.StaticFallback {
		b.WriteString("Complications taken from the static clinical table.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
