// Package mcp exposes the rule query engine to MCP clients over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/cxr-association-engine/internal/domain"
)

// ModelService is the subset of the model service exposed as MCP tools
type ModelService interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
	Rules(limit int, minConfidence float64) []domain.Rule
	Info() domain.ModelInfo
}

// Server represents the MCP server
type Server struct {
	config    domain.MCPConfig
	service   ModelService
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with all tools registered
func NewServer(cfg domain.MCPConfig, service ModelService, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "cxr-association-engine"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "1.0.0"
	}

	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}

	server := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcp.NewServer(serverInfo, nil),
		logger:    logger,
	}
	server.registerTools()
	return server
}

// Start runs the server until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	var transport mcp.Transport
	switch s.config.TransportType {
	case "", "stdio":
		transport = &mcp.StdioTransport{}
	default:
		return fmt.Errorf("unsupported MCP transport: %s", s.config.TransportType)
	}

	s.logger.WithFields(logrus.Fields{
		"server":    s.config.ServerName,
		"version":   s.config.ServerVersion,
		"transport": "stdio",
	}).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerTools registers the query tools with the MCP SDK
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolQueryAssociations,
		Description: "Apply the mined association rules to observed chest X-ray findings and return primary, associated and complication conditions.",
	}, s.handleQueryAssociations)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListRules,
		Description: "List mined association rules ordered by confidence, optionally filtered by minimum confidence.",
	}, s.handleListRules)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolModelInfo,
		Description: "Describe the rule store currently being served.",
	}, s.handleModelInfo)

	s.logger.WithField("tool_count", 3).Debug("Registered MCP tools")
}
