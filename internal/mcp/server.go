// Package mcp exposes the validation, traceability, and workflow
// services over the Model Context Protocol.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// on the stdio transport and calls internal services directly. Tools
// accept document content inline or, when a specs directory is
// configured, load it from the feature's directory.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/content"
	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/specstore"
	"github.com/fyrsmithlabs/specd/internal/validation"
	"github.com/fyrsmithlabs/specd/internal/workflow"
)

// Server exposes specd over MCP.
type Server struct {
	mcp       *mcp.Server
	validator validation.Service
	workflows workflow.Service
	library   *content.Library
	specs     *specstore.Store
	metrics   *Metrics
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "specd").
	Name string

	// Version is the server version (default: "0.1.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "specd",
		Version: "0.1.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server over the given services. The specs
// store is optional; without it, tools require inline content.
func NewServer(cfg *Config, validator validation.Service, workflows workflow.Service, library *content.Library, specs *specstore.Store) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if validator == nil {
		return nil, fmt.Errorf("validation service is required")
	}
	if workflows == nil {
		return nil, fmt.Errorf("workflow service is required")
	}
	if library == nil {
		return nil, fmt.Errorf("content library is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:       mcpServer,
		validator: validator,
		workflows: workflows,
		library:   library,
		specs:     specs,
		metrics:   NewMetrics(cfg.Logger),
		logger:    cfg.Logger,
	}

	s.registerValidationTools()
	s.registerWorkflowTools()
	s.registerTaskTools()
	s.registerContentTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until
// the context is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// instrument wraps a tool handler with invocation metrics.
func instrument[In, Out any](s *Server, name string, h func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error)) func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		res, out, err := h(ctx, req, args)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		return res, out, err
	}
}

// resolveContent returns inline content when given, otherwise loads
// the document from the feature's directory.
func (s *Server) resolveContent(ctx context.Context, feature string, docType document.Type, inline string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if feature == "" {
		return "", fmt.Errorf("content or feature_name is required")
	}
	if s.specs == nil {
		return "", fmt.Errorf("no specs directory configured; provide content inline")
	}
	return s.specs.LoadDocument(ctx, feature, docType)
}

// loadCompanion loads a companion document for traceability context,
// treating a missing document as absent rather than an error.
func (s *Server) loadCompanion(ctx context.Context, feature string, docType document.Type) string {
	if s.specs == nil || feature == "" {
		return ""
	}
	text, err := s.specs.LoadDocument(ctx, feature, docType)
	if err != nil {
		return ""
	}
	return text
}

func textResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}
