package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vibe-flow/cmc/logger"
)

// Server wires the three read-only collaborator operations onto an MCP
// server instance.
type Server struct {
	views  *Views
	server *mcp.Server
}

// New builds a Server bound to views and registers its tools.
func New(views *Views) *Server {
	s := &Server{
		views: views,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "cmc-context-server",
			Version: "1.0.0",
		}, nil),
	}
	s.registerTools()
	return s
}

// MCPServer exposes the underlying SDK server for transport wiring
// (stdio, HTTP, etc.), which is the caller's responsibility.
func (s *Server) MCPServer() *mcp.Server { return s.server }

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "describe",
		Description: "Describe a stored transaction (returned in full, content included) or a file-pointer (id and size only, without its content) by id.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"id": {Type: "string", Description: "Transaction or file-pointer id"},
			},
			Required: []string{"id"},
		},
	}, s.handleDescribe)

	s.server.AddTool(&mcp.Tool{
		Name:        "expand",
		Description: "Resurface the original content a file-pointer or log-pointer id refers to.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pointerId": {Type: "string", Description: "File-pointer or log-pointer id"},
			},
			Required: []string{"pointerId"},
		},
	}, s.handleExpand)

	s.server.AddTool(&mcp.Tool{
		Name:        "grep",
		Description: "Search stored transaction content for a regular expression pattern.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pattern":        {Type: "string", Description: "Regular expression to search for"},
				"caseSensitive":  {Type: "boolean", Description: "Match case-sensitively (default false)"},
				"maxResults":     {Type: "integer", Description: "Maximum matches to return (default 50)"},
				"includeContent": {Type: "boolean", Description: "Include the matched line text in results"},
			},
			Required: []string{"pattern"},
		},
	}, s.handleGrep)
}

type describeParams struct {
	ID string `json:"id"`
}

func (s *Server) handleDescribe(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params describeParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("describe", err)
	}
	result := s.views.Describe(params.ID)
	return jsonResult(result)
}

type expandParams struct {
	PointerID string `json:"pointerId"`
}

func (s *Server) handleExpand(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params expandParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("expand", err)
	}
	result, err := s.views.Expand(params.PointerID)
	if err != nil {
		return errorResult("expand", err)
	}
	return jsonResult(result)
}

type grepParams struct {
	Pattern        string `json:"pattern"`
	CaseSensitive  bool   `json:"caseSensitive"`
	MaxResults     int    `json:"maxResults"`
	IncludeContent bool   `json:"includeContent"`
}

func (s *Server) handleGrep(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params grepParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("grep", err)
	}
	result, err := s.views.Grep(params.Pattern, GrepOptions{
		CaseSensitive:  params.CaseSensitive,
		MaxResults:     params.MaxResults,
		IncludeContent: params.IncludeContent,
	})
	if err != nil {
		return errorResult("grep", err)
	}
	return jsonResult(result)
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: marshal response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}

func errorResult(operation string, err error) (*mcp.CallToolResult, error) {
	logger.L().Warn("mcpserver: tool call failed", "operation", operation, "error", err)
	payload := map[string]any{
		"success":   false,
		"operation": operation,
		"error":     err.Error(),
	}
	return jsonResult(payload)
}
