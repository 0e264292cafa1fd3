package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// HealthInfo is what the health tool reports besides its status.
type HealthInfo struct {
	Version     string
	Lakehouse   string
	ReportStore string
	LLM         bool
}

type healthResult struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Lakehouse   string `json:"lakehouse"`
	ReportStore string `json:"report_store"`
	Suggestions bool   `json:"llm_suggestions"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
func RegisterHealthTool(s *server.MCPServer, info HealthInfo) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and configured backends"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(healthResult{
			Status:      "ok",
			Version:     info.Version,
			Lakehouse:   info.Lakehouse,
			ReportStore: info.ReportStore,
			Suggestions: info.LLM,
		})
	})
}
