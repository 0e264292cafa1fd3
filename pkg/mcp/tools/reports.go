package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
)

// RegisterReportTools registers read access to stored feasibility reports.
func RegisterReportTools(s *server.MCPServer, deps *AssessmentToolDeps) {
	registerGetReportTool(s, deps)
	registerListReportsTool(s, deps)
}

func registerGetReportTool(s *server.MCPServer, deps *AssessmentToolDeps) {
	tool := mcp.NewTool(
		"get_report",
		mcp.WithDescription(
			"Fetch a stored feasibility report. format='markdown' (default) returns the rendered document; "+
				"format='json' returns the structured report.",
		),
		mcp.WithString("report_id", mcp.Required(), mcp.Description("Report ID")),
		mcp.WithString("format", mcp.Description("Optional - 'markdown' or 'json'")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "report_id")
		if errResult != nil {
			return errResult, nil
		}
		format := trimString(getOptionalString(req, "format"))
		if format != "" && format != "markdown" && format != "json" {
			return NewErrorResult("invalid_parameters", "parameter 'format' must be 'markdown' or 'json'"), nil
		}

		report, err := deps.Service.GetReport(ctx, id)
		if err != nil {
			if errResult := ErrorResultFor(err); errResult != nil {
				return errResult, nil
			}
			return nil, fmt.Errorf("get_report: %w", err)
		}
		if format == "json" {
			return jsonResult(report)
		}
		return mcp.NewToolResultText(report.Markdown), nil
	})
}

type listReportsResponse struct {
	Reports []models.ReportSummary `json:"reports"`
	Count   int                    `json:"count"`
}

func registerListReportsTool(s *server.MCPServer, deps *AssessmentToolDeps) {
	tool := mcp.NewTool(
		"list_reports",
		mcp.WithDescription("List stored feasibility reports, newest first."),
		mcp.WithNumber("limit", mcp.Description("Optional - maximum number of reports (default 20, max 100)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit, _ := getOptionalInt(req, "limit")
		reports, err := deps.Service.ListReports(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list_reports: %w", err)
		}
		if reports == nil {
			reports = []models.ReportSummary{}
		}
		return jsonResult(listReportsResponse{Reports: reports, Count: len(reports)})
	})
}
