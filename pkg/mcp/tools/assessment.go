// Package tools exposes the assessment workflow as MCP tools.
package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/models"
	"github.com/ekaya-inc/ekaya-assess/pkg/services"
)

// AssessmentToolDeps contains dependencies for the workflow tools.
type AssessmentToolDeps struct {
	Service services.AssessmentService
	Logger  *zap.Logger
}

// stepResponse is a StepResult plus the tool the client should call next.
type stepResponse struct {
	*services.StepResult
	NextTool string `json:"next_tool,omitempty"`
}

// nextTool maps the awaited input to the tool that supplies it.
func nextTool(r *services.StepResult) string {
	switch r.Awaiting {
	case models.AwaitClarification, models.AwaitNewInformation:
		return "assess_clarify"
	case models.AwaitRefConfirmation:
		return "assess_confirm_ref"
	case models.AwaitTriageConfirmation:
		return "assess_confirm_triage"
	case models.AwaitColumnChoice:
		return "assess_choose_column"
	case models.AwaitContinue:
		return "assess_continue"
	}
	return ""
}

// RegisterAssessmentTools registers the workflow tools.
func RegisterAssessmentTools(s *server.MCPServer, deps *AssessmentToolDeps) {
	registerStartTool(s, deps)
	registerClarifyTool(s, deps)
	registerConfirmRefTool(s, deps)
	registerConfirmTriageTool(s, deps)
	registerChooseColumnTool(s, deps)
	registerSessionTool(s, deps, "assess_continue",
		"Run the next automatic phase of an assessment (quality profiling, semantic validation or verdict). "+
			"Call this when next_tool is assess_continue.",
		deps.Service.Continue)
	registerSessionTool(s, deps, "assess_status",
		"Return the current phase, awaited input, blocker and working entities of an assessment session.",
		deps.Service.Status)
	registerSessionTool(s, deps, "assess_abort",
		"Abort an assessment session and discard its working state. Reports already written are kept.",
		deps.Service.Abort)
}

// step runs one workflow operation and shapes the result.
func step(deps *AssessmentToolDeps, tool string, run func() (*services.StepResult, error)) (*mcp.CallToolResult, error) {
	res, err := run()
	if err != nil {
		if errResult := ErrorResultFor(err); errResult != nil {
			deps.Logger.Debug("assessment tool rejected input",
				zap.String("tool", tool), zap.Error(err))
			return errResult, nil
		}
		deps.Logger.Error("assessment tool failed", zap.String("tool", tool), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", tool, err)
	}
	return jsonResult(stepResponse{StepResult: res, NextTool: nextTool(res)})
}

func registerStartTool(s *server.MCPServer, deps *AssessmentToolDeps) {
	tool := mcp.NewTool(
		"assess_start",
		mcp.WithDescription(
			"Start a feasibility assessment for a business question. "+
				"The question is decomposed into entity, metric, grain, filters, time scope and aggregation. "+
				"Critical gaps must be answered with assess_clarify before any data is touched. "+
				"Example: assess_start(question='Top customers by revenue in the last 12 months?')",
		),
		mcp.WithString("question", mcp.Required(),
			mcp.Description("The business question in plain language")),
		mcp.WithString("requester",
			mcp.Description("Optional - who is asking, e.g. 'finance analyst'")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question := trimString(getOptionalString(req, "question"))
		if question == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}
		requester := trimString(getOptionalString(req, "requester"))
		return step(deps, "assess_start", func() (*services.StepResult, error) {
			return deps.Service.Start(ctx, question, requester)
		})
	})
}

func registerClarifyTool(s *server.MCPServer, deps *AssessmentToolDeps) {
	tool := mcp.NewTool(
		"assess_clarify",
		mcp.WithDescription(
			"Answer open gaps of an assessment. Keys are gap IDs from the gaps list, "+
				"or 'question' to restate the question, or 'role' to describe the requester. "+
				"Also used to supply new information after the assessment halted on a blocker. "+
				"Example: assess_clarify(session_id='...', answers={'metric_definition': 'net of refunds'})",
		),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Assessment session ID")),
		mcp.WithObject("answers", mcp.Required(),
			mcp.Description("Map of gap ID to answer text")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "session_id")
		if errResult != nil {
			return errResult, nil
		}
		answers, err := getStringMap(req, "answers")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if len(answers) == 0 {
			return NewErrorResult("invalid_parameters", "parameter 'answers' cannot be empty"), nil
		}
		return step(deps, "assess_clarify", func() (*services.StepResult, error) {
			return deps.Service.Clarify(ctx, id, answers)
		})
	})
}

func registerConfirmRefTool(s *server.MCPServer, deps *AssessmentToolDeps) {
	tool := mcp.NewTool(
		"assess_confirm_ref",
		mcp.WithDescription(
			"Confirm the data ref (branch or snapshot) and namespace every query of this assessment runs against. "+
				"There is no default ref; it must be given explicitly and must exist. "+
				"Example: assess_confirm_ref(session_id='...', ref='main', namespace='sales')",
		),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Assessment session ID")),
		mcp.WithString("ref", mcp.Required(), mcp.Description("Branch or snapshot name, e.g. 'main'")),
		mcp.WithString("namespace", mcp.Required(), mcp.Description("Namespace (schema) holding the tables")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "session_id")
		if errResult != nil {
			return errResult, nil
		}
		ref := getOptionalString(req, "ref")
		namespace := getOptionalString(req, "namespace")
		return step(deps, "assess_confirm_ref", func() (*services.StepResult, error) {
			return deps.Service.ConfirmRef(ctx, id, ref, namespace)
		})
	})
}

func registerConfirmTriageTool(s *server.MCPServer, deps *AssessmentToolDeps) {
	tool := mcp.NewTool(
		"assess_confirm_triage",
		mcp.WithDescription(
			"Freeze the table selection for column mapping. Omit 'tables' to accept the tables marked strong candidate. "+
				"Example: assess_confirm_triage(session_id='...', tables=['orders', 'customers'])",
		),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Assessment session ID")),
		mcp.WithArray("tables",
			mcp.Description("Optional - table names to select"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "session_id")
		if errResult != nil {
			return errResult, nil
		}
		tables, err := getStringSlice(req, "tables")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		return step(deps, "assess_confirm_triage", func() (*services.StepResult, error) {
			return deps.Service.ConfirmTriage(ctx, id, tables)
		})
	})
}

func registerChooseColumnTool(s *server.MCPServer, deps *AssessmentToolDeps) {
	tool := mcp.NewTool(
		"assess_choose_column",
		mcp.WithDescription(
			"Pick one of the competing candidate columns for a concept listed in pending_choices. "+
				"Example: assess_choose_column(session_id='...', concept='revenue', table='orders', column='order_total')",
		),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Assessment session ID")),
		mcp.WithString("concept", mcp.Required(), mcp.Description("Concept name from pending_choices")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table of the chosen candidate")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Column of the chosen candidate")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "session_id")
		if errResult != nil {
			return errResult, nil
		}
		concept := trimString(getOptionalString(req, "concept"))
		table := trimString(getOptionalString(req, "table"))
		column := trimString(getOptionalString(req, "column"))
		if concept == "" || table == "" || column == "" {
			return NewErrorResult("invalid_parameters", "parameters 'concept', 'table' and 'column' are required"), nil
		}
		return step(deps, "assess_choose_column", func() (*services.StepResult, error) {
			return deps.Service.ChooseColumn(ctx, id, concept, table, column)
		})
	})
}

// registerSessionTool registers a tool whose only parameter is the session ID.
func registerSessionTool(
	s *server.MCPServer,
	deps *AssessmentToolDeps,
	name, description string,
	op func(ctx context.Context, id uuid.UUID) (*services.StepResult, error),
) {
	tool := mcp.NewTool(
		name,
		mcp.WithDescription(description),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Assessment session ID")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(name == "assess_continue"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireUUID(req, "session_id")
		if errResult != nil {
			return errResult, nil
		}
		return step(deps, name, func() (*services.StepResult, error) {
			return op(ctx, id)
		})
	})
}
