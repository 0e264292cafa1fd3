package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// maxParamLen bounds string parameters written to the log.
const maxParamLen = 500

// sensitiveKeys mark parameters whose values are hashed, never logged.
var sensitiveKeys = []string{"password", "secret", "token", "api_key", "apikey", "credential"}

// AuditLogger writes one structured log line per tool call, including the
// session it acted on, so an assessment can be traced end to end.
type AuditLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("mcp-audit")}
}

// Hooks returns mcp-go hooks that capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	isError := result != nil && result.IsError
	a.logger.Info("tool call", append(a.fields(id, req), zap.Bool("is_error", isError))...)
}

func (a *AuditLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	a.logger.Warn("tool call failed", append(a.fields(id, req), zap.Error(err))...)
}

func (a *AuditLogger) fields(id any, req *mcplib.CallToolRequest) []zap.Field {
	start := time.Now()
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		start = v.(time.Time)
	}
	params := sanitizeParams(req.Params.Arguments)
	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", time.Since(start)),
		zap.Any("params", params),
	}
	if sid, ok := params["session_id"].(string); ok {
		fields = append(fields, zap.String("session_id", sid))
	}
	return fields
}

// sanitizeParams truncates long strings and hashes sensitive values.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = sanitizeValue(k, v)
	}
	return out
}

func sanitizeValue(key string, value any) any {
	if isSensitiveKey(key) {
		return hashValue(value)
	}
	switch v := value.(type) {
	case string:
		if len(v) > maxParamLen {
			return v[:maxParamLen] + "...[truncated]"
		}
		return v
	case map[string]any:
		return sanitizeParams(v)
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// hashValue keeps a short digest so repeated values can be correlated.
func hashValue(value any) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%v", value)))
	return "sha256:" + hex.EncodeToString(sum[:8])
}
