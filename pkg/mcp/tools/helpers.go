package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return val
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive as float64.
func getOptionalInt(req mcp.CallToolRequest, key string) (int, bool) {
	val, ok := arguments(req)[key].(float64)
	if !ok {
		return 0, false
	}
	return int(val), true
}

// getStringSlice extracts an optional array of strings. Non-string items are an error.
func getStringSlice(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := arguments(req)[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter '%s' must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter '%s' must be an array of strings", key)
		}
		if s = trimString(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// getStringMap extracts an object of string values.
func getStringMap(req mcp.CallToolRequest, key string) (map[string]string, error) {
	raw, ok := arguments(req)[key]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parameter '%s' must be an object of strings", key)
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parameter '%s.%s' must be a string", key, k)
		}
		out[k] = s
	}
	return out, nil
}

// requireUUID reads a required UUID parameter. A nil result with a non-nil
// tool result means the caller should return the tool result.
func requireUUID(req mcp.CallToolRequest, key string) (uuid.UUID, *mcp.CallToolResult) {
	raw := trimString(getOptionalString(req, key))
	if raw == "" {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("parameter '%s' is required", key))
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("parameter '%s' is not a valid UUID", key))
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
