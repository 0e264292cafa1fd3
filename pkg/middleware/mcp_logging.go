package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxLoggedArg bounds string arguments in request logs.
const maxLoggedArg = 200

var redactedKeys = []string{"password", "secret", "token", "key", "credential"}

// MCPRequestLogger logs JSON-RPC traffic on the MCP endpoint. Tool results
// flagged isError are logged with the error code carried in their payload,
// which is how the assessment tools report phase and input mistakes.
// A nil logger disables it.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "unreadable request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var req rpcRequest
			if err := json.Unmarshal(body, &req); err != nil {
				logger.Debug("MCP request is not a single JSON-RPC object", zap.Error(err))
			}

			logger.Debug("MCP request",
				zap.String("method", req.Method),
				zap.String("tool", req.Params.Name),
				zap.Any("arguments", redactArguments(req.Params.Arguments)),
			)

			recorder := &bodyRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			var resp rpcResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &resp); err != nil {
				logger.Debug("MCP response not decodable", zap.Error(err))
				return
			}

			fields := []zap.Field{
				zap.String("tool", req.Params.Name),
				zap.Duration("duration", duration),
			}
			switch {
			case resp.Error != nil:
				logger.Debug("MCP response error", append(fields,
					zap.Int("error_code", resp.Error.Code),
					zap.String("error_message", resp.Error.Message),
				)...)
			case resp.Result.IsError:
				logger.Debug("MCP tool error", append(fields,
					zap.String("error_code", resp.Result.errorCode()),
				)...)
			default:
				logger.Debug("MCP response success", fields...)
			}
		})
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type rpcResponse struct {
	Result toolResult `json:"result"`
	Error  *rpcError  `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// errorCode pulls the "code" field out of a structured tool error.
func (t toolResult) errorCode() string {
	for _, c := range t.Content {
		if c.Type != "text" {
			continue
		}
		var payload struct {
			Code string `json:"code"`
		}
		if json.Unmarshal([]byte(c.Text), &payload) == nil && payload.Code != "" {
			return payload.Code
		}
	}
	return "unknown"
}

type bodyRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func redactArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isRedacted(k) {
			out[k] = "[REDACTED]"
			continue
		}
		if s, ok := v.(string); ok && len(s) > maxLoggedArg {
			out[k] = s[:maxLoggedArg] + "..."
			continue
		}
		out[k] = v
	}
	return out
}

func isRedacted(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range redactedKeys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
