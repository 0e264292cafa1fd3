package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/retry"
)

// chatServer answers /chat/completions with statuses in order, then 200s.
func chatServer(t *testing.T, content string, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if int(n) <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error": {"message": "upstream unavailable", "type": "server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(config.LLMConfig{BaseURL: baseURL + "/v1/", Model: "test-model", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	c.retry = &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return c
}

func TestNewClient_RequiresEndpointAndModel(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Model: "m"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewClient(config.LLMConfig{BaseURL: "http://localhost"}, zap.NewNop())
	assert.Error(t, err)
}

func TestClient_Complete(t *testing.T) {
	srv, calls := chatServer(t, `{"suggestions": ["net"]}`)
	c := newTestClient(t, srv.URL)

	got, err := c.Complete(context.Background(), "system", "prompt", 0.2)
	require.NoError(t, err)
	assert.Equal(t, `{"suggestions": ["net"]}`, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, "test-model", c.Model())
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	srv, calls := chatServer(t, "ok", http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	c := newTestClient(t, srv.URL)

	got, err := c.Complete(context.Background(), "system", "prompt", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, CircuitClosed, c.breaker.State())
}

func TestClient_AuthFailureIsNotRetried(t *testing.T) {
	srv, calls := chatServer(t, "ok", http.StatusUnauthorized)
	c := newTestClient(t, srv.URL)

	_, err := c.Complete(context.Background(), "system", "prompt", 0)
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrorTypeAuth, llmErr.Type)
	assert.Equal(t, "test-model", llmErr.Model)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv, calls := chatServer(t, "ok",
		http.StatusUnauthorized, http.StatusUnauthorized, http.StatusUnauthorized)
	c := newTestClient(t, srv.URL)

	for i := 0; i < DefaultCircuitBreakerConfig().Threshold; i++ {
		_, err := c.Complete(context.Background(), "system", "prompt", 0)
		require.Error(t, err)
	}
	require.Equal(t, CircuitOpen, c.breaker.State())

	_, err := c.Complete(context.Background(), "system", "prompt", 0)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}
