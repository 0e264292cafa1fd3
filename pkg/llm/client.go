// Package llm talks to an OpenAI-compatible chat endpoint. It is only used
// to propose clarifications; no assessment decision depends on it.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/retry"
)

// Client is a chat-completion client guarded by a circuit breaker.
type Client struct {
	client   *openai.Client
	endpoint string
	model    string
	breaker  *CircuitBreaker
	retry    *retry.Config
	logger   *zap.Logger
}

// NewClient creates a client for the configured endpoint.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm base_url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.BaseURL,
		model:    cfg.Model,
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		retry: &retry.Config{
			MaxRetries:   2,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		logger: logger.Named("llm"),
	}, nil
}

// Complete sends one system and one user message and returns the reply text.
// Transient failures are retried; persistent failures trip the breaker.
func (c *Client) Complete(ctx context.Context, systemMessage, prompt string, temperature float64) (string, error) {
	if err := c.breaker.Allow(); err != nil {
		return "", err
	}

	start := time.Now()
	content, err := retry.DoWithResultIfRetryable(ctx, c.retry, func() (string, error) {
		return c.complete(ctx, systemMessage, prompt, temperature)
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("LLM request failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("circuit", c.breaker.State().String()),
			zap.Error(err))
		return "", err
	}
	c.breaker.RecordSuccess()
	return content, nil
}

func (c *Client) complete(ctx context.Context, systemMessage, prompt string, temperature float64) (string, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
	})
	if err != nil {
		e := ClassifyError(err)
		e.Model = c.model
		return "", e
	}
	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeResponse, "no choices in response", false, nil)
	}

	c.logger.Debug("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}
