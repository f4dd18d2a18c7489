// Package ai produces supportive replies through an OpenAI-compatible chat
// completion API. Callers always receive text: upstream failures are logged
// and answered with a fixed fallback message.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/calmspace/apiserver/config"
	"github.com/calmspace/apiserver/internal/logging"
	"github.com/calmspace/apiserver/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	// FallbackReply is returned whenever a completion cannot be produced.
	FallbackReply = "I'm here to listen and support you. How are you feeling right now?"

	systemPrompt = "You are a compassionate AI mental health companion. " +
		"Provide supportive, empathetic responses. Never give medical advice."

	defaultModel       = openai.GPT3Dot5Turbo
	defaultMaxTokens   = 200
	defaultTimeout     = 30 * time.Second
	temperature        = 0.7
	breakerName        = "ai-completion"
	breakerThreshold   = 5
	breakerOpenTimeout = 30 * time.Second
)

var errEmptyCompletion = errors.New("completion returned no choices")

// Completer turns a user message into a reply. Implementations never fail.
type Completer interface {
	Complete(ctx context.Context, prompt string) string
}

// Client calls the completion API behind a circuit breaker.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	breaker   *gobreaker.CircuitBreaker[string]
}

// NewClient builds a Client from cfg. An empty API key yields a client that
// answers every prompt with FallbackReply.
func NewClient(cfg config.AIConfig) *Client {
	c := &Client{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}

	if strings.TrimSpace(cfg.APIKey) != "" {
		apiCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		c.api = openai.NewClientWithConfig(apiCfg)
	}

	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(gobreaker.StateClosed))
	return c
}

// Complete returns the model's reply to prompt, or FallbackReply.
func (c *Client) Complete(ctx context.Context, prompt string) string {
	if c.api == nil {
		metrics.AICompletions.WithLabelValues("fallback").Inc()
		logging.Ctx(ctx).Debug().Msg("ai api key not configured, using fallback reply")
		return FallbackReply
	}

	reply, err := c.breaker.Execute(func() (string, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		outcome := "fallback"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		metrics.AICompletions.WithLabelValues(outcome).Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("model", c.model).Msg("ai completion failed, using fallback reply")
		return FallbackReply
	}

	metrics.AICompletions.WithLabelValues("success").Inc()
	return reply
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
	})
	metrics.AICompletionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errEmptyCompletion
	}
	return reply, nil
}
