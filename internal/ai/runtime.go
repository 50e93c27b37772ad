package ai

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Runtime is the chat-completions backend an Analyst talks to.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Analyst turns a prompt into markdown prose.
type Analyst interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

// Fixed request parameters of the insight call.
const (
	DefaultModel       = "openai/gpt-4o-mini"
	DefaultTemperature = 0.5
	DefaultMaxTokens   = 1024
)

// RuntimeConfig carries the knobs used to build a Runtime.
type RuntimeConfig struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewRuntime builds the HTTP client for cfg.
func NewRuntime(cfg RuntimeConfig) Runtime {
	return NewClientWithBaseURL(cfg.APIKey, cfg.HTTPTimeout, cfg.RetryMax, cfg.BaseDelay, cfg.MaxDelay, cfg.BaseURL)
}

// ChatAnalyst sends a single non-streaming completion with a fixed model,
// temperature and output budget.
type ChatAnalyst struct {
	Runtime     Runtime
	Model       string
	Temperature float64
	MaxTokens   int
	System      string
}

// NewChatAnalyst returns an analyst with the default request parameters.
func NewChatAnalyst(rt Runtime, model string) *ChatAnalyst {
	if model == "" {
		model = DefaultModel
	}
	return &ChatAnalyst{
		Runtime:     rt,
		Model:       model,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		System:      SystemPrompt,
	}
}

// Analyze implements Analyst.
func (a *ChatAnalyst) Analyze(ctx context.Context, prompt string) (string, error) {
	if a.Runtime == nil {
		return "", errors.New("no runtime configured")
	}
	msgs := make([]Message, 0, 2)
	if a.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: a.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})
	resp, err := a.Runtime.Generate(ctx, GenerateRequest{
		Model:       a.Model,
		Messages:    msgs,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Content())
	if out == "" {
		return "", errors.New("empty response from model")
	}
	return out, nil
}

// AnalystFunc adapts a function to the Analyst interface.
type AnalystFunc func(ctx context.Context, prompt string) (string, error)

func (f AnalystFunc) Analyze(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }
