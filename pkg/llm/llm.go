// Package llm wraps an OpenAI-compatible chat endpoint behind the small
// Completer interface the parsing and fallback paths use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion means the API answered but returned no usable choice.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Completer produces one chat completion for a system/user prompt pair.
// Implementations must honor ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds client settings. BaseURL is optional and lets the same client
// talk to local OpenAI-compatible servers.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Client is the production Completer backed by go-openai.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	log         *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm: model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		log:         log,
	}, nil
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		c.log.Error("chat completion failed",
			"model", c.model,
			"elapsed", time.Since(start).String(),
			"error", err)
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}

	c.log.Debug("chat completion",
		"model", c.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start).String())

	return resp.Choices[0].Message.Content, nil
}

// ExtractJSON strips markdown code fences and surrounding prose from a model
// reply, returning the first JSON object or array it contains. Models wrap
// JSON in ```json fences often enough that every JSON consumer goes through
// this.
func ExtractJSON(reply string) (string, bool) {
	s := strings.TrimSpace(reply)

	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	// Whichever bracket opens first decides whether the payload is an
	// object or an array.
	obj := strings.IndexByte(s, '{')
	arr := strings.IndexByte(s, '[')
	open, closing := obj, byte('}')
	if arr >= 0 && (obj < 0 || arr < obj) {
		open, closing = arr, ']'
	}
	if open < 0 {
		return "", false
	}
	if j := strings.LastIndexByte(s, closing); j > open {
		return s[open : j+1], true
	}
	return "", false
}
