// Package llm is a minimal client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1"
	DefaultModel    = "gpt-4o-mini"
	DefaultTimeout  = 120 * time.Second

	// placeholderKey lets keyless local endpoints work with servers that
	// insist on an Authorization header.
	placeholderKey = "sk-placeholder"
)

var (
	// ErrEmptyResponse is returned when the completion carries no content.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrInvalidJSON is returned when the content holds no usable JSON.
	ErrInvalidJSON = errors.New("llm: invalid JSON in response")
)

// Roles used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the parsed result of one chat exchange.
type Completion struct {
	Model     string
	Content   string
	Reasoning string
	Usage     types.TokenUsage
}

// ChatClient performs one chat exchange.
type ChatClient interface {
	Chat(ctx context.Context, msgs []Message, temperature float64) (*Completion, error)
	Model() string
}

// Config configures a Client.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client calls the Chat Completions endpoint of an OpenAI-compatible API.
type Client struct {
	http   *http.Client
	url    string
	apiKey string
	model  string
}

// NewClient creates a client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.APIKey == "" {
		cfg.APIKey = placeholderKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		url:    strings.TrimRight(cfg.Endpoint, "/") + "/chat/completions",
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type chatReq struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Chat sends msgs and returns the first choice.
func (c *Client) Chat(ctx context.Context, msgs []Message, temperature float64) (*Completion, error) {
	b, err := json.Marshal(chatReq{Model: c.model, Messages: msgs, Temperature: temperature})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("llm: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	model := out.Model
	if model == "" {
		model = c.model
	}
	usage := types.TokenUsage{
		Prompt:     out.Usage.PromptTokens,
		Completion: out.Usage.CompletionTokens,
		Total:      out.Usage.TotalTokens,
	}
	if usage.Total == 0 {
		usage.Total = usage.Prompt + usage.Completion
	}
	return &Completion{
		Model:     model,
		Content:   out.Choices[0].Message.Content,
		Reasoning: out.Choices[0].Message.ReasoningContent,
		Usage:     usage,
	}, nil
}
