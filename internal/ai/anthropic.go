package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/liushuangls/go-anthropic/v2"

	internalerrors "github.com/rootcauseai/rootcause-go/internal/errors"
)

// AnthropicClient wraps the Anthropic API client.
type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float32
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey         string
	Model          string
	ProxyURL       string // optional
	TimeoutSeconds int
	MaxTokens      int
	Temperature    float64
}

// NewAnthropicClient creates a Claude-backed provider.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 120
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	var httpClient *http.Client
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
			return nil, fmt.Errorf("proxy URL must use http or https scheme, got: %s", proxyURL.Scheme)
		}
		httpClient = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
			Timeout:   timeout,
		}
	} else {
		httpClient = &http.Client{Timeout: timeout}
	}

	client := anthropic.NewClient(
		cfg.APIKey,
		anthropic.WithHTTPClient(httpClient),
	)

	return &AnthropicClient{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

// Invoke sends one prompt pair to Claude and returns the response text
// with token usage.
func (c *AnthropicClient) Invoke(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	request := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(userPrompt),
				},
			},
		},
		System:    systemPrompt,
		MaxTokens: c.maxTokens,
	}
	if c.temperature > 0 {
		t := c.temperature
		request.Temperature = &t
	}

	response, err := c.client.CreateMessages(ctx, request)
	if err != nil {
		return nil, c.wrapError(err)
	}

	if len(response.Content) == 0 {
		return nil, &BackendError{Provider: c.Name(), Message: "empty response"}
	}

	responseText := ""
	for _, content := range response.Content {
		if content.Type == "text" && content.Text != nil {
			responseText += *content.Text
		}
	}
	if responseText == "" {
		return nil, &BackendError{Provider: c.Name(), Message: "response carried no text content"}
	}

	return &Completion{
		Text:         responseText,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}, nil
}

// wrapError maps SDK errors to *BackendError. The underlying error is
// sanitized so credentials never reach logs or responses.
func (c *AnthropicClient) wrapError(err error) error {
	sanitized := internalerrors.Wrapf(err, "API call failed")

	status := 0
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}
	switch {
	case IsRateLimited(err):
		status = http.StatusTooManyRequests
	case IsOverloaded(err):
		status = http.StatusServiceUnavailable
	}

	return &BackendError{
		Provider: c.Name(),
		Status:   status,
		Message:  "API call failed",
		Err:      sanitized,
	}
}

// Model returns the configured model identifier.
func (c *AnthropicClient) Model() string { return c.model }

// Name returns the name of the provider.
func (c *AnthropicClient) Name() string { return "Anthropic" }

// Ensure AnthropicClient implements Provider interface
var _ Provider = (*AnthropicClient)(nil)
