package ai

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// LMStudioClient wraps the LM Studio OpenAI-compatible REST API.
type LMStudioClient struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// LMStudioConfig holds LM Studio-specific configuration.
type LMStudioConfig struct {
	BaseURL        string // e.g., "http://localhost:1234"
	Model          string // e.g., "local-model"
	TimeoutSeconds int
	MaxTokens      int
	Temperature    float64
}

// openAIChatRequest is the request body for the OpenAI-compatible
// /v1/chat/completions endpoint.
type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	Stream      bool            `json:"stream"`
}

// openAIMessage represents a chat message in OpenAI format.
type openAIMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// openAIChatResponse is the response from the OpenAI-compatible
// /v1/chat/completions endpoint.
type openAIChatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewLMStudioClient creates a new LM Studio client.
func NewLMStudioClient(cfg LMStudioConfig) (*LMStudioClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:1234"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	if cfg.Model == "" {
		// LM Studio uses "local-model" for the currently loaded model.
		cfg.Model = "local-model"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 300
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8000
	}

	return &LMStudioClient{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Invoke sends one prompt pair to LM Studio.
func (c *LMStudioClient) Invoke(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	request := openAIChatRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        0.9,
		Stream:      false,
	}

	url := c.baseURL + "/v1/chat/completions"
	response, err := doJSONPost[openAIChatResponse](ctx, c.httpClient, c.Name(), url, request)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, &BackendError{Provider: c.Name(), Message: "empty response (no choices)"}
	}
	responseText := response.Choices[0].Message.Content
	if responseText == "" {
		return nil, &BackendError{Provider: c.Name(), Message: "empty response"}
	}

	return &Completion{
		Text:         responseText,
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}, nil
}

// Model returns the configured model identifier.
func (c *LMStudioClient) Model() string { return c.model }

// Name returns the name of the provider.
func (c *LMStudioClient) Name() string { return "LMStudio" }

// Ensure LMStudioClient implements Provider interface
var _ Provider = (*LMStudioClient)(nil)
