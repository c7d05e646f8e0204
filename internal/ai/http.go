package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// doJSONPost performs a JSON POST request and unmarshals the response.
// This is a shared helper for HTTP-based LLM clients (Ollama, LM
// Studio). Transport failures and non-200 statuses come back as
// *BackendError so callers can classify them.
func doJSONPost[T any](ctx context.Context, client *http.Client, provider, url string, request any) (*T, error) {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &BackendError{Provider: provider, Err: err}
	}
	if resp == nil {
		return nil, &BackendError{Provider: provider, Message: "nil response"}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{
			Provider: provider,
			Status:   resp.StatusCode,
			Message:  string(body),
		}
	}

	var response T
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}
