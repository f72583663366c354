package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ProviderOllama = "ollama"

// Ollama is a provider for a local Ollama server.
type Ollama struct {
	baseURL       string
	model         string
	fallbackModel string
	client        *http.Client
}

func NewOllama(baseURL, model, fallbackModel string, timeout time.Duration) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if fallbackModel == "" {
		fallbackModel = model
	}
	return &Ollama{
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		fallbackModel: fallbackModel,
		client:        &http.Client{Timeout: timeout},
	}
}

func (o *Ollama) Analyze(ctx context.Context, image []byte, _ string, useFallback bool) (*Result, error) {
	res, err := o.analyze(ctx, image, useFallback)
	if err != nil {
		return nil, &Error{Provider: ProviderOllama, Fallback: useFallback, Err: err}
	}
	return res, nil
}

func (o *Ollama) analyze(ctx context.Context, image []byte, useFallback bool) (*Result, error) {
	model := o.model
	if useFallback {
		model = o.fallbackModel
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  model,
		"prompt": Prompt(useFallback),
		"images": []string{base64.StdEncoding.EncodeToString(image)},
		"stream": false,
		"format": "json",
		"options": map[string]interface{}{
			"temperature": 0.2,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return ParseResponse(response.Response)
}
