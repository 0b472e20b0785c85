// Package openai implements the llm provider interfaces against any
// OpenAI-compatible HTTP endpoint (OpenAI, OpenRouter, local gateways).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wouteroostervld/ragweaver/pkg/llm"
)

// Config for the OpenAI-compatible client
type Config struct {
	BaseURL string        // API base URL (e.g., "https://api.openai.com/v1")
	APIKey  string        // Bearer token
	Timeout time.Duration // HTTP timeout
}

// Client wraps the OpenAI-compatible HTTP API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new client
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Embed generates embeddings for multiple texts in parallel, bounded by
// concurrency. Order of the result matches the order of texts.
func (c *Client) Embed(ctx context.Context, model string, texts []string, concurrency int) ([][]float32, error) {
	if concurrency <= 0 {
		concurrency = 5
	}

	results := make(chan struct {
		index     int
		embedding []float32
		err       error
	}, len(texts))

	semaphore := make(chan struct{}, concurrency)

	for i, text := range texts {
		go func(index int, content string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			req := embeddingRequest{Model: model, Input: content}
			var resp embeddingResponse
			err := c.post(ctx, "/embeddings", req, &resp)
			if err == nil && len(resp.Data) == 0 {
				err = fmt.Errorf("empty embedding response")
			}
			var embedding []float32
			if err == nil {
				embedding = resp.Data[0].Embedding
			}
			results <- struct {
				index     int
				embedding []float32
				err       error
			}{index, embedding, err}
		}(i, text)
	}

	embeddings := make([][]float32, len(texts))
	for i := 0; i < len(texts); i++ {
		res := <-results
		if res.err != nil {
			return nil, fmt.Errorf("embedding failed for text %d: %w", res.index, res.err)
		}
		embeddings[res.index] = res.embedding
	}

	return embeddings, nil
}

// Complete submits a chat completion request
func (c *Client) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion response")
	}

	return &llm.ChatResponse{
		Content:     resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

// ListModels enumerates models available at the endpoint
func (c *Client) ListModels(ctx context.Context) ([]llm.Model, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readProviderError(resp)
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	models := make([]llm.Model, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, llm.Model{ID: m.ID})
	}
	return models, nil
}

// post executes one JSON POST against the endpoint
func (c *Client) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readProviderError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(respBody)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &llm.ProviderError{StatusCode: resp.StatusCode, Body: string(body)}
}
