package llm

import (
	"context"
	"sync"
)

// MockProvider is a configurable in-memory implementation of the
// provider interfaces for testing
type MockProvider struct {
	mu sync.Mutex

	// Configurable responses
	EmbedFunc      func(ctx context.Context, model string, texts []string) ([][]float32, error)
	CompleteFunc   func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ListModelsFunc func(ctx context.Context) ([]Model, error)

	// Call tracking
	EmbedCalls    []EmbedCall
	CompleteCalls []ChatRequest
	ListCalls     int
}

type EmbedCall struct {
	Model string
	Texts []string
}

// NewMockProvider creates a mock with workable default behaviors
func NewMockProvider() *MockProvider {
	return &MockProvider{
		EmbedFunc: func(ctx context.Context, model string, texts []string) ([][]float32, error) {
			embeddings := make([][]float32, len(texts))
			for i, text := range texts {
				// Deterministic dummy vector derived from content length
				dim := 8
				vec := make([]float32, dim)
				for j := range vec {
					vec[j] = float32((len(text)+i+j)%7) / 7.0
				}
				embeddings[i] = vec
			}
			return embeddings, nil
		},
		CompleteFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{Content: "mock response", TotalTokens: 42}, nil
		},
		ListModelsFunc: func(ctx context.Context) ([]Model, error) {
			return []Model{
				{ID: "text-embedding-3-small"},
				{ID: "gpt-4o-mini"},
			}, nil
		},
	}
}

func (m *MockProvider) Embed(ctx context.Context, model string, texts []string, concurrency int) ([][]float32, error) {
	m.mu.Lock()
	m.EmbedCalls = append(m.EmbedCalls, EmbedCall{Model: model, Texts: texts})
	m.mu.Unlock()
	return m.EmbedFunc(ctx, model, texts)
}

func (m *MockProvider) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]Model, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()
	return m.ListModelsFunc(ctx)
}
