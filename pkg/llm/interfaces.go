package llm

import "context"

// EmbeddingProvider generates vector embeddings from text
type EmbeddingProvider interface {
	// Embed generates embeddings for multiple texts in parallel
	Embed(ctx context.Context, model string, texts []string, concurrency int) ([][]float32, error)
}

// ChatProvider produces chat completions
type ChatProvider interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ModelLister enumerates the models available at a provider endpoint
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}

// Provider bundles every capability a full provider client offers.
// Stages that dial a client from a runtime credential get all three
// from the same endpoint.
type Provider interface {
	EmbeddingProvider
	ChatProvider
	ModelLister
}
