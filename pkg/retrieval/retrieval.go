// Package retrieval turns a natural-language query into a ranked,
// adaptively-thresholded set of context chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wouteroostervld/ragweaver/pkg/chunker"
	"github.com/wouteroostervld/ragweaver/pkg/corpus"
	"github.com/wouteroostervld/ragweaver/pkg/llm"
)

// ErrNoRelevantContent is returned when retrieval has nothing to offer,
// which can only happen on an empty corpus: the fallback guarantee
// returns the best match whenever at least one chunk exists.
var ErrNoRelevantContent = errors.New("no relevant content found: the corpus is empty")

// Result is one retrieved chunk with its score
type Result struct {
	Chunk      chunker.Chunk
	SourceFile string
	Similarity float64 // cosine similarity in [-1, 1]
}

// Config holds retrieval tuning. The adaptive constants are policy, not
// contract; override them per pipeline when the defaults fit poorly.
type Config struct {
	TopK                int
	SimilarityThreshold float64
	AdaptiveScale       float64 // fraction of the best similarity kept as floor
	AdaptiveFloor       float64 // absolute lower bound for the adaptive threshold
	EmbedModel          string  // empty selects a model from the provider's listing
	Concurrency         int
	// ModelMatcher decides whether a model name looks like an embedding
	// model. Defaults to a substring match on "embed".
	ModelMatcher func(id string) bool
}

// Factory defaults, used by AutoConfigure to detect user overrides
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.5
)

// DefaultConfig returns factory defaults
func DefaultConfig() *Config {
	return &Config{
		TopK:                DefaultTopK,
		SimilarityThreshold: DefaultThreshold,
		AdaptiveScale:       0.7,
		AdaptiveFloor:       0.2,
		Concurrency:         5,
	}
}

// Engine scores corpus chunks against query embeddings
type Engine struct {
	provider llm.EmbeddingProvider
	models   llm.ModelLister // optional, for embed-model selection
	config   *Config
}

// New creates a retrieval engine. models may be nil when cfg.EmbedModel
// is set explicitly.
func New(cfg *Config, provider llm.EmbeddingProvider, models llm.ModelLister) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ModelMatcher == nil {
		cfg.ModelMatcher = func(id string) bool {
			return strings.Contains(strings.ToLower(id), "embed")
		}
	}
	return &Engine{provider: provider, models: models, config: cfg}
}

// Config exposes the engine's live configuration
func (e *Engine) Config() *Config { return e.config }

// scored is one flattened (chunk, embedding, source) tuple with its score
type scored struct {
	chunk      chunker.Chunk
	sourceFile string
	similarity float64
}

// Retrieve embeds the query, ranks every corpus chunk by cosine
// similarity and returns the accepted top-K.
func (e *Engine) Retrieve(ctx context.Context, query string, files []corpus.VectorizedFile) ([]Result, error) {
	if countChunks(files) == 0 {
		return nil, ErrNoRelevantContent
	}

	model, err := e.embedModel(ctx)
	if err != nil {
		return nil, err
	}

	embeddings, err := e.provider.Embed(ctx, model, []string{query}, e.config.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVec := embeddings[0]

	// Flatten and score
	var tuples []scored
	for _, f := range files {
		for _, ec := range f.Chunks {
			tuples = append(tuples, scored{
				chunk:      ec.Chunk,
				sourceFile: f.SourceFile,
				similarity: CosineSimilarity(queryVec, ec.Embedding.Values),
			})
		}
	}

	sort.SliceStable(tuples, func(i, j int) bool {
		return tuples[i].similarity > tuples[j].similarity
	})

	// The adaptive threshold tracks corpus density; min with the user
	// threshold so adaptation never raises the bar above what was asked.
	adaptive := math.Max(tuples[0].similarity*e.config.AdaptiveScale, e.config.AdaptiveFloor)
	effective := math.Min(e.config.SimilarityThreshold, adaptive)

	var results []Result
	for _, t := range tuples {
		if len(results) >= e.config.TopK {
			break
		}
		if t.similarity < effective {
			break // sorted descending, nothing further qualifies
		}
		results = append(results, Result{
			Chunk:      t.chunk,
			SourceFile: t.sourceFile,
			Similarity: t.similarity,
		})
	}

	// Fallback guarantee: a weak answer beats an empty one
	if len(results) == 0 {
		best := tuples[0]
		results = append(results, Result{
			Chunk:      best.chunk,
			SourceFile: best.sourceFile,
			Similarity: best.similarity,
		})
	}

	return results, nil
}

// embedModel resolves the embedding model: explicit config wins,
// otherwise the provider's lowest-ID model matching the embedding
// naming convention.
func (e *Engine) embedModel(ctx context.Context) (string, error) {
	if e.config.EmbedModel != "" {
		return e.config.EmbedModel, nil
	}
	if e.models == nil {
		return "", fmt.Errorf("no embedding model configured and no model listing available")
	}

	models, err := e.models.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list models: %w", err)
	}

	var candidates []string
	for _, m := range models {
		if e.config.ModelMatcher(m.ID) {
			candidates = append(candidates, m.ID)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("provider offers no embedding model")
	}
	sort.Strings(candidates)
	return candidates[0], nil
}

// CosineSimilarity computes dot(a,b) / (|a|*|b|). Mismatched dimensions
// or a zero vector score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func countChunks(files []corpus.VectorizedFile) int {
	n := 0
	for _, f := range files {
		n += len(f.Chunks)
	}
	return n
}
