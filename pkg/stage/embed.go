package stage

import (
	"context"
	"fmt"
	"sort"

	"github.com/wouteroostervld/ragweaver/pkg/corpus"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
	"github.com/wouteroostervld/ragweaver/pkg/resolver"
)

// EmbedConfig parameterizes one embed stage
type EmbedConfig struct {
	Model       string
	Concurrency int
}

const defaultEmbedConcurrency = 4

// EmbedStage vectorizes upstream chunks. Output pairs each chunk with
// its embedding, grouped per originating file; the pairs are immutable
// once committed. An optional corpus store receives the same output for
// retrieval across process restarts.
type EmbedStage struct {
	Base
	res      *resolver.Resolver
	provider Embeddable
	corpus   corpus.Store
	cfg      EmbedConfig
	cred     *resolver.ProviderConfig
}

func NewEmbedStage(id string, store graph.Store, res *resolver.Resolver, provider Embeddable, corpusStore corpus.Store, cfg EmbedConfig, opts Options) *EmbedStage {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultEmbedConcurrency
	}
	return &EmbedStage{
		Base:     newBase(id, store, opts),
		res:      res,
		provider: provider,
		corpus:   corpusStore,
		cfg:      cfg,
	}
}

func (s *EmbedStage) Ready() bool {
	_, err := s.res.Resolve(s.id, resolver.KindChunks)
	return err == nil
}

func (s *EmbedStage) Run(ctx context.Context) error {
	if s.cfg.Model == "" {
		return fmt.Errorf("embed stage %s: model: %w", s.id, ErrConfigMissing)
	}
	payload, err := s.res.Resolve(s.id, resolver.KindChunks)
	if err != nil {
		return fmt.Errorf("embed stage %s: %w", s.id, err)
	}

	// A wired credential stage overrides the injected client
	if s.dial != nil {
		if cred := upstreamCredential(s.res, s.id); cred != nil && !sameCredential(cred, s.cred) {
			s.log.Info("Using upstream credential", "endpoint", cred.Endpoint)
			s.provider = s.dial(*cred)
			s.cred = cred
		}
	}

	texts := make([]string, len(payload.Chunks))
	for i, c := range payload.Chunks {
		texts[i] = c.Content
	}
	vectors, err := s.provider.Embed(ctx, s.cfg.Model, texts, s.cfg.Concurrency)
	if err != nil {
		return fmt.Errorf("embed stage %s: %w", s.id, err)
	}
	if len(vectors) != len(payload.Chunks) {
		return fmt.Errorf("embed stage %s: provider returned %d vectors for %d chunks",
			s.id, len(vectors), len(payload.Chunks))
	}

	// Group chunk+vector pairs under their originating file
	bySource := make(map[string][]corpus.EmbeddedChunk)
	for i, c := range payload.Chunks {
		source := c.Metadata["source"]
		bySource[source] = append(bySource[source], corpus.EmbeddedChunk{
			Chunk:     c,
			Embedding: corpus.NewEmbedding(vectors[i]),
		})
	}
	sources := make([]string, 0, len(bySource))
	for source := range bySource {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	files := make([]corpus.VectorizedFile, 0, len(sources))
	for _, source := range sources {
		files = append(files, corpus.VectorizedFile{SourceFile: source, Chunks: bySource[source]})
	}

	s.log.Info("Embedded chunks", "chunks", len(payload.Chunks), "files", len(files), "model", s.cfg.Model)
	if s.corpus != nil {
		if err := s.corpus.Put(s.id, files); err != nil {
			return fmt.Errorf("embed stage %s: persist corpus: %w", s.id, err)
		}
	}
	s.commit.Queue(map[string]any{"vectorizedFiles": files})
	return nil
}
