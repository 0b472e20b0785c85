package stage

import (
	"context"
	"fmt"

	"github.com/wouteroostervld/ragweaver/pkg/chunker"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
	"github.com/wouteroostervld/ragweaver/pkg/resolver"
)

// ChunkStage splits upstream files into overlapping retrieval units
type ChunkStage struct {
	Base
	res      *resolver.Resolver
	splitter Chunkable
}

func NewChunkStage(id string, store graph.Store, res *resolver.Resolver, splitter Chunkable, opts Options) *ChunkStage {
	if splitter == nil {
		splitter = chunker.New(chunker.DefaultConfig())
	}
	return &ChunkStage{Base: newBase(id, store, opts), res: res, splitter: splitter}
}

func (s *ChunkStage) Ready() bool {
	_, err := s.res.Resolve(s.id, resolver.KindFiles)
	return err == nil
}

func (s *ChunkStage) Run(ctx context.Context) error {
	payload, err := s.res.Resolve(s.id, resolver.KindFiles)
	if err != nil {
		return fmt.Errorf("chunk stage %s: %w", s.id, err)
	}

	var chunks []chunker.Chunk
	for _, f := range payload.Files {
		chunks = append(chunks, s.splitter.Split(f.Content, f.Path)...)
	}

	s.log.Info("Chunked files", "files", len(payload.Files), "chunks", len(chunks))
	s.commit.Queue(map[string]any{"chunks": chunks})
	return nil
}
