package stage

import (
	"context"
	"fmt"

	"github.com/wouteroostervld/ragweaver/pkg/graph"
)

// FetchStage pulls source files from a provider and publishes them as
// its output. The provider decides where files come from; a directory
// reader and a repository host reader are interchangeable here.
type FetchStage struct {
	Base
	provider Fetchable
}

func NewFetchStage(id string, store graph.Store, provider Fetchable, opts Options) *FetchStage {
	return &FetchStage{Base: newBase(id, store, opts), provider: provider}
}

func (s *FetchStage) Ready() bool { return s.provider != nil }

func (s *FetchStage) Run(ctx context.Context) error {
	if s.provider == nil {
		return fmt.Errorf("fetch stage %s: %w", s.id, ErrConfigMissing)
	}
	files, err := s.provider.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch stage %s: %w", s.id, err)
	}
	s.log.Info("Fetched source files", "count", len(files))
	s.commit.Queue(map[string]any{"files": files})
	return nil
}
