package stage

import (
	"context"

	"github.com/wouteroostervld/ragweaver/pkg/graph"
)

// ManualStage produces nothing; it exists so a user action can start a
// cascade. Its run always succeeds and its only effect is the trigger
// propagation the dispatcher performs afterwards.
type ManualStage struct {
	Base
}

func NewManualStage(id string, store graph.Store, opts Options) *ManualStage {
	return &ManualStage{Base: newBase(id, store, opts)}
}

func (s *ManualStage) Ready() bool { return true }

func (s *ManualStage) Run(ctx context.Context) error {
	s.log.Info("Manual trigger fired")
	return nil
}
