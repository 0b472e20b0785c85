package stage

import (
	"context"
	"fmt"

	"github.com/wouteroostervld/ragweaver/pkg/graph"
	"github.com/wouteroostervld/ragweaver/pkg/llm"
)

// CredentialConfig holds the provider coordinates a credential stage
// publishes to its consumers.
type CredentialConfig struct {
	Endpoint string
	APIKey   string
}

// CredentialStage validates provider access and publishes endpoint,
// key and the provider's current model inventory. Downstream stages
// read all three through the resolver instead of holding their own
// copies of the credentials.
type CredentialStage struct {
	Base
	cfg    CredentialConfig
	lister llm.ModelLister
}

func NewCredentialStage(id string, store graph.Store, cfg CredentialConfig, lister llm.ModelLister, opts Options) *CredentialStage {
	return &CredentialStage{Base: newBase(id, store, opts), cfg: cfg, lister: lister}
}

func (s *CredentialStage) Ready() bool {
	return s.cfg.Endpoint != "" && s.cfg.APIKey != ""
}

func (s *CredentialStage) Run(ctx context.Context) error {
	if s.cfg.Endpoint == "" || s.cfg.APIKey == "" {
		return fmt.Errorf("credential stage %s: %w", s.id, ErrConfigMissing)
	}

	var models []string
	if s.lister != nil {
		listed, err := s.lister.ListModels(ctx)
		if err != nil {
			return fmt.Errorf("credential stage %s: list models: %w", s.id, err)
		}
		for _, m := range listed {
			models = append(models, m.ID)
		}
	}

	s.log.Info("Published provider credentials", "endpoint", s.cfg.Endpoint, "models", len(models))
	s.commit.Queue(map[string]any{
		"endpoint":        s.cfg.Endpoint,
		"apiKey":          s.cfg.APIKey,
		"availableModels": models,
	})
	return nil
}
