package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wouteroostervld/ragweaver/pkg/chat"
	"github.com/wouteroostervld/ragweaver/pkg/corpus"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
	"github.com/wouteroostervld/ragweaver/pkg/resolver"
	"github.com/wouteroostervld/ragweaver/pkg/retrieval"
)

// ChatStage answers user queries against the vectorized corpus its
// upstream embed stages produce. A trigger run refreshes the corpus
// snapshot; Ask serves queries against the latest snapshot.
type ChatStage struct {
	Base
	res      *resolver.Resolver
	engine   *retrieval.Engine
	composer *chat.Composer
	history  *chat.History
	autoTune bool

	mu    sync.RWMutex
	files []corpus.VectorizedFile
	cred  *resolver.ProviderConfig
}

func NewChatStage(id string, store graph.Store, res *resolver.Resolver, engine *retrieval.Engine, composer *chat.Composer, autoTune bool, opts Options) *ChatStage {
	return &ChatStage{
		Base:     newBase(id, store, opts),
		res:      res,
		engine:   engine,
		composer: composer,
		history:  chat.NewHistory(),
		autoTune: autoTune,
	}
}

func (s *ChatStage) History() *chat.History { return s.history }

// Reset drops the conversation and the corpus snapshot. The next run
// rebuilds the snapshot from upstream.
func (s *ChatStage) Reset() {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
	s.history.Clear()
}

func (s *ChatStage) Ready() bool {
	_, err := s.res.Resolve(s.id, resolver.KindVectorized)
	return err == nil
}

// Run refreshes the corpus snapshot from upstream embed stages
func (s *ChatStage) Run(ctx context.Context) error {
	payload, err := s.res.Resolve(s.id, resolver.KindVectorized)
	if err != nil {
		return fmt.Errorf("chat stage %s: %w", s.id, err)
	}

	s.mu.Lock()
	s.files = payload.Vectorized
	// An upstream credential rebuilds the retrieval and chat clients
	// against the published endpoint
	if s.dial != nil {
		if cred := upstreamCredential(s.res, s.id); cred != nil && !sameCredential(cred, s.cred) {
			s.log.Info("Using upstream credential", "endpoint", cred.Endpoint)
			client := s.dial(*cred)
			s.engine = retrieval.New(s.engine.Config(), client, client)
			s.composer = chat.New(s.composer.Config(), client)
			s.cred = cred
		}
	}
	engine := s.engine
	s.mu.Unlock()

	if s.autoTune {
		engine.AutoConfigure(payload.Vectorized, retrieval.DefaultAutoTuning())
	}

	chunks := 0
	for _, f := range payload.Vectorized {
		chunks += len(f.Chunks)
	}
	s.log.Info("Refreshed chat corpus", "files", len(payload.Vectorized), "chunks", chunks)
	s.commit.Queue(map[string]any{
		"corpusFiles":  len(payload.Vectorized),
		"corpusChunks": chunks,
	})
	return nil
}

// Ask retrieves relevant chunks for the query and completes a
// conversation turn. An empty corpus degrades to an ungrounded answer
// rather than failing the query.
func (s *ChatStage) Ask(ctx context.Context, query string) (chat.Turn, error) {
	s.mu.RLock()
	files := s.files
	engine := s.engine
	composer := s.composer
	s.mu.RUnlock()

	results, err := engine.Retrieve(ctx, query, files)
	if err != nil {
		if !errors.Is(err, retrieval.ErrNoRelevantContent) {
			return chat.Turn{}, fmt.Errorf("chat stage %s: %w", s.id, err)
		}
		// Degrading to an ungrounded answer must be visible, not silent
		s.log.Info("No relevant content, answering without source context", "query", query)
	}

	turn, err := composer.Converse(ctx, query, results, s.history)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("chat stage %s: %w", s.id, err)
	}
	return turn, nil
}
