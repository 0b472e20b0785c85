package resolver

import (
	"fmt"
	"log/slog"

	"github.com/wouteroostervld/ragweaver/pkg/corpus"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
)

type Resolver struct {
	store graph.Store
	log   *slog.Logger
}

func New(store graph.Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, log: log}
}

// Resolve gathers everything of the wanted kind produced by the direct
// upstream neighbours of stageID. Producers whose data is missing or of
// a different kind are skipped with a log line rather than failing the
// whole resolution. Returns ErrUpstreamDataAbsent when nothing usable
// exists upstream.
//
// Resolution is rebuilt from current graph state on every call, so
// re-resolving after a producer reruns replaces that producer's
// contribution instead of duplicating it.
func (r *Resolver) Resolve(stageID string, want PayloadKind) (*Payload, error) {
	payload := &Payload{Kind: want}
	found := false
	for _, edge := range r.store.InEdges(stageID) {
		node, ok := r.store.Node(edge.Source)
		if !ok {
			r.log.Warn("Upstream node missing", "stage", stageID, "source", edge.Source)
			continue
		}
		out, ok := adaptProducer(node)
		if !ok {
			r.log.Debug("Upstream has no output yet", "stage", stageID, "source", node.ID)
			continue
		}
		if !merge(payload, out, want) {
			r.log.Debug("Upstream output kind mismatch",
				"stage", stageID, "source", node.ID, "got", out.Kind, "want", want)
			continue
		}
		found = true
	}

	if !found {
		return nil, fmt.Errorf("stage %s: %w", stageID, ErrUpstreamDataAbsent)
	}
	return payload, nil
}

// merge folds a producer output into the payload when it satisfies the
// wanted kind. Text degrades into the structured kinds so a producer
// exposing only raw content still feeds file and chunk consumers.
func merge(p *Payload, out ProducerOutput, want PayloadKind) bool {
	switch want {
	case KindFiles:
		switch out.Kind {
		case KindFiles:
			p.Files = append(p.Files, out.Files...)
			return true
		case KindText:
			degraded, ok := adaptFiles(graph.Node{ID: out.SourceID, Data: map[string]any{"content": out.Text}})
			if ok {
				p.Files = append(p.Files, degraded.Files...)
				return true
			}
		}
	case KindChunks:
		switch out.Kind {
		case KindChunks:
			p.Chunks = append(p.Chunks, out.Chunks...)
			return true
		case KindText:
			degraded, ok := adaptChunks(graph.Node{ID: out.SourceID, Data: map[string]any{"content": out.Text}})
			if ok {
				p.Chunks = append(p.Chunks, degraded.Chunks...)
				return true
			}
		}
	case KindVectorized:
		if out.Kind == KindVectorized {
			p.Vectorized = append(p.Vectorized, out.Vectorized...)
			if p.VectorizedBySource == nil {
				p.VectorizedBySource = map[string][]corpus.VectorizedFile{}
			}
			p.VectorizedBySource[out.SourceID] = out.Vectorized
			return true
		}
	case KindCredential:
		if out.Kind == KindCredential {
			// First credential wins; extra credential producers are ignored
			if p.Credential == nil {
				p.Credential = out.Credential
			}
			return true
		}
	}
	return false
}
