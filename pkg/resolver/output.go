// Package resolver lets a consuming stage discover and normalize the
// output of whatever producer stages feed it, despite producers
// exposing heterogeneous, overlapping field shapes.
package resolver

import (
	"errors"

	"github.com/wouteroostervld/ragweaver/pkg/chunker"
	"github.com/wouteroostervld/ragweaver/pkg/corpus"
	"github.com/wouteroostervld/ragweaver/pkg/fetch"
)

// ErrUpstreamDataAbsent reports that a prerequisite stage hasn't
// produced output yet. It is a deferred-readiness state, not a failure:
// callers re-check on the next trigger or poll.
var ErrUpstreamDataAbsent = errors.New("upstream data not yet available")

// PayloadKind tags the normalized shape of a producer's output
type PayloadKind string

const (
	KindFiles      PayloadKind = "files"
	KindChunks     PayloadKind = "chunks"
	KindVectorized PayloadKind = "vectorized"
	KindCredential PayloadKind = "credential"
	KindText       PayloadKind = "text"
)

// ProviderConfig carries credentials and model inventory from a
// credential stage to its consumers. Never persisted outside the graph.
type ProviderConfig struct {
	Endpoint        string
	APIKey          string
	AvailableModels []string
}

// ProducerOutput is one producer's payload after adaptation. Exactly
// the field matching Kind is populated; consumers dispatch on the tag
// instead of probing field presence.
type ProducerOutput struct {
	Kind       PayloadKind
	SourceID   string
	Files      []fetch.File
	Chunks     []chunker.Chunk
	Vectorized []corpus.VectorizedFile
	Credential *ProviderConfig
	Text       string
}

// Payload is the merged view over all inbound producers of one kind.
// VectorizedBySource keys contributions by producing stage so that
// re-resolution replaces, never duplicates, a source's prior share.
type Payload struct {
	Kind               PayloadKind
	Files              []fetch.File
	Chunks             []chunker.Chunk
	Vectorized         []corpus.VectorizedFile
	VectorizedBySource map[string][]corpus.VectorizedFile
	Credential         *ProviderConfig
}
