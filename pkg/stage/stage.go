// Package stage implements the pipeline stage kinds. Each kind is a
// single parameterized implementation; behavioral variants are
// expressed through configuration and injected providers, not through
// subtypes. Stages read their inputs through the resolver, do their
// work, and publish output into their own graph node through a
// debounced committer.
package stage

import (
	"context"
	"log/slog"
	"time"

	"github.com/wouteroostervld/ragweaver/pkg/chat"
	"github.com/wouteroostervld/ragweaver/pkg/chunker"
	"github.com/wouteroostervld/ragweaver/pkg/fetch"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
	"github.com/wouteroostervld/ragweaver/pkg/llm"
	"github.com/wouteroostervld/ragweaver/pkg/resolver"
)

// Fetchable supplies source files
type Fetchable interface {
	Fetch(ctx context.Context) ([]fetch.File, error)
}

// Chunkable splits file content into retrieval units
type Chunkable interface {
	Split(content, source string) []chunker.Chunk
}

// Embeddable turns texts into vectors with bounded concurrency
type Embeddable interface {
	Embed(ctx context.Context, model string, texts []string, concurrency int) ([][]float32, error)
}

// Queryable answers a user question against whatever the stage knows
type Queryable interface {
	Ask(ctx context.Context, query string) (chat.Turn, error)
}

// Dialer builds a provider client from a credential a credential stage
// published at runtime.
type Dialer func(cred resolver.ProviderConfig) llm.Provider

// Options carries the settings every stage kind shares
type Options struct {
	Log         *slog.Logger
	CommitDelay time.Duration
	Disabled    bool
	// Dial lets provider-facing stages swap their client for one built
	// from an upstream credential node. Stages without a wired
	// credential keep their injected client.
	Dial Dialer
}

// Base holds the identity and plumbing common to all stage kinds
type Base struct {
	id       string
	log      *slog.Logger
	disabled bool
	commit   *Committer
	dial     Dialer
}

func newBase(id string, store graph.Store, opts Options) Base {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("stage", id)
	return Base{
		id:       id,
		log:      log,
		disabled: opts.Disabled,
		commit:   NewCommitter(store, id, opts.CommitDelay, log),
		dial:     opts.Dial,
	}
}

// upstreamCredential returns the credential an upstream credential
// stage published, or nil when none is wired in.
func upstreamCredential(res *resolver.Resolver, id string) *resolver.ProviderConfig {
	payload, err := res.Resolve(id, resolver.KindCredential)
	if err != nil || payload.Credential == nil {
		return nil
	}
	return payload.Credential
}

func sameCredential(a, b *resolver.ProviderConfig) bool {
	return a != nil && b != nil && a.Endpoint == b.Endpoint && a.APIKey == b.APIKey
}

func (b *Base) ID() string     { return b.id }
func (b *Base) Disabled() bool { return b.disabled }

// Commit exposes the stage's committer, mainly for flushing in tests
// and teardown paths.
func (b *Base) Commit() *Committer { return b.commit }
