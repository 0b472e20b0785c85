package stage

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/wouteroostervld/ragweaver/pkg/chat"
	"github.com/wouteroostervld/ragweaver/pkg/chunker"
	"github.com/wouteroostervld/ragweaver/pkg/corpus"
	"github.com/wouteroostervld/ragweaver/pkg/fetch"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
	"github.com/wouteroostervld/ragweaver/pkg/llm"
	"github.com/wouteroostervld/ragweaver/pkg/resolver"
	"github.com/wouteroostervld/ragweaver/pkg/retrieval"
)

type staticProvider struct {
	files []fetch.File
	err   error
}

func (p *staticProvider) Fetch(ctx context.Context) ([]fetch.File, error) {
	return p.files, p.err
}

func pipelineStore(t *testing.T, nodes []graph.Node, edges []graph.Edge) graph.Store {
	t.Helper()
	store := graph.NewMemStore()
	for _, n := range nodes {
		if err := store.AddNode(n); err != nil {
			t.Fatalf("add node %s: %v", n.ID, err)
		}
	}
	for _, e := range edges {
		if err := store.AddEdge(e); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}
	return store
}

// runAndFlush executes a stage and forces its queued commit through,
// the way the one-shot CLI pass does between stages.
func runAndFlush(t *testing.T, s interface {
	Run(ctx context.Context) error
	Commit() *Committer
}) {
	t.Helper()
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s.Commit().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func nodeData(t *testing.T, store graph.Store, id string) map[string]any {
	t.Helper()
	n, ok := store.Node(id)
	if !ok {
		t.Fatalf("node %s missing", id)
	}
	return n.Data
}

func TestFetchStagePublishesFiles(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "fetch1", Kind: graph.KindSourceFetch}}, nil)
	files := []fetch.File{{Name: "a.go", Path: "a.go", Content: "package a", Size: 9}}
	s := NewFetchStage("fetch1", store, &staticProvider{files: files}, Options{})

	runAndFlush(t, s)
	got, ok := nodeData(t, store, "fetch1")["files"].([]fetch.File)
	if !ok || len(got) != 1 || got[0].Name != "a.go" {
		t.Errorf("unexpected committed files: %v", got)
	}
}

func TestFetchStageProviderFailure(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "fetch1", Kind: graph.KindSourceFetch}}, nil)
	s := NewFetchStage("fetch1", store, &staticProvider{err: errors.New("host down")}, Options{})

	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected provider error to surface")
	}
	if _, committed := nodeData(t, store, "fetch1")["files"]; committed {
		t.Error("failed run must not commit output")
	}
}

func TestParseStageRecordsPerFileFailures(t *testing.T) {
	store := pipelineStore(t,
		[]graph.Node{
			{ID: "fetch1", Kind: graph.KindSourceFetch, Data: map[string]any{
				"files": []fetch.File{
					{Name: "good.md", Path: "good.md", Content: "\ufeffhello\r\nworld"},
					{Name: "bad.bin", Path: "bad.bin", Content: "\xff\xfe broken"},
				},
			}},
			{ID: "parse1", Kind: graph.KindParse},
		},
		[]graph.Edge{{Source: "fetch1", Target: "parse1"}},
	)
	res := resolver.New(store, nil)
	s := NewParseStage("parse1", store, res, nil, Options{})

	if !s.Ready() {
		t.Fatal("stage should be ready with upstream files present")
	}
	runAndFlush(t, s)

	data := nodeData(t, store, "parse1")
	parsed := data["files"].([]fetch.File)
	if len(parsed) != 1 || parsed[0].Content != "hello\nworld" {
		t.Errorf("normalization wrong: %+v", parsed)
	}
	failures := data["parseFailures"].([]ParseFailure)
	if len(failures) != 1 || failures[0].File != "bad.bin" {
		t.Errorf("expected one recorded failure for bad.bin, got %+v", failures)
	}
}

func TestChunkStageSplitsUpstreamFiles(t *testing.T) {
	content := "line one\nline two\nline three\n"
	store := pipelineStore(t,
		[]graph.Node{
			{ID: "fetch1", Kind: graph.KindSourceFetch, Data: map[string]any{
				"files": []fetch.File{{Name: "a.md", Path: "a.md", Content: content}},
			}},
			{ID: "chunk1", Kind: graph.KindChunk},
		},
		[]graph.Edge{{Source: "fetch1", Target: "chunk1"}},
	)
	res := resolver.New(store, nil)
	s := NewChunkStage("chunk1", store, res, nil, Options{})

	runAndFlush(t, s)
	chunks, ok := nodeData(t, store, "chunk1")["chunks"].([]chunker.Chunk)
	if !ok || len(chunks) == 0 {
		t.Fatalf("expected committed chunks, got %v", chunks)
	}
	for _, c := range chunks {
		if c.Metadata["source"] != "a.md" {
			t.Errorf("chunk lost its source: %+v", c.Metadata)
		}
	}
}

func TestChunkStageNotReadyWithoutUpstream(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "chunk1", Kind: graph.KindChunk}}, nil)
	s := NewChunkStage("chunk1", store, resolver.New(store, nil), nil, Options{})
	if s.Ready() {
		t.Error("stage with no upstream data should not be ready")
	}
}

func TestEmbedStageGroupsBySourceAndPersists(t *testing.T) {
	store := pipelineStore(t,
		[]graph.Node{
			{ID: "chunk1", Kind: graph.KindChunk, Data: map[string]any{
				"chunks": []chunker.Chunk{
					{Content: "alpha", Index: 0, Metadata: map[string]string{"source": "b.go"}},
					{Content: "beta", Index: 0, Metadata: map[string]string{"source": "a.go"}},
					{Content: "gamma", Index: 1, Metadata: map[string]string{"source": "a.go"}},
				},
			}},
			{ID: "embed1", Kind: graph.KindEmbed},
		},
		[]graph.Edge{{Source: "chunk1", Target: "embed1"}},
	)
	res := resolver.New(store, nil)
	mock := llm.NewMockProvider()
	corpusStore := corpus.NewMemoryStore()
	s := NewEmbedStage("embed1", store, res, mock, corpusStore,
		EmbedConfig{Model: "text-embedding-3-small"}, Options{})

	runAndFlush(t, s)

	files := nodeData(t, store, "embed1")["vectorizedFiles"].([]corpus.VectorizedFile)
	if len(files) != 2 {
		t.Fatalf("expected 2 vectorized files, got %d", len(files))
	}
	// Sources sorted for stable output
	if files[0].SourceFile != "a.go" || files[1].SourceFile != "b.go" {
		t.Errorf("unexpected file order: %s, %s", files[0].SourceFile, files[1].SourceFile)
	}
	if len(files[0].Chunks) != 2 || files[0].Chunks[0].Embedding.Dimensions == 0 {
		t.Errorf("a.go should carry two embedded chunks: %+v", files[0].Chunks)
	}

	n, err := corpusStore.CountChunks()
	if err != nil || n != 3 {
		t.Errorf("corpus store should hold all 3 chunks, got %d (%v)", n, err)
	}
	if len(mock.EmbedCalls) != 1 || mock.EmbedCalls[0].Model != "text-embedding-3-small" {
		t.Errorf("unexpected embed calls: %+v", mock.EmbedCalls)
	}
}

func TestEmbedStageRequiresModel(t *testing.T) {
	store := pipelineStore(t,
		[]graph.Node{
			{ID: "chunk1", Kind: graph.KindChunk, Data: map[string]any{
				"chunks": []chunker.Chunk{{Content: "x", Metadata: map[string]string{"source": "a"}}},
			}},
			{ID: "embed1", Kind: graph.KindEmbed},
		},
		[]graph.Edge{{Source: "chunk1", Target: "embed1"}},
	)
	s := NewEmbedStage("embed1", store, resolver.New(store, nil), llm.NewMockProvider(), nil, EmbedConfig{}, Options{})

	err := s.Run(context.Background())
	if !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

func TestCredentialStagePublishesProviderConfig(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "cred1", Kind: graph.KindCredential}}, nil)
	mock := llm.NewMockProvider()
	s := NewCredentialStage("cred1", store,
		CredentialConfig{Endpoint: "https://api.example.com/v1", APIKey: "sk-test"}, mock, Options{})

	runAndFlush(t, s)
	data := nodeData(t, store, "cred1")
	if data["endpoint"] != "https://api.example.com/v1" || data["apiKey"] != "sk-test" {
		t.Errorf("credentials not committed: %v", data)
	}
	models := data["availableModels"].([]string)
	if len(models) != 2 {
		t.Errorf("expected model inventory, got %v", models)
	}
	if mock.ListCalls != 1 {
		t.Errorf("expected one ListModels call, got %d", mock.ListCalls)
	}
}

func TestCredentialStageMissingConfig(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "cred1", Kind: graph.KindCredential}}, nil)
	s := NewCredentialStage("cred1", store, CredentialConfig{}, nil, Options{})

	if s.Ready() {
		t.Error("unconfigured credential stage should not be ready")
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

func TestChatStageRefreshAndAsk(t *testing.T) {
	vectorized := []corpus.VectorizedFile{{
		SourceFile: "guide.md",
		Chunks: []corpus.EmbeddedChunk{{
			Chunk:     chunker.Chunk{Content: "how to deploy", Metadata: map[string]string{"source": "guide.md"}},
			Embedding: corpus.NewEmbedding([]float32{1, 0}),
		}},
	}}
	store := pipelineStore(t,
		[]graph.Node{
			{ID: "embed1", Kind: graph.KindEmbed, Data: map[string]any{"vectorizedFiles": vectorized}},
			{ID: "chat1", Kind: graph.KindChat},
		},
		[]graph.Edge{{Source: "embed1", Target: "chat1"}},
	)
	res := resolver.New(store, nil)

	mock := llm.NewMockProvider()
	mock.EmbedFunc = func(ctx context.Context, model string, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}
	engine := retrieval.New(retrieval.DefaultConfig(), mock, mock)
	composerCfg := chat.DefaultConfig()
	composerCfg.Model = "gpt-4o-mini"
	composer := chat.New(composerCfg, mock)

	s := NewChatStage("chat1", store, res, engine, composer, false, Options{})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	turn, err := s.Ask(context.Background(), "how do I deploy?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if turn.Content != "mock response" {
		t.Errorf("unexpected answer: %q", turn.Content)
	}
	if len(turn.RelevantChunks) == 0 {
		t.Error("assistant turn should carry the retrieval behind it")
	}
	if s.History().Len() != 2 {
		t.Errorf("expected user+assistant turns, got %d", s.History().Len())
	}
}

func TestChatStageResetClearsState(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "chat1", Kind: graph.KindChat}}, nil)
	mock := llm.NewMockProvider()
	engine := retrieval.New(retrieval.DefaultConfig(), mock, mock)
	composerCfg := chat.DefaultConfig()
	composerCfg.Model = "gpt-4o-mini"
	s := NewChatStage("chat1", store, resolver.New(store, nil), engine, chat.New(composerCfg, mock), false, Options{})

	if _, err := s.Ask(context.Background(), "hello?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if s.History().Len() == 0 {
		t.Fatal("expected history before reset")
	}

	s.Reset()
	if s.History().Len() != 0 {
		t.Errorf("reset should clear history, %d turns remain", s.History().Len())
	}
}

func TestChatStageAskWithEmptyCorpus(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "chat1", Kind: graph.KindChat}}, nil)
	mock := llm.NewMockProvider()
	engine := retrieval.New(retrieval.DefaultConfig(), mock, mock)
	composerCfg := chat.DefaultConfig()
	composerCfg.Model = "gpt-4o-mini"
	s := NewChatStage("chat1", store, resolver.New(store, nil), engine, chat.New(composerCfg, mock), false, Options{})

	turn, err := s.Ask(context.Background(), "anything at all?")
	if err != nil {
		t.Fatalf("empty corpus should degrade, not fail: %v", err)
	}
	if len(turn.RelevantChunks) != 0 {
		t.Errorf("no retrieval expected, got %v", turn.RelevantChunks)
	}
}

func TestManualStage(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "go1", Kind: graph.KindManual}}, nil)
	s := NewManualStage("go1", store, Options{})
	if !s.Ready() {
		t.Error("manual stage is always ready")
	}
	if err := s.Run(context.Background()); err != nil {
		t.Errorf("manual run: %v", err)
	}
}

func TestCommitterCoalescesQueuedPatches(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "s1", Kind: graph.KindManual}}, nil)
	c := NewCommitter(store, "s1", 20*time.Millisecond, nil)

	c.Queue(map[string]any{"a": 1})
	c.Queue(map[string]any{"b": 2})

	// Nothing written before the delay elapses
	if _, present := nodeData(t, store, "s1")["a"]; present {
		t.Error("commit landed before debounce delay")
	}

	deadline := time.After(time.Second)
	for {
		data := nodeData(t, store, "s1")
		if data["a"] == 1 && data["b"] == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("coalesced commit never landed: %v", data)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCommitterCancelDropsPending(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "s1", Kind: graph.KindManual}}, nil)
	c := NewCommitter(store, "s1", 10*time.Millisecond, nil)

	c.Queue(map[string]any{"a": 1})
	c.Cancel()
	time.Sleep(50 * time.Millisecond)

	if _, present := nodeData(t, store, "s1")["a"]; present {
		t.Error("cancelled commit still landed")
	}
}

func TestCommitterFlushWritesImmediately(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "s1", Kind: graph.KindManual}}, nil)
	c := NewCommitter(store, "s1", time.Hour, nil)

	c.Queue(map[string]any{"a": 1})
	if err := c.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if nodeData(t, store, "s1")["a"] != 1 {
		t.Error("flush did not write pending output")
	}
}

func TestFetchStageCommitsThroughDebounce(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "fetch1", Kind: graph.KindSourceFetch}}, nil)
	files := []fetch.File{{Name: "a.go", Path: "a.go", Content: "package a", Size: 9}}
	s := NewFetchStage("fetch1", store, &staticProvider{files: files}, Options{CommitDelay: 20 * time.Millisecond})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, present := nodeData(t, store, "fetch1")["files"]; present {
		t.Fatal("commit landed before the debounce delay")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, present := nodeData(t, store, "fetch1")["files"]; present {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("queued commit never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmbedStageUsesUpstreamCredential(t *testing.T) {
	store := pipelineStore(t,
		[]graph.Node{
			{ID: "cred1", Kind: graph.KindCredential, Data: map[string]any{
				"endpoint": "https://api.example.com/v1", "apiKey": "sk-upstream",
			}},
			{ID: "chunk1", Kind: graph.KindChunk, Data: map[string]any{
				"chunks": []chunker.Chunk{{Content: "x", Metadata: map[string]string{"source": "a.go"}}},
			}},
			{ID: "embed1", Kind: graph.KindEmbed},
		},
		[]graph.Edge{
			{Source: "cred1", Target: "embed1"},
			{Source: "chunk1", Target: "embed1"},
		},
	)
	res := resolver.New(store, nil)

	fallback := llm.NewMockProvider()
	dialed := llm.NewMockProvider()
	var dialedWith resolver.ProviderConfig
	opts := Options{Dial: func(cred resolver.ProviderConfig) llm.Provider {
		dialedWith = cred
		return dialed
	}}
	s := NewEmbedStage("embed1", store, res, fallback, nil,
		EmbedConfig{Model: "text-embedding-3-small"}, opts)

	runAndFlush(t, s)

	if len(fallback.EmbedCalls) != 0 {
		t.Errorf("injected client used despite wired credential: %+v", fallback.EmbedCalls)
	}
	if len(dialed.EmbedCalls) != 1 {
		t.Fatalf("expected one embed call on the dialed client, got %d", len(dialed.EmbedCalls))
	}
	if dialedWith.Endpoint != "https://api.example.com/v1" || dialedWith.APIKey != "sk-upstream" {
		t.Errorf("dialed with wrong credential: %+v", dialedWith)
	}

	// A rerun with the same credential keeps the dialed client
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(dialed.EmbedCalls) != 2 {
		t.Errorf("expected rerun on the dialed client, got %d calls", len(dialed.EmbedCalls))
	}
}

func TestChatStageUsesUpstreamCredential(t *testing.T) {
	vectorized := []corpus.VectorizedFile{{
		SourceFile: "guide.md",
		Chunks: []corpus.EmbeddedChunk{{
			Chunk:     chunker.Chunk{Content: "how to deploy", Metadata: map[string]string{"source": "guide.md"}},
			Embedding: corpus.NewEmbedding([]float32{1, 0}),
		}},
	}}
	store := pipelineStore(t,
		[]graph.Node{
			{ID: "cred1", Kind: graph.KindCredential, Data: map[string]any{
				"endpoint": "https://api.example.com/v1", "apiKey": "sk-upstream",
			}},
			{ID: "embed1", Kind: graph.KindEmbed, Data: map[string]any{"vectorizedFiles": vectorized}},
			{ID: "chat1", Kind: graph.KindChat},
		},
		[]graph.Edge{
			{Source: "cred1", Target: "chat1"},
			{Source: "embed1", Target: "chat1"},
		},
	)
	res := resolver.New(store, nil)

	fallback := llm.NewMockProvider()
	dialed := llm.NewMockProvider()
	opts := Options{Dial: func(cred resolver.ProviderConfig) llm.Provider { return dialed }}
	engine := retrieval.New(retrieval.DefaultConfig(), fallback, fallback)
	composerCfg := chat.DefaultConfig()
	composerCfg.Model = "gpt-4o-mini"
	s := NewChatStage("chat1", store, res, engine, chat.New(composerCfg, fallback), false, opts)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := s.Ask(context.Background(), "how do I deploy?"); err != nil {
		t.Fatalf("ask: %v", err)
	}

	if len(fallback.CompleteCalls) != 0 {
		t.Errorf("injected client answered despite wired credential")
	}
	if len(dialed.CompleteCalls) != 1 {
		t.Errorf("expected the dialed client to answer, got %d calls", len(dialed.CompleteCalls))
	}
	if len(dialed.EmbedCalls) == 0 {
		t.Error("retrieval should embed the query through the dialed client")
	}
}

func TestChatStageLogsUngroundedAnswer(t *testing.T) {
	store := pipelineStore(t, []graph.Node{{ID: "chat1", Kind: graph.KindChat}}, nil)
	mock := llm.NewMockProvider()
	engine := retrieval.New(retrieval.DefaultConfig(), mock, mock)
	composerCfg := chat.DefaultConfig()
	composerCfg.Model = "gpt-4o-mini"

	var buf bytes.Buffer
	opts := Options{Log: slog.New(slog.NewTextHandler(&buf, nil))}
	s := NewChatStage("chat1", store, resolver.New(store, nil), engine, chat.New(composerCfg, mock), false, opts)

	if _, err := s.Ask(context.Background(), "anything at all?"); err != nil {
		t.Fatalf("empty corpus should degrade, not fail: %v", err)
	}
	if !strings.Contains(buf.String(), "without source context") {
		t.Errorf("ungrounded degradation not surfaced in the log:\n%s", buf.String())
	}
}
