package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wouteroostervld/ragweaver/pkg/bus"
	"github.com/wouteroostervld/ragweaver/pkg/chat"
	"github.com/wouteroostervld/ragweaver/pkg/chunker"
	"github.com/wouteroostervld/ragweaver/pkg/config"
	"github.com/wouteroostervld/ragweaver/pkg/corpus"
	"github.com/wouteroostervld/ragweaver/pkg/dispatch"
	"github.com/wouteroostervld/ragweaver/pkg/fetch"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
	"github.com/wouteroostervld/ragweaver/pkg/llm"
	"github.com/wouteroostervld/ragweaver/pkg/llm/openai"
	"github.com/wouteroostervld/ragweaver/pkg/resolver"
	"github.com/wouteroostervld/ragweaver/pkg/retrieval"
	"github.com/wouteroostervld/ragweaver/pkg/stage"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: ragweaver [init|run|ask|status|version]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		handleInit()
	case "run":
		handleRun()
	case "ask":
		handleAsk()
	case "status":
		handleStatus()
	case "version":
		fmt.Printf("ragweaver version %s\n", version)
	default:
		fmt.Println("Unknown command:", os.Args[1])
		os.Exit(1)
	}
}

func configPath() string {
	return filepath.Join(os.Getenv("HOME"), ".ragweaver", "config.yaml")
}

func handleInit() {
	path := configPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Println("Config already exists at", path)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	starter := &config.GlobalConfig{
		Version:       "1",
		ActiveProfile: "default",
		Profiles: map[string]*config.Profile{
			"default": config.DefaultProfile(),
		},
	}
	data, err := yaml.Marshal(starter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Config initialized at", path)
	fmt.Println("  Set your API key under profiles.default.api_key before running a pipeline.")
}

func loadSettings() *config.Settings {
	loader := config.NewDefaultLoader()
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	settings, err := loader.Resolve(cwd)
	if err != nil {
		slog.Debug("Config not found, using defaults", "error", err)
		global := &config.GlobalConfig{
			ActiveProfile: "default",
			Profiles:      map[string]*config.Profile{"default": config.DefaultProfile()},
		}
		settings, err = config.Merge(global, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if settings.APIKey == "" {
		settings.APIKey = os.Getenv("RAGWEAVER_API_KEY")
	}
	return settings
}

func handleStatus() {
	settings := loadSettings()
	fmt.Println("Ragweaver Status")
	fmt.Println("================")
	fmt.Printf("Profile:        %s\n", settings.ProfileName)
	fmt.Printf("Endpoint:       %s\n", settings.Endpoint)
	fmt.Printf("Embed model:    %s\n", settings.EmbeddingModel)
	fmt.Printf("Chat model:     %s\n", settings.ChatModel)

	if settings.CorpusPath == "" {
		fmt.Println("Corpus:         in-memory (nothing persisted)")
		return
	}

	dim, err := corpus.StoredEmbeddingDim(settings.CorpusPath)
	if err != nil {
		fmt.Printf("Corpus:         %s (not initialized)\n", settings.CorpusPath)
		return
	}
	store, err := corpus.OpenSQLite(corpus.SQLiteConfig{
		Path:         settings.CorpusPath,
		EmbeddingDim: dim,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	chunks, _ := store.CountChunks()
	fmt.Printf("Corpus:         %s\n", settings.CorpusPath)
	fmt.Printf("Chunks:         %d\n", chunks)
	fmt.Printf("Embedding dim:  %d\n", dim)
}

// pipeline bundles everything built from one pipeline definition
type pipeline struct {
	store      graph.Store
	bus        *bus.Bus
	dispatcher *dispatch.Dispatcher
	stages     map[string]dispatch.Runner
	chats      map[string]*stage.ChatStage
	watchers   []*fetch.DirWatcher
	corpus     corpus.Store
}

func (p *pipeline) close() {
	for _, r := range p.stages {
		if c, ok := r.(interface{ Commit() *stage.Committer }); ok {
			if err := c.Commit().Flush(); err != nil {
				slog.Error("Flush on shutdown failed", "stage", r.ID(), "error", err)
			}
		}
	}
	for _, w := range p.watchers {
		w.Close()
	}
	if p.corpus != nil {
		p.corpus.Close()
	}
	p.bus.Close()
}

// buildPipeline loads a pipeline file and constructs one runner per
// node, wired to the shared provider client and corpus store.
func buildPipeline(path string, settings *config.Settings) (*pipeline, error) {
	store, err := graph.LoadPipelineFile(path)
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(&openai.Config{
		BaseURL: settings.Endpoint,
		APIKey:  settings.APIKey,
	})
	res := resolver.New(store, slog.Default())
	trigger := bus.New()
	d := dispatch.New(store, trigger, dispatch.DefaultConfig(), slog.Default())

	var corpusStore corpus.Store
	if settings.CorpusPath != "" {
		corpusStore, err = corpus.OpenSQLite(corpus.SQLiteConfig{
			Path:         settings.CorpusPath,
			EmbeddingDim: settings.EmbeddingDim,
		})
		if err != nil {
			return nil, err
		}
	}

	policy := fetch.DefaultPolicy()
	if len(settings.Allow) > 0 {
		policy.Allow = settings.Allow
	}
	policy.Deny = append(policy.Deny, settings.Deny...)
	if settings.MaxFileSize > 0 {
		policy.MaxFileSize = settings.MaxFileSize
	}

	splitter := chunker.New(&chunker.Config{
		ChunkSize:    settings.ChunkSize,
		Overlap:      settings.Overlap,
		MinChunkSize: 10,
		MaxChunkSize: 4096,
	})

	p := &pipeline{
		store:      store,
		bus:        trigger,
		dispatcher: d,
		stages:     make(map[string]dispatch.Runner),
		chats:      make(map[string]*stage.ChatStage),
		corpus:     corpusStore,
	}

	opts := stage.Options{
		Log: slog.Default(),
		Dial: func(cred resolver.ProviderConfig) llm.Provider {
			return openai.NewClient(&openai.Config{BaseURL: cred.Endpoint, APIKey: cred.APIKey})
		},
	}
	for _, node := range store.ListNodes() {
		var runner dispatch.Runner
		switch node.Kind {
		case graph.KindSourceFetch:
			provider, watcher, err := buildFetchProvider(node, policy, trigger, settings)
			if err != nil {
				p.close()
				return nil, err
			}
			if watcher != nil {
				p.watchers = append(p.watchers, watcher)
			}
			runner = stage.NewFetchStage(node.ID, store, provider, opts)
		case graph.KindParse:
			runner = stage.NewParseStage(node.ID, store, res, nil, opts)
		case graph.KindChunk:
			runner = stage.NewChunkStage(node.ID, store, res, splitter, opts)
		case graph.KindEmbed:
			model := stringSetting(node, "model", settings.EmbeddingModel)
			runner = stage.NewEmbedStage(node.ID, store, res, client, corpusStore,
				stage.EmbedConfig{Model: model}, opts)
		case graph.KindCredential:
			runner = stage.NewCredentialStage(node.ID, store, stage.CredentialConfig{
				Endpoint: settings.Endpoint,
				APIKey:   settings.APIKey,
			}, client, opts)
		case graph.KindChat:
			retrievalCfg := retrieval.DefaultConfig()
			retrievalCfg.TopK = settings.TopK
			retrievalCfg.SimilarityThreshold = settings.SimilarityThreshold
			retrievalCfg.EmbedModel = settings.EmbeddingModel
			engine := retrieval.New(retrievalCfg, client, client)

			composerCfg := chat.DefaultConfig()
			composerCfg.Model = stringSetting(node, "model", settings.ChatModel)
			composer := chat.New(composerCfg, client)

			chatStage := stage.NewChatStage(node.ID, store, res, engine, composer, settings.AutoTune, opts)
			p.chats[node.ID] = chatStage
			runner = chatStage
		case graph.KindManual:
			runner = stage.NewManualStage(node.ID, store, opts)
		default:
			p.close()
			return nil, fmt.Errorf("node %q has unsupported kind %q", node.ID, node.Kind)
		}
		d.Register(runner)
		p.stages[node.ID] = runner
	}

	return p, nil
}

// buildFetchProvider picks the provider for a source-fetch node from
// its settings: "dir" reads a local tree and watches it for changes,
// "repo" walks a repository host API.
func buildFetchProvider(node graph.Node, policy fetch.Policy, trigger *bus.Bus, settings *config.Settings) (stage.Fetchable, *fetch.DirWatcher, error) {
	if dir, ok := node.Data["dir"].(string); ok && dir != "" {
		provider := fetch.NewDirProvider(dir, policy)
		watcher, err := fetch.NewDirWatcher(&fetch.WatcherConfig{
			OnChange: func(path string) {
				trigger.Publish(bus.Signal{Topic: bus.TopicRunRequested, StageID: node.ID})
			},
		})
		if err != nil {
			return nil, nil, err
		}
		if err := watcher.Watch(dir); err != nil {
			watcher.Close()
			return nil, nil, err
		}
		return provider, watcher, nil
	}

	if repo, ok := node.Data["repo"].(string); ok && repo != "" {
		owner, name, found := splitRepo(repo)
		if !found {
			return nil, nil, fmt.Errorf("node %q: repo must be owner/name, got %q", node.ID, repo)
		}
		cfg := fetch.RepoConfig{
			BaseURL: stringSetting(node, "base_url", "https://api.github.com"),
			Owner:   owner,
			Repo:    name,
			Ref:     stringSetting(node, "ref", "main"),
			Token:   os.Getenv("RAGWEAVER_REPO_TOKEN"),
		}
		return fetch.NewRepoProvider(cfg, policy), nil, nil
	}

	return nil, nil, fmt.Errorf("node %q needs a dir or repo setting", node.ID)
}

func splitRepo(repo string) (owner, name string, ok bool) {
	for i := range repo {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:], i > 0 && i < len(repo)-1
		}
	}
	return "", "", false
}

func stringSetting(node graph.Node, key, fallback string) string {
	if v, ok := node.Data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func handleRun() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: ragweaver run <pipeline.yaml>")
		os.Exit(1)
	}

	settings := loadSettings()
	p, err := buildPipeline(os.Args[2], settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer p.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	for _, w := range p.watchers {
		go func(w *fetch.DirWatcher) {
			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Watcher stopped", "error", err)
			}
		}(w)
	}

	// Subscriptions must exist before the kickoff publishes, otherwise
	// the entry-point triggers are dropped and nothing ever runs
	p.dispatcher.Listen()

	// Kick off the cascade from every entry point
	for _, node := range p.store.ListNodes() {
		if node.Kind == graph.KindSourceFetch || node.Kind == graph.KindCredential || node.Kind == graph.KindManual {
			p.bus.Publish(bus.Signal{Topic: bus.TopicRunRequested, StageID: node.ID})
		}
	}

	fmt.Println("🧵 Pipeline running. Press Ctrl-C to stop.")
	p.dispatcher.Serve(ctx)
}

// kindOrder is the synchronous execution order for one-shot runs
var kindOrder = []graph.Kind{
	graph.KindManual,
	graph.KindCredential,
	graph.KindSourceFetch,
	graph.KindParse,
	graph.KindChunk,
	graph.KindEmbed,
	graph.KindChat,
}

func handleAsk() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: ragweaver ask <pipeline.yaml> <question>")
		os.Exit(1)
	}

	settings := loadSettings()
	p, err := buildPipeline(os.Args[2], settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer p.close()

	if len(p.chats) == 0 {
		fmt.Fprintln(os.Stderr, "Error: pipeline has no chat stage")
		os.Exit(1)
	}

	ctx := context.Background()
	start := time.Now()

	// One synchronous pass through the pipeline in dependency order.
	// Stage guards skip anything whose upstream produced no output.
	for _, kind := range kindOrder {
		for _, node := range p.store.ListNodes() {
			if node.Kind != kind {
				continue
			}
			if err := p.dispatcher.RunStage(ctx, node.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error in stage %s: %v\n", node.ID, err)
				os.Exit(1)
			}
			// The one-shot pass runs stages back to back, so commits
			// can't wait out the debounce delay
			if c, ok := p.stages[node.ID].(interface{ Commit() *stage.Committer }); ok {
				if err := c.Commit().Flush(); err != nil {
					fmt.Fprintf(os.Stderr, "Error in stage %s: %v\n", node.ID, err)
					os.Exit(1)
				}
			}
		}
	}
	fmt.Printf("✓ Pipeline ready in %v\n\n", time.Since(start).Round(time.Millisecond))

	// First chat stage in pipeline order answers the question
	var chatStage *stage.ChatStage
	for _, node := range p.store.ListNodes() {
		if s, ok := p.chats[node.ID]; ok {
			chatStage = s
			break
		}
	}

	turn, err := chatStage.Ask(ctx, os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(turn.Content)
	if len(turn.RelevantChunks) > 0 {
		fmt.Println("\nSources:")
		for _, r := range turn.RelevantChunks {
			fmt.Printf("  %.2f  %s\n", r.Similarity, r.SourceFile)
		}
	} else {
		fmt.Println("\n(no corpus sources matched; the answer is not grounded)")
	}
}
