// Package chat builds bounded conversational prompts from retrieved
// context and submits them to a chat provider.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/wouteroostervld/ragweaver/pkg/llm"
	"github.com/wouteroostervld/ragweaver/pkg/retrieval"
)

const defaultSystemPrompt = `You are a helpful assistant. Answer the user's question using the provided source context. When the context does not contain the answer, say so instead of guessing. Cite the source file when quoting.`

const contextDelimiter = "\n---\n"

// Config holds composer settings
type Config struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	HistoryWindow int    // trailing turns included in the prompt
	SystemPrompt  string // fixed instructions; context blocks are appended
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Temperature:   0.7,
		MaxTokens:     1024,
		HistoryWindow: 6,
		SystemPrompt:  defaultSystemPrompt,
	}
}

// Composer assembles prompts and maintains conversation state
type Composer struct {
	provider llm.ChatProvider
	config   *Config
}

// New creates a composer
func New(cfg *Config, provider llm.ChatProvider) *Composer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Composer{provider: provider, config: cfg}
}

// Config returns the composer's effective settings
func (c *Composer) Config() *Config { return c.config }

// Converse submits the query with retrieved context and the trailing
// history window, then appends the exchange to history. On provider
// failure the error reply is appended too, flagged IsError.
func (c *Composer) Converse(ctx context.Context, query string, retrieved []retrieval.Result, history *History) (Turn, error) {
	if c.config.Model == "" {
		return Turn{}, fmt.Errorf("no chat model configured")
	}

	messages := c.buildMessages(query, retrieved, history)

	history.Append(Turn{Role: RoleUser, Content: query})

	resp, err := c.provider.Complete(ctx, llm.ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		errTurn := history.Append(Turn{
			Role:    RoleAssistant,
			Content: fmt.Sprintf("request failed: %v", err),
			IsError: true,
		})
		return errTurn, fmt.Errorf("chat completion failed: %w", err)
	}

	reply := history.Append(Turn{
		Role:           RoleAssistant,
		Content:        resp.Content,
		RelevantChunks: retrieved,
	})
	return reply, nil
}

// buildMessages assembles system instructions + context blocks, the
// last HistoryWindow turns (older ones silently dropped), and the query.
func (c *Composer) buildMessages(query string, retrieved []retrieval.Result, history *History) []llm.Message {
	var sys strings.Builder
	sys.WriteString(c.config.SystemPrompt)

	if len(retrieved) > 0 {
		sys.WriteString("\n\nContext:\n")
		blocks := make([]string, 0, len(retrieved))
		for _, r := range retrieved {
			blocks = append(blocks, fmt.Sprintf("Source: %s\n%s", r.SourceFile, r.Chunk.Content))
		}
		sys.WriteString(strings.Join(blocks, contextDelimiter))
	}

	messages := []llm.Message{{Role: "system", Content: sys.String()}}

	for _, turn := range history.Last(c.config.HistoryWindow) {
		messages = append(messages, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}

	messages = append(messages, llm.Message{Role: "user", Content: query})
	return messages
}
