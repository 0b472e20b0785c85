package llm

import "fmt"

// Message is one turn in a chat completion request
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a chat completion call
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the provider's reply
type ChatResponse struct {
	Content     string
	TotalTokens int // 0 when the provider omits usage
}

// Model describes one model offered by a provider
type Model struct {
	ID string
}

// ProviderError is returned when a provider call fails with a non-2xx
// status. It is local to the failing call; callers treat it as a
// stage-local error, never a reason to crash the pipeline.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}
