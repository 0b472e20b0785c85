package openai

import "github.com/wouteroostervld/ragweaver/pkg/llm"

// embeddingRequest is the wire shape of an embeddings call
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse carries the generated vector in data[0].embedding
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// chatRequest is the wire shape of a chat completion call
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse exposes choices[0].message.content and optional usage
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// modelsResponse is the GET /models listing
type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
