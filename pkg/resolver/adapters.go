package resolver

import (
	"github.com/wouteroostervld/ragweaver/pkg/chunker"
	"github.com/wouteroostervld/ragweaver/pkg/corpus"
	"github.com/wouteroostervld/ragweaver/pkg/fetch"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
)

// adaptProducer maps one producer node's data to its canonical output.
// The declared kind picks the adapter; nodes of unknown kind fall back
// to shape sniffing. Returns false when no recognizable signal exists.
func adaptProducer(node graph.Node) (ProducerOutput, bool) {
	switch node.Kind {
	case graph.KindSourceFetch, graph.KindParse:
		return adaptFiles(node)
	case graph.KindChunk:
		return adaptChunks(node)
	case graph.KindEmbed:
		return adaptVectorized(node)
	case graph.KindCredential:
		return adaptCredential(node)
	default:
		return sniff(node)
	}
}

// adaptFiles extracts a file list, synthesizing a single file from a
// generic content field when the producer never structured its output.
func adaptFiles(node graph.Node) (ProducerOutput, bool) {
	if files, ok := filesField(node.Data); ok {
		return ProducerOutput{Kind: KindFiles, SourceID: node.ID, Files: files}, true
	}
	if text, ok := textField(node.Data); ok {
		file := fetch.File{
			Name:    node.ID,
			Path:    node.ID,
			Content: text,
			Size:    int64(len(text)),
		}
		return ProducerOutput{Kind: KindFiles, SourceID: node.ID, Files: []fetch.File{file}}, true
	}
	return ProducerOutput{}, false
}

// adaptChunks extracts a chunk list, degrading to a single synthesized
// chunk for producers that only expose raw text.
func adaptChunks(node graph.Node) (ProducerOutput, bool) {
	if chunks, ok := chunksField(node.Data); ok {
		return ProducerOutput{Kind: KindChunks, SourceID: node.ID, Chunks: chunks}, true
	}
	if text, ok := textField(node.Data); ok {
		chunk := chunker.Chunk{
			Content:  text,
			Index:    0,
			Metadata: map[string]string{"source": node.ID},
		}
		return ProducerOutput{Kind: KindChunks, SourceID: node.ID, Chunks: []chunker.Chunk{chunk}}, true
	}
	return ProducerOutput{}, false
}

func adaptVectorized(node graph.Node) (ProducerOutput, bool) {
	if files, ok := vectorizedField(node.Data); ok {
		return ProducerOutput{Kind: KindVectorized, SourceID: node.ID, Vectorized: files}, true
	}
	return ProducerOutput{}, false
}

func adaptCredential(node graph.Node) (ProducerOutput, bool) {
	if cred, ok := credentialFields(node.Data); ok {
		return ProducerOutput{Kind: KindCredential, SourceID: node.ID, Credential: cred}, true
	}
	return ProducerOutput{}, false
}

// sniff classifies a producer of unknown kind by payload shape
func sniff(node graph.Node) (ProducerOutput, bool) {
	if files, ok := filesField(node.Data); ok {
		return ProducerOutput{Kind: KindFiles, SourceID: node.ID, Files: files}, true
	}
	if chunks, ok := chunksField(node.Data); ok {
		return ProducerOutput{Kind: KindChunks, SourceID: node.ID, Chunks: chunks}, true
	}
	if files, ok := vectorizedField(node.Data); ok {
		return ProducerOutput{Kind: KindVectorized, SourceID: node.ID, Vectorized: files}, true
	}
	if cred, ok := credentialFields(node.Data); ok {
		return ProducerOutput{Kind: KindCredential, SourceID: node.ID, Credential: cred}, true
	}
	if text, ok := textField(node.Data); ok {
		return ProducerOutput{Kind: KindText, SourceID: node.ID, Text: text}, true
	}
	return ProducerOutput{}, false
}

// ---- field extraction ----
//
// Node data holds either typed values written by this process's stages
// or generic maps loaded from a pipeline file; both shapes are accepted.

func filesField(data map[string]any) ([]fetch.File, bool) {
	raw, ok := data["files"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []fetch.File:
		return v, len(v) > 0
	case []any:
		var files []fetch.File
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			files = append(files, fetch.File{
				Name:    stringAt(m, "name"),
				Path:    stringAt(m, "path"),
				Content: stringAt(m, "content"),
				Size:    int64(intAt(m, "size")),
			})
		}
		return files, len(files) > 0
	}
	return nil, false
}

func chunksField(data map[string]any) ([]chunker.Chunk, bool) {
	raw, ok := data["chunks"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []chunker.Chunk:
		return v, len(v) > 0
	case []any:
		var chunks []chunker.Chunk
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			meta := map[string]string{}
			if mm, ok := m["metadata"].(map[string]any); ok {
				for k, val := range mm {
					if s, ok := val.(string); ok {
						meta[k] = s
					}
				}
			}
			index := intAt(m, "index")
			if _, present := m["index"]; !present {
				index = i
			}
			chunks = append(chunks, chunker.Chunk{
				Content:  stringAt(m, "content"),
				Index:    index,
				Metadata: meta,
			})
		}
		return chunks, len(chunks) > 0
	}
	return nil, false
}

func vectorizedField(data map[string]any) ([]corpus.VectorizedFile, bool) {
	// Two legacy field names survive in stored pipelines
	for _, key := range []string{"vectorizedFiles", "vectorizedData"} {
		if raw, ok := data[key]; ok {
			if files, ok := raw.([]corpus.VectorizedFile); ok && len(files) > 0 {
				return files, true
			}
		}
	}
	return nil, false
}

func credentialFields(data map[string]any) (*ProviderConfig, bool) {
	apiKey, hasKey := data["apiKey"].(string)
	endpoint, hasEndpoint := data["endpoint"].(string)
	if !hasKey || !hasEndpoint || apiKey == "" || endpoint == "" {
		return nil, false
	}

	cred := &ProviderConfig{Endpoint: endpoint, APIKey: apiKey}
	switch models := data["availableModels"].(type) {
	case []string:
		cred.AvailableModels = models
	case []any:
		for _, m := range models {
			if s, ok := m.(string); ok {
				cred.AvailableModels = append(cred.AvailableModels, s)
			}
		}
	}
	return cred, true
}

func textField(data map[string]any) (string, bool) {
	for _, key := range []string{"content", "text"} {
		if s, ok := data[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intAt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
