// Package chunker splits source text into overlapping, line-aligned
// chunks, the unit of retrieval.
package chunker

import (
	"strconv"
)

// Chunk is one bounded slice of source text
type Chunk struct {
	Content  string
	Index    int
	Metadata map[string]string // "source" records provenance
}

// Config holds chunking parameters
type Config struct {
	ChunkSize    int // target chunk size in bytes
	Overlap      int // bytes of overlap between consecutive chunks
	MinChunkSize int // discard fragments smaller than this
	MaxChunkSize int // hard cap per chunk
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:    512,
		Overlap:      64,
		MinChunkSize: 10,
		MaxChunkSize: 4096,
	}
}

// Chunker splits documents according to its config
type Chunker struct {
	config *Config
}

// New creates a chunker
func New(cfg *Config) *Chunker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Chunker{config: cfg}
}

// Split chunks content with overlap, aligning boundaries to lines.
// source is recorded in each chunk's metadata for provenance.
func (c *Chunker) Split(content, source string) []Chunk {
	var chunks []Chunk

	contentBytes := []byte(content)
	contentLen := len(contentBytes)

	if contentLen < c.config.MinChunkSize {
		return chunks
	}

	// Small files become a single chunk
	if contentLen <= c.config.ChunkSize {
		return []Chunk{c.newChunk(content, source, 0, 1, countLines(contentBytes))}
	}

	stride := c.config.ChunkSize - c.config.Overlap
	if stride <= 0 {
		stride = c.config.ChunkSize
	}

	index := 0
	for offset := 0; offset < contentLen; {
		end := min(offset+c.config.ChunkSize, contentLen)
		if end-offset > c.config.MaxChunkSize {
			end = offset + c.config.MaxChunkSize
		}

		// Align start forward to the next line boundary
		start := offset
		if start > 0 {
			for start < contentLen && contentBytes[start] != '\n' {
				start++
			}
			if start < contentLen {
				start++
			}
		}

		// Align end backward to the previous line boundary
		if end < contentLen {
			for end > start && contentBytes[end-1] != '\n' {
				end--
			}
		}

		if end <= start {
			offset += min(stride, 100)
			continue
		}

		chunkBytes := contentBytes[start:end]
		if len(chunkBytes) >= c.config.MinChunkSize {
			startLine := countLines(contentBytes[:start]) + 1
			endLine := countLines(contentBytes[:end])
			chunks = append(chunks, c.newChunk(string(chunkBytes), source, index, startLine, endLine))
			index++
		}

		offset += stride
		if end >= contentLen {
			break
		}
	}

	return chunks
}

func (c *Chunker) newChunk(content, source string, index, startLine, endLine int) Chunk {
	return Chunk{
		Content: content,
		Index:   index,
		Metadata: map[string]string{
			"source":     source,
			"start_line": strconv.Itoa(startLine),
			"end_line":   strconv.Itoa(endLine),
		},
	}
}

func countLines(data []byte) int {
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	return count
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
