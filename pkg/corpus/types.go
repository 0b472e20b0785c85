// Package corpus holds vectorized chunks, the retrieval corpus. A
// chunk's embedding is immutable once computed: re-embedding produces a
// new chunk/embedding pair, never an in-place mutation, so retrieval
// stays reproducible for a given corpus snapshot.
package corpus

import (
	"github.com/wouteroostervld/ragweaver/pkg/chunker"
)

// Embedding is a fixed-length vector representing semantic content
type Embedding struct {
	Values     []float32
	Dimensions int
}

// NewEmbedding wraps a raw vector
func NewEmbedding(values []float32) Embedding {
	return Embedding{Values: values, Dimensions: len(values)}
}

// EmbeddedChunk pairs a chunk with its embedding
type EmbeddedChunk struct {
	Chunk     chunker.Chunk
	Embedding Embedding
}

// VectorizedFile groups embedded chunks under one originating file
type VectorizedFile struct {
	SourceFile string
	Chunks     []EmbeddedChunk
}

// Store persists a retrieval corpus keyed by producing stage
type Store interface {
	// Put replaces the named stage's prior contribution with files
	Put(sourceStage string, files []VectorizedFile) error
	// All returns a snapshot of the whole corpus
	All() ([]VectorizedFile, error)
	// CountChunks returns the total number of stored chunks
	CountChunks() (int64, error)
	Close() error
}
