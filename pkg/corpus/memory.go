package corpus

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for pipelines that never touch disk
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]VectorizedFile // keyed by source stage ID
}

// NewMemoryStore creates an empty in-memory corpus
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]VectorizedFile)}
}

// Put replaces the stage's prior contribution
func (s *MemoryStore) Put(sourceStage string, files []VectorizedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]VectorizedFile, len(files))
	copy(copied, files)
	s.files[sourceStage] = copied
	return nil
}

// All flattens every stage's contribution, in stable stage order
func (s *MemoryStore) All() ([]VectorizedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stages := make([]string, 0, len(s.files))
	for stage := range s.files {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	var all []VectorizedFile
	for _, stage := range stages {
		all = append(all, s.files[stage]...)
	}
	return all, nil
}

// CountChunks returns the total number of stored chunks
func (s *MemoryStore) CountChunks() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, files := range s.files {
		for _, f := range files {
			n += int64(len(f.Chunks))
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error { return nil }
