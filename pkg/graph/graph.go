package graph

import (
	"fmt"
	"sort"
	"sync"
)

// Kind identifies what a stage does within a pipeline
type Kind string

const (
	KindSourceFetch Kind = "source-fetch"
	KindParse       Kind = "parse"
	KindChunk       Kind = "chunk"
	KindEmbed       Kind = "embed"
	KindCredential  Kind = "credential"
	KindChat        Kind = "chat"
	KindManual      Kind = "manual-execute"
)

// Node is a single stage in the pipeline graph.
// Data is an open-ended record private to the stage: settings written at
// construction time, outputs written by the stage's own run routine.
type Node struct {
	ID   string
	Kind Kind
	Data map[string]any
}

// Edge is a directed connection between two stages. It defines both
// data-flow direction and trigger-propagation direction.
type Edge struct {
	Source     string
	Target     string
	SourcePort string
	TargetPort string
}

// Store holds the pipeline topology and per-node payload data.
// Implementations never mutate topology after construction; only node
// data changes, and only through PatchNodeData.
type Store interface {
	ListNodes() []Node
	ListEdges() []Edge
	Node(id string) (Node, bool)
	OutEdges(id string) []Edge
	InEdges(id string) []Edge
	PatchNodeData(id string, patch map[string]any) error
}

// MemStore is the in-memory Store implementation
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // insertion order, for deterministic listing
	edges []Edge
}

// NewMemStore creates an empty in-memory graph store
func NewMemStore() *MemStore {
	return &MemStore{nodes: make(map[string]*Node)}
}

// AddNode registers a node. Duplicate IDs are rejected.
func (s *MemStore) AddNode(n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		return fmt.Errorf("node ID cannot be empty")
	}
	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("duplicate node ID %q", n.ID)
	}
	if n.Data == nil {
		n.Data = make(map[string]any)
	}
	s.nodes[n.ID] = &n
	s.order = append(s.order, n.ID)
	return nil
}

// AddEdge registers a directed connection. Both endpoints must exist.
func (s *MemStore) AddEdge(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[e.Source]; !ok {
		return fmt.Errorf("edge source %q not found", e.Source)
	}
	if _, ok := s.nodes[e.Target]; !ok {
		return fmt.Errorf("edge target %q not found", e.Target)
	}
	s.edges = append(s.edges, e)
	return nil
}

// ListNodes returns all nodes in insertion order
func (s *MemStore) ListNodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		nodes = append(nodes, snapshot(s.nodes[id]))
	}
	return nodes
}

// ListEdges returns all edges
func (s *MemStore) ListEdges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := make([]Edge, len(s.edges))
	copy(edges, s.edges)
	return edges
}

// Node returns a snapshot of a single node
func (s *MemStore) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return snapshot(n), true
}

// OutEdges returns edges leaving the given node, sorted by target ID
// so that trigger fan-out over them is stable across calls.
func (s *MemStore) OutEdges(id string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Edge
	for _, e := range s.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// InEdges returns edges entering the given node, sorted by source ID
func (s *MemStore) InEdges(id string) []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var in []Edge
	for _, e := range s.edges {
		if e.Target == id {
			in = append(in, e)
		}
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Source < in[j].Source })
	return in
}

// PatchNodeData merges the patch into the node's data record.
// Existing keys not named in the patch are left untouched.
func (s *MemStore) PatchNodeData(id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("node %q not found", id)
	}
	for k, v := range patch {
		n.Data[k] = v
	}
	return nil
}

// snapshot copies a node with its own data map, so callers can read the
// payload without racing the owning stage's writes.
func snapshot(n *Node) Node {
	data := make(map[string]any, len(n.Data))
	for k, v := range n.Data {
		data[k] = v
	}
	return Node{ID: n.ID, Kind: n.Kind, Data: data}
}
