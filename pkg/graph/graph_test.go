package graph

import (
	"testing"
)

func buildStore(t *testing.T) *MemStore {
	t.Helper()
	s := NewMemStore()
	nodes := []Node{
		{ID: "fetch1", Kind: KindSourceFetch},
		{ID: "chunk1", Kind: KindChunk},
		{ID: "embed1", Kind: KindEmbed},
		{ID: "chat1", Kind: KindChat},
	}
	for _, n := range nodes {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", n.ID, err)
		}
	}
	edges := []Edge{
		{Source: "fetch1", Target: "chunk1"},
		{Source: "chunk1", Target: "embed1"},
		{Source: "embed1", Target: "chat1"},
	}
	for _, e := range edges {
		if err := s.AddEdge(e); err != nil {
			t.Fatalf("AddEdge(%s->%s) failed: %v", e.Source, e.Target, err)
		}
	}
	return s
}

func TestDuplicateNodeRejected(t *testing.T) {
	s := NewMemStore()
	if err := s.AddNode(Node{ID: "a", Kind: KindManual}); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := s.AddNode(Node{ID: "a", Kind: KindManual}); err == nil {
		t.Error("expected error for duplicate node ID")
	}
}

func TestEdgeEndpointsMustExist(t *testing.T) {
	s := NewMemStore()
	s.AddNode(Node{ID: "a", Kind: KindManual})
	if err := s.AddEdge(Edge{Source: "a", Target: "missing"}); err == nil {
		t.Error("expected error for unknown edge target")
	}
	if err := s.AddEdge(Edge{Source: "missing", Target: "a"}); err == nil {
		t.Error("expected error for unknown edge source")
	}
}

func TestOutEdgesOnlyDownstream(t *testing.T) {
	s := buildStore(t)

	out := s.OutEdges("chunk1")
	if len(out) != 1 || out[0].Target != "embed1" {
		t.Errorf("OutEdges(chunk1) = %v, want single edge to embed1", out)
	}

	// Leaf node has no outbound edges
	if out := s.OutEdges("chat1"); len(out) != 0 {
		t.Errorf("OutEdges(chat1) = %v, want none", out)
	}
}

func TestOutEdgesStableOrder(t *testing.T) {
	s := NewMemStore()
	s.AddNode(Node{ID: "src", Kind: KindManual})
	s.AddNode(Node{ID: "zeta", Kind: KindChunk})
	s.AddNode(Node{ID: "alpha", Kind: KindChunk})
	s.AddEdge(Edge{Source: "src", Target: "zeta"})
	s.AddEdge(Edge{Source: "src", Target: "alpha"})

	out := s.OutEdges("src")
	if len(out) != 2 || out[0].Target != "alpha" || out[1].Target != "zeta" {
		t.Errorf("OutEdges not sorted by target: %v", out)
	}
}

func TestPatchNodeDataMerges(t *testing.T) {
	s := buildStore(t)

	if err := s.PatchNodeData("fetch1", map[string]any{"path": "/docs"}); err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	if err := s.PatchNodeData("fetch1", map[string]any{"files": []string{"a.md"}}); err != nil {
		t.Fatalf("second patch failed: %v", err)
	}

	n, ok := s.Node("fetch1")
	if !ok {
		t.Fatal("node not found")
	}
	if n.Data["path"] != "/docs" {
		t.Errorf("earlier key lost after merge: %v", n.Data)
	}
	if _, ok := n.Data["files"]; !ok {
		t.Errorf("patched key missing: %v", n.Data)
	}
}

func TestNodeSnapshotIsolated(t *testing.T) {
	s := buildStore(t)
	n, _ := s.Node("fetch1")
	n.Data["injected"] = true

	fresh, _ := s.Node("fetch1")
	if _, ok := fresh.Data["injected"]; ok {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestPatchUnknownNode(t *testing.T) {
	s := NewMemStore()
	if err := s.PatchNodeData("nope", map[string]any{"x": 1}); err == nil {
		t.Error("expected error for unknown node")
	}
}
