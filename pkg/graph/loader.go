package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PipelineFile is the YAML shape of a pipeline definition
type PipelineFile struct {
	Name  string         `yaml:"name"`
	Nodes []PipelineNode `yaml:"nodes"`
	Edges []PipelineEdge `yaml:"edges"`
}

// PipelineNode declares one stage and its settings
type PipelineNode struct {
	ID       string         `yaml:"id"`
	Kind     string         `yaml:"kind"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// PipelineEdge declares a directed connection between stages
type PipelineEdge struct {
	From       string `yaml:"from"`
	To         string `yaml:"to"`
	SourcePort string `yaml:"source_port,omitempty"`
	TargetPort string `yaml:"target_port,omitempty"`
}

var validKinds = map[Kind]bool{
	KindSourceFetch: true,
	KindParse:       true,
	KindChunk:       true,
	KindEmbed:       true,
	KindCredential:  true,
	KindChat:        true,
	KindManual:      true,
}

// LoadPipeline parses a YAML pipeline definition into a populated store
func LoadPipeline(data []byte) (*MemStore, error) {
	var pf PipelineFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline file: %w", err)
	}

	if len(pf.Nodes) == 0 {
		return nil, fmt.Errorf("pipeline %q has no nodes", pf.Name)
	}

	store := NewMemStore()
	for _, pn := range pf.Nodes {
		kind := Kind(pn.Kind)
		if !validKinds[kind] {
			return nil, fmt.Errorf("node %q has unknown kind %q", pn.ID, pn.Kind)
		}

		data := make(map[string]any, len(pn.Settings))
		for k, v := range pn.Settings {
			data[k] = v
		}
		if err := store.AddNode(Node{ID: pn.ID, Kind: kind, Data: data}); err != nil {
			return nil, err
		}
	}

	for _, pe := range pf.Edges {
		edge := Edge{
			Source:     pe.From,
			Target:     pe.To,
			SourcePort: pe.SourcePort,
			TargetPort: pe.TargetPort,
		}
		if err := store.AddEdge(edge); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// LoadPipelineFile reads and parses a pipeline definition from disk
func LoadPipelineFile(path string) (*MemStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return LoadPipeline(data)
}
