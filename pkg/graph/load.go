package graph

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/callpoint-health/triage/backend/pkg/common"
)

//go:embed data/medical_graph.json
var defaultSource []byte

type graphSource struct {
	Entities  []entitySource   `json:"entities"`
	Relations []relationSource `json:"relations"`
}

type entitySource struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	DisplayName string            `json:"display_name"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type relationSource struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Kind     string  `json:"kind"`
	Weight   float64 `json:"weight"`
}

// Load parses a graph source and builds the adjacency structure. The
// load is atomic: any duplicate entity, dangling relation, or invalid
// weight rejects the whole graph.
func Load(source []byte) (*Graph, error) {
	var src graphSource
	if err := json.Unmarshal(source, &src); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedGraph, err)
	}
	return fromSource(src)
}

// LoadFile loads a graph from a JSON file on disk.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph source %s: %w", path, err)
	}
	return Load(data)
}

// LoadDefault loads the embedded medical data set.
func LoadDefault() (*Graph, error) {
	return Load(defaultSource)
}

func fromSource(src graphSource) (*Graph, error) {
	entities := make([]common.Entity, 0, len(src.Entities))
	for _, e := range src.Entities {
		entities = append(entities, common.Entity{
			ID:          e.ID,
			Kind:        common.EntityKind(e.Kind),
			DisplayName: e.DisplayName,
			Metadata:    e.Metadata,
		})
	}
	relations := make([]common.Relation, 0, len(src.Relations))
	for _, r := range src.Relations {
		relations = append(relations, common.Relation{
			SourceID: r.SourceID,
			TargetID: r.TargetID,
			Kind:     common.RelationKind(r.Kind),
			Weight:   r.Weight,
		})
	}
	return build(entities, relations)
}
