package graph

import (
	"errors"
	"testing"

	"github.com/callpoint-health/triage/backend/pkg/common"
)

func TestLoadDefault(t *testing.T) {
	g, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if got := len(g.EntitiesByKind(common.KindCondition)); got != 8 {
		t.Errorf("condition count = %d, want 8", got)
	}
	if g.Entity("migraine") == nil {
		t.Error("Entity(migraine) = nil, want entity")
	}
	if g.Entity("does_not_exist") != nil {
		t.Error("Entity(does_not_exist) != nil, want nil")
	}
}

func TestLoadRejectsInvalidSources(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{
			name:    "invalid json",
			source:  `{"entities": [`,
			wantErr: ErrMalformedGraph,
		},
		{
			name: "duplicate entity id",
			source: `{
				"entities": [
					{"id": "fever", "kind": "symptom", "display_name": "Fever"},
					{"id": "fever", "kind": "symptom", "display_name": "Fever again"}
				],
				"relations": []
			}`,
			wantErr: ErrDuplicateEntity,
		},
		{
			name: "empty entity id",
			source: `{
				"entities": [{"id": "", "kind": "symptom", "display_name": "Fever"}],
				"relations": []
			}`,
			wantErr: ErrMalformedGraph,
		},
		{
			name: "unknown entity kind",
			source: `{
				"entities": [{"id": "fever", "kind": "medication", "display_name": "Fever"}],
				"relations": []
			}`,
			wantErr: ErrMalformedGraph,
		},
		{
			name: "dangling relation source",
			source: `{
				"entities": [{"id": "flu", "kind": "condition", "display_name": "Flu"}],
				"relations": [{"source_id": "fever", "target_id": "flu", "kind": "indicates", "weight": 0.9}]
			}`,
			wantErr: ErrMalformedGraph,
		},
		{
			name: "dangling relation target",
			source: `{
				"entities": [{"id": "fever", "kind": "symptom", "display_name": "Fever"}],
				"relations": [{"source_id": "fever", "target_id": "flu", "kind": "indicates", "weight": 0.9}]
			}`,
			wantErr: ErrMalformedGraph,
		},
		{
			name: "unknown relation kind",
			source: `{
				"entities": [
					{"id": "fever", "kind": "symptom", "display_name": "Fever"},
					{"id": "flu", "kind": "condition", "display_name": "Flu"}
				],
				"relations": [{"source_id": "fever", "target_id": "flu", "kind": "treats", "weight": 0.9}]
			}`,
			wantErr: ErrMalformedGraph,
		},
		{
			name: "zero weight",
			source: `{
				"entities": [
					{"id": "fever", "kind": "symptom", "display_name": "Fever"},
					{"id": "flu", "kind": "condition", "display_name": "Flu"}
				],
				"relations": [{"source_id": "fever", "target_id": "flu", "kind": "indicates", "weight": 0}]
			}`,
			wantErr: ErrMalformedGraph,
		},
		{
			name: "weight above one",
			source: `{
				"entities": [
					{"id": "fever", "kind": "symptom", "display_name": "Fever"},
					{"id": "flu", "kind": "condition", "display_name": "Flu"}
				],
				"relations": [{"source_id": "fever", "target_id": "flu", "kind": "indicates", "weight": 1.5}]
			}`,
			wantErr: ErrMalformedGraph,
		},
		{
			name: "duplicate relation pair",
			source: `{
				"entities": [
					{"id": "fever", "kind": "symptom", "display_name": "Fever"},
					{"id": "flu", "kind": "condition", "display_name": "Flu"}
				],
				"relations": [
					{"source_id": "fever", "target_id": "flu", "kind": "indicates", "weight": 0.9},
					{"source_id": "fever", "target_id": "flu", "kind": "indicates", "weight": 0.4}
				]
			}`,
			wantErr: ErrMalformedGraph,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Load([]byte(tt.source))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}
			if g != nil {
				t.Error("Load() returned a graph alongside an error")
			}
		})
	}
}

func TestNeighborsOrdering(t *testing.T) {
	source := `{
		"entities": [
			{"id": "zeta", "kind": "condition", "display_name": "Zeta"},
			{"id": "alpha", "kind": "condition", "display_name": "Alpha"},
			{"id": "mid", "kind": "condition", "display_name": "Mid"},
			{"id": "fever", "kind": "symptom", "display_name": "Fever"}
		],
		"relations": [
			{"source_id": "fever", "target_id": "zeta", "kind": "indicates", "weight": 0.9},
			{"source_id": "fever", "target_id": "alpha", "kind": "indicates", "weight": 0.5},
			{"source_id": "fever", "target_id": "mid", "kind": "indicates", "weight": 0.7}
		]
	}`
	g, err := Load([]byte(source))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got := g.Neighbors("fever", common.RelationIndicates)
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Neighbors() returned %d edges, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Entity.ID != w {
			t.Errorf("Neighbors()[%d] = %q, want %q", i, got[i].Entity.ID, w)
		}
	}

	if edges := g.Neighbors("fever", common.RelationCoOccurs); len(edges) != 0 {
		t.Errorf("Neighbors(co_occurs_with) = %d edges, want 0", len(edges))
	}
	if edges := g.Neighbors("unknown", common.RelationIndicates); len(edges) != 0 {
		t.Errorf("Neighbors(unknown) = %d edges, want 0", len(edges))
	}
}

func TestIncoming(t *testing.T) {
	g, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}

	edges := g.Incoming("migraine", common.RelationIndicates)
	if len(edges) == 0 {
		t.Fatal("Incoming(migraine) is empty")
	}
	for i := 1; i < len(edges); i++ {
		if edges[i-1].Entity.ID >= edges[i].Entity.ID {
			t.Fatalf("Incoming(migraine) not sorted: %q before %q", edges[i-1].Entity.ID, edges[i].Entity.ID)
		}
	}
	seen := false
	for _, e := range edges {
		if e.Entity.ID == "headache" {
			seen = true
			if e.Weight != 1.0 {
				t.Errorf("headache -> migraine weight = %v, want 1.0", e.Weight)
			}
		}
	}
	if !seen {
		t.Error("Incoming(migraine) does not contain headache")
	}
}
