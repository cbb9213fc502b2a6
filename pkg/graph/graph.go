package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/callpoint-health/triage/backend/pkg/common"
)

var (
	// ErrDuplicateEntity is returned when two entities in a graph
	// source share an id.
	ErrDuplicateEntity = errors.New("duplicate entity id")
	// ErrMalformedGraph is returned when a relation references an
	// unknown entity, carries an invalid weight, or duplicates
	// another relation of the same kind between the same pair.
	ErrMalformedGraph = errors.New("malformed graph")
)

// Weighted pairs an entity with the weight of the edge that reached it.
type Weighted struct {
	Entity *common.Entity
	Weight float64
}

// Graph is the in-memory medical knowledge graph. It is loaded once as
// a single atomic unit and is read-only afterwards, so it can be shared
// across concurrent sessions without locking.
type Graph struct {
	entities map[string]*common.Entity
	byKind   map[common.EntityKind][]*common.Entity
	outgoing map[string]map[common.RelationKind][]Weighted
	incoming map[string]map[common.RelationKind][]Weighted
}

// Entity returns the entity with the given id, or nil if unknown.
func (g *Graph) Entity(id string) *common.Entity {
	return g.entities[id]
}

// EntitiesByKind returns all entities of the given kind in lexicographic
// id order.
func (g *Graph) EntitiesByKind(kind common.EntityKind) []*common.Entity {
	return g.byKind[kind]
}

// Neighbors returns the targets of all outgoing edges of the given kind
// from the entity, in lexicographic target-id order.
func (g *Graph) Neighbors(entityID string, kind common.RelationKind) []Weighted {
	return g.outgoing[entityID][kind]
}

// Incoming returns the sources of all incoming edges of the given kind
// into the entity, in lexicographic source-id order.
func (g *Graph) Incoming(entityID string, kind common.RelationKind) []Weighted {
	return g.incoming[entityID][kind]
}

func build(entities []common.Entity, relations []common.Relation) (*Graph, error) {
	g := &Graph{
		entities: make(map[string]*common.Entity, len(entities)),
		byKind:   make(map[common.EntityKind][]*common.Entity),
		outgoing: make(map[string]map[common.RelationKind][]Weighted),
		incoming: make(map[string]map[common.RelationKind][]Weighted),
	}

	for i := range entities {
		e := entities[i]
		if e.ID == "" {
			return nil, fmt.Errorf("%w: entity with empty id", ErrMalformedGraph)
		}
		switch e.Kind {
		case common.KindCondition, common.KindSymptom, common.KindRiskFactor:
		default:
			return nil, fmt.Errorf("%w: entity %q has unknown kind %q", ErrMalformedGraph, e.ID, e.Kind)
		}
		if _, ok := g.entities[e.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntity, e.ID)
		}
		g.entities[e.ID] = &e
		g.byKind[e.Kind] = append(g.byKind[e.Kind], &e)
	}

	type pairKey struct {
		src, dst string
		kind     common.RelationKind
	}
	seen := make(map[pairKey]struct{}, len(relations))

	for _, r := range relations {
		src, ok := g.entities[r.SourceID]
		if !ok {
			return nil, fmt.Errorf("%w: relation source %q is not a known entity", ErrMalformedGraph, r.SourceID)
		}
		dst, ok := g.entities[r.TargetID]
		if !ok {
			return nil, fmt.Errorf("%w: relation target %q is not a known entity", ErrMalformedGraph, r.TargetID)
		}
		switch r.Kind {
		case common.RelationIndicates, common.RelationCoOccurs, common.RelationElevatesRisk:
		default:
			return nil, fmt.Errorf("%w: relation %q -> %q has unknown kind %q", ErrMalformedGraph, r.SourceID, r.TargetID, r.Kind)
		}
		if r.Weight <= 0 || r.Weight > 1 {
			return nil, fmt.Errorf("%w: relation %q -> %q has weight %v outside (0,1]", ErrMalformedGraph, r.SourceID, r.TargetID, r.Weight)
		}
		key := pairKey{r.SourceID, r.TargetID, r.Kind}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate %s relation %q -> %q", ErrMalformedGraph, r.Kind, r.SourceID, r.TargetID)
		}
		seen[key] = struct{}{}

		if g.outgoing[r.SourceID] == nil {
			g.outgoing[r.SourceID] = make(map[common.RelationKind][]Weighted)
		}
		if g.incoming[r.TargetID] == nil {
			g.incoming[r.TargetID] = make(map[common.RelationKind][]Weighted)
		}
		g.outgoing[r.SourceID][r.Kind] = append(g.outgoing[r.SourceID][r.Kind], Weighted{Entity: dst, Weight: r.Weight})
		g.incoming[r.TargetID][r.Kind] = append(g.incoming[r.TargetID][r.Kind], Weighted{Entity: src, Weight: r.Weight})
	}

	for _, list := range g.byKind {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	for _, kinds := range g.outgoing {
		for _, list := range kinds {
			sort.Slice(list, func(i, j int) bool { return list[i].Entity.ID < list[j].Entity.ID })
		}
	}
	for _, kinds := range g.incoming {
		for _, list := range kinds {
			sort.Slice(list, func(i, j int) bool { return list[i].Entity.ID < list[j].Entity.ID })
		}
	}

	return g, nil
}
