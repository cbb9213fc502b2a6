// Package reason scores candidate conditions against the cumulative
// symptom set by walking the knowledge graph. Scoring is purely
// deterministic: the same graph and symptom set always produce the same
// ranking, byte for byte.
package reason

import (
	"sort"

	"github.com/callpoint-health/triage/backend/pkg/common"
	"github.com/callpoint-health/triage/backend/pkg/graph"
)

// Ranker walks indicates edges from reported symptoms to conditions and
// layers risk-factor boosts on top. It holds no mutable state and is
// safe for concurrent use.
type Ranker struct {
	graph *graph.Graph
}

// New creates a ranker over the given graph.
func New(g *graph.Graph) *Ranker {
	return &Ranker{graph: g}
}

type accumulator struct {
	score        float64
	matchedEdges int
	contributing map[string]struct{}
}

// Rank scores every condition reachable from the symptom set and
// returns candidates in descending score order. Ties break on matched
// edge count, then on condition id. Conditions with no symptom evidence
// are excluded entirely; a risk factor alone never creates a candidate,
// it only boosts conditions that already have one. Ids in the set that
// are not graph entities are ignored.
func (r *Ranker) Rank(symptoms map[string]struct{}) []common.CandidateScore {
	acc := make(map[string]*accumulator)

	// Accumulate in sorted id order. Float addition is not associative,
	// so summing in map iteration order would let identical inputs land
	// on different scores.
	ids := make([]string, 0, len(symptoms))
	for id := range symptoms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var riskFactors []string
	for _, id := range ids {
		entity := r.graph.Entity(id)
		if entity == nil {
			continue
		}
		if entity.Kind == common.KindRiskFactor {
			riskFactors = append(riskFactors, id)
			continue
		}
		for _, edge := range r.graph.Neighbors(id, common.RelationIndicates) {
			a := acc[edge.Entity.ID]
			if a == nil {
				a = &accumulator{contributing: make(map[string]struct{})}
				acc[edge.Entity.ID] = a
			}
			a.score += edge.Weight
			a.matchedEdges++
			a.contributing[id] = struct{}{}
		}
	}

	// Risk factors only amplify evidence that already exists.
	for _, id := range riskFactors {
		for _, edge := range r.graph.Neighbors(id, common.RelationElevatesRisk) {
			a := acc[edge.Entity.ID]
			if a == nil || a.score <= 0 {
				continue
			}
			a.score += edge.Weight
			a.matchedEdges++
			a.contributing[id] = struct{}{}
		}
	}

	candidates := make([]common.CandidateScore, 0, len(acc))
	for conditionID, a := range acc {
		contributing := make([]string, 0, len(a.contributing))
		for id := range a.contributing {
			contributing = append(contributing, id)
		}
		sort.Strings(contributing)
		candidates = append(candidates, common.CandidateScore{
			ConditionID:          conditionID,
			Score:                a.score,
			ContributingSymptoms: contributing,
			MatchedEdges:         a.matchedEdges,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].MatchedEdges != candidates[j].MatchedEdges {
			return candidates[i].MatchedEdges > candidates[j].MatchedEdges
		}
		return candidates[i].ConditionID < candidates[j].ConditionID
	})
	return candidates
}
