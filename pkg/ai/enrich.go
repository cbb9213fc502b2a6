package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callpoint-health/triage/backend/pkg/common"
)

// ErrEnrichmentRejected is returned when the model output is not an
// exact permutation of the deterministic candidate list.
var ErrEnrichmentRejected = errors.New("enrichment output rejected")

// Enricher reorders a deterministic candidate ranking. Implementations
// must return either a permutation of the input or an error; callers
// fall back to the deterministic order on any error.
type Enricher interface {
	EnrichRanking(
		ctx context.Context,
		symptoms []string,
		candidates []common.CandidateScore,
	) ([]common.CandidateScore, error)
}

// RankedOrder is the structured output requested from the model.
type RankedOrder struct {
	ConditionIDs []string `json:"condition_ids" jsonschema_description:"Candidate condition ids, most plausible first"`
	Rationale    string   `json:"rationale" jsonschema_description:"One short sentence explaining the ordering"`
}

// RankingEnricher asks an AI model to reorder graph candidates. Output
// is validated strictly: anything other than a permutation of the input
// ids is discarded, so the model can never introduce or suppress a
// condition.
type RankingEnricher struct {
	client  TriageAIClient
	timeout time.Duration
}

// NewRankingEnricher wraps an AI client. Timeout bounds a single
// enrichment call; zero disables the bound.
func NewRankingEnricher(client TriageAIClient, timeout time.Duration) *RankingEnricher {
	return &RankingEnricher{client: client, timeout: timeout}
}

// EnrichRanking reorders candidates by model-judged plausibility.
// Scores and contributing symptoms travel with their condition; only
// positions change. With fewer than two candidates there is nothing to
// reorder and the input is returned as-is.
func (e *RankingEnricher) EnrichRanking(
	ctx context.Context,
	symptoms []string,
	candidates []common.CandidateScore,
) ([]common.CandidateScore, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var out RankedOrder
	err := e.client.GenerateCompletionWithFormat(
		ctx,
		"candidate_ranking",
		"Reordered candidate condition ids, most plausible first",
		BuildRankingPrompt(symptoms, candidates),
		&out,
		WithSystemPrompts(RankingSystemPrompt),
		WithTemperature(0.1),
	)
	if err != nil {
		return nil, err
	}

	return applyOrder(candidates, out.ConditionIDs)
}

func applyOrder(candidates []common.CandidateScore, order []string) ([]common.CandidateScore, error) {
	if len(order) != len(candidates) {
		return nil, fmt.Errorf("%w: got %d ids, want %d", ErrEnrichmentRejected, len(order), len(candidates))
	}
	byID := make(map[string]common.CandidateScore, len(candidates))
	for _, c := range candidates {
		byID[c.ConditionID] = c
	}
	seen := make(map[string]struct{}, len(order))
	reordered := make([]common.CandidateScore, 0, len(order))
	for _, id := range order {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown condition id %q", ErrEnrichmentRejected, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate condition id %q", ErrEnrichmentRejected, id)
		}
		seen[id] = struct{}{}
		reordered = append(reordered, c)
	}
	return reordered, nil
}
