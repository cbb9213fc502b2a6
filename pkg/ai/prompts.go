package ai

import (
	"fmt"
	"strings"

	"github.com/callpoint-health/triage/backend/pkg/common"
)

// RankingSystemPrompt frames the enrichment task. The model is only
// allowed to reorder the candidates it is given, never to invent or
// drop any.
const RankingSystemPrompt = `You are assisting a telephone symptom triage system.
You will receive a caller's reported symptoms and a list of candidate conditions
produced by a deterministic medical knowledge graph.

Your ONLY task is to reorder the candidate list by clinical plausibility.
Rules:
- Return every candidate id you were given, exactly once.
- Never add a condition that is not in the list.
- Never remove a condition from the list.
- Do not give medical advice or mention emergencies.`

// BuildRankingPrompt renders the reported symptoms and the candidate
// list into the user prompt for ranking enrichment.
func BuildRankingPrompt(symptoms []string, candidates []common.CandidateScore) string {
	var b strings.Builder
	b.WriteString("Reported symptoms:\n")
	for _, s := range symptoms {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\nCandidate conditions (graph score, matched edges):\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s (score %.2f, %d edges)\n", c.ConditionID, c.Score, c.MatchedEdges)
	}
	b.WriteString("\nReturn the candidate ids reordered by clinical plausibility.")
	return b.String()
}
