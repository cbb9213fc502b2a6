package common

import "time"

// EntityKind classifies a node in the medical knowledge graph.
type EntityKind string

const (
	KindCondition  EntityKind = "condition"
	KindSymptom    EntityKind = "symptom"
	KindRiskFactor EntityKind = "risk_factor"
)

// RelationKind classifies a directed edge between two entities.
type RelationKind string

const (
	// RelationIndicates points from a symptom to a condition it is
	// evidence for.
	RelationIndicates RelationKind = "indicates"
	// RelationCoOccurs points between two symptoms that commonly
	// appear together.
	RelationCoOccurs RelationKind = "co_occurs_with"
	// RelationElevatesRisk points from a risk factor to a condition
	// whose likelihood it raises.
	RelationElevatesRisk RelationKind = "elevates_risk_of"
)

// Entity represents a node in the knowledge graph: a medical condition,
// a symptom, or a risk factor. Entities are immutable after the graph
// is loaded; ID is the join key used everywhere else in the engine.
type Entity struct {
	ID          string            `json:"id"`
	Kind        EntityKind        `json:"kind"`
	DisplayName string            `json:"display_name"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Relation represents a directed, weighted edge between two entities.
// Weight must lie in (0,1]. Two entities may be connected by multiple
// relations only if the relation kind differs.
type Relation struct {
	SourceID string       `json:"source_id"`
	TargetID string       `json:"target_id"`
	Kind     RelationKind `json:"kind"`
	Weight   float64      `json:"weight"`
}

// EmergencyRule is a boolean trigger over a symptom set. A rule fires
// when the cumulative symptom set contains every id in RequiredSymptoms
// and, if AnyOfSymptoms is non-empty, at least one id from it. Rules
// are evaluated in declared order and the first match wins.
type EmergencyRule struct {
	Name             string   `json:"name"`
	RequiredSymptoms []string `json:"required_symptoms"`
	AnyOfSymptoms    []string `json:"any_of_symptoms,omitempty"`
	SeverityLabel    string   `json:"severity_label"`
	Directive        string   `json:"directive"`
}

// CandidateScore is the transient output of the reasoner for a single
// condition. ContributingSymptoms lists the symptom and risk-factor ids
// from the cumulative set that produced the score, in lexicographic
// order. MatchedEdges counts the graph edges behind the score and is
// the first tie-breaker between equal scores.
type CandidateScore struct {
	ConditionID          string   `json:"condition_id"`
	Score                float64  `json:"score"`
	ContributingSymptoms []string `json:"contributing_symptoms"`
	MatchedEdges         int      `json:"matched_edges"`
}

// SessionState is the closed enumeration of dialogue states.
type SessionState string

const (
	StateGreeting           SessionState = "greeting"
	StateCollectingSymptoms SessionState = "collecting_symptoms"
	StateFollowUp           SessionState = "follow_up"
	StateRecommending       SessionState = "recommending"
	StateClosed             SessionState = "closed"
)

// UrgencyLevel is the care-level band attached to a recommendation.
type UrgencyLevel string

const (
	UrgencyEmergency UrgencyLevel = "emergency"
	UrgencyUrgent    UrgencyLevel = "urgent"
	UrgencyRoutine   UrgencyLevel = "routine"
)

// TurnResult is what the engine hands back to the transport layer for
// a single processed turn. Summary is non-nil only on the turn that
// closes the session.
type TurnResult struct {
	ResponseText  string       `json:"response_text"`
	IsEmergency   bool         `json:"is_emergency"`
	SessionState  SessionState `json:"session_state"`
	ShouldEndCall bool         `json:"should_end_call"`
	Urgency       UrgencyLevel `json:"urgency,omitempty"`
	Summary       *CallSummary `json:"summary,omitempty"`
}

// CallSummary is the serialized form of a finished session. It is the
// payload published to the archive queue and persisted by the worker.
type CallSummary struct {
	SessionID         string       `json:"session_id"`
	CorrelationID     string       `json:"correlation_id"`
	FinalState        SessionState `json:"final_state"`
	Symptoms          []string     `json:"symptoms"`
	TurnCount         int          `json:"turn_count"`
	EmergencyDetected bool         `json:"emergency_detected"`
	EmergencyRule     string       `json:"emergency_rule,omitempty"`
	TopCondition      string       `json:"top_condition,omitempty"`
	Urgency           UrgencyLevel `json:"urgency,omitempty"`
	StartedAt         time.Time    `json:"started_at"`
	EndedAt           time.Time    `json:"ended_at"`
}
