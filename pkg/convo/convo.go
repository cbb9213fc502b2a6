// Package convo drives the phone-triage dialogue. Each session is a
// small state machine over the caller's cumulative symptom set; every
// turn runs the emergency rule screen before any graph reasoning, and
// a fired rule ends the call immediately.
package convo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/callpoint-health/triage/backend/pkg/ai"
	"github.com/callpoint-health/triage/backend/pkg/common"
	"github.com/callpoint-health/triage/backend/pkg/extract"
	"github.com/callpoint-health/triage/backend/pkg/graph"
	"github.com/callpoint-health/triage/backend/pkg/logger"
	"github.com/callpoint-health/triage/backend/pkg/reason"
	"github.com/callpoint-health/triage/backend/pkg/rules"
)

var (
	// ErrUnknownSession is returned when a session id does not exist.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionExists is returned when creating a session with an id
	// that is already in use.
	ErrSessionExists = errors.New("session already exists")
	// ErrInvalidStateTransition is returned when a turn arrives for a
	// closed session. The session is not mutated.
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// Config tunes the dialogue policy.
type Config struct {
	// MinEvidence is the number of contributing symptoms the top
	// candidate needs before a recommendation is given.
	MinEvidence int
	// MaxFollowUps caps the targeted questions asked per session.
	MaxFollowUps int
	// MaxTurns is the turn budget after which the session is closed
	// with whatever is known, or a conservative fallback if nothing is.
	MaxTurns int
	// BandUrgent and BandEmergency are the score thresholds between
	// the routine/urgent and urgent/emergency recommendation bands.
	BandUrgent    float64
	BandEmergency float64
}

// DefaultConfig returns the dialogue policy used in production.
func DefaultConfig() Config {
	return Config{
		MinEvidence:   2,
		MaxFollowUps:  3,
		MaxTurns:      8,
		BandUrgent:    2.2,
		BandEmergency: 3.4,
	}
}

// Session holds the per-call dialogue state. All access goes through
// the owning engine, which serializes turns per session.
type Session struct {
	mu sync.Mutex

	id            string
	correlationID string
	state         common.SessionState
	symptoms      map[string]struct{}
	turnCount     int
	followUps     int
	fallbackIdx   int
	lastRanking   []common.CandidateScore
	startedAt     time.Time
}

// SessionView is an immutable snapshot of a session for transport.
type SessionView struct {
	ID        string                  `json:"id"`
	State     common.SessionState     `json:"state"`
	Symptoms  []string                `json:"symptoms"`
	TurnCount int                     `json:"turn_count"`
	StartedAt time.Time               `json:"started_at"`
	Ranking   []common.CandidateScore `json:"ranking,omitempty"`
}

// Engine owns all live sessions and the shared read-only triage
// assets: the knowledge graph, the emergency rule set, the phrase
// extractor, and the optional AI enricher.
type Engine struct {
	graph     *graph.Graph
	rules     *rules.RuleSet
	extractor *extract.Extractor
	ranker    *reason.Ranker
	enricher  ai.Enricher
	cfg       Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewEngineParams defines the dependencies of a triage engine.
// Enricher may be nil; the engine is fully functional without it.
type NewEngineParams struct {
	Graph     *graph.Graph
	Rules     *rules.RuleSet
	Extractor *extract.Extractor
	Enricher  ai.Enricher
	Config    Config
}

// NewEngine wires a triage engine from its parts.
func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Graph == nil || params.Rules == nil || params.Extractor == nil {
		return nil, errors.New("graph, rules and extractor are required")
	}
	cfg := params.Config
	if cfg.MinEvidence <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		graph:     params.Graph,
		rules:     params.Rules,
		extractor: params.Extractor,
		ranker:    reason.New(params.Graph),
		enricher:  params.Enricher,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
	}, nil
}

// CreateSession registers a new session in the Greeting state. An empty
// id gets a generated one. The returned view includes the assigned id.
func (e *Engine) CreateSession(id string) (*SessionView, error) {
	if id == "" {
		generated, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		id = generated
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:            id,
		correlationID: correlationID,
		state:         common.StateGreeting,
		symptoms:      make(map[string]struct{}),
		startedAt:     time.Now().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[id]; ok {
		return nil, ErrSessionExists
	}
	e.sessions[id] = s

	logger.Info("[Triage] session created", "session", id)
	view := s.view()
	return &view, nil
}

// GetSession returns a snapshot of the session with the given id.
func (e *Engine) GetSession(id string) (*SessionView, error) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	view := s.view()
	return &view, nil
}

// Sessions returns snapshots of all live sessions, ordered by id.
func (e *Engine) Sessions() []SessionView {
	e.mu.RLock()
	all := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.RUnlock()

	views := make([]SessionView, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		views = append(views, s.view())
		s.mu.Unlock()
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// view must be called with s.mu held.
func (s *Session) view() SessionView {
	ranking := make([]common.CandidateScore, len(s.lastRanking))
	copy(ranking, s.lastRanking)
	return SessionView{
		ID:        s.id,
		State:     s.state,
		Symptoms:  sortedIDs(s.symptoms),
		TurnCount: s.turnCount,
		StartedAt: s.startedAt,
		Ranking:   ranking,
	}
}

// ProcessTurn applies one caller utterance to the session and returns
// what to say next. Turns on a closed session fail without mutating
// anything; everything else consumes exactly one turn.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, utterance string) (*common.TurnResult, error) {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == common.StateClosed {
		return nil, ErrInvalidStateTransition
	}

	s.turnCount++

	if s.state == common.StateGreeting {
		s.state = common.StateCollectingSymptoms
		if strings.TrimSpace(utterance) == "" {
			return &common.TurnResult{
				ResponseText: greetingText,
				SessionState: s.state,
			}, nil
		}
		// A first utterance with content is handled as a normal
		// symptom report on the same turn.
	}

	extracted := e.extractor.Extract(utterance)
	for _, id := range extracted {
		if e.graph.Entity(id) != nil {
			s.symptoms[id] = struct{}{}
		}
	}

	// Emergency screen runs before any scoring and is never
	// overridden by anything downstream.
	if rule := e.rules.Evaluate(s.symptoms); rule != nil {
		logger.Warn("[Triage] emergency rule fired", "session", s.id, "rule", rule.Name)
		return e.closeEmergency(s, rule), nil
	}

	ranking := e.ranker.Rank(s.symptoms)
	s.lastRanking = ranking

	if len(ranking) == 0 {
		if s.turnCount >= e.cfg.MaxTurns {
			return e.closeFallback(s), nil
		}
		s.state = common.StateCollectingSymptoms
		return &common.TurnResult{
			ResponseText: clarificationText(len(extracted) == 0),
			SessionState: s.state,
		}, nil
	}

	top := ranking[0]
	needMore := len(top.ContributingSymptoms) < e.cfg.MinEvidence
	if needMore && s.followUps < e.cfg.MaxFollowUps && s.turnCount < e.cfg.MaxTurns {
		s.state = common.StateFollowUp
		s.followUps++
		return &common.TurnResult{
			ResponseText: e.followUpQuestion(s, top),
			SessionState: s.state,
		}, nil
	}

	// Evidence gating above always uses the deterministic order; the
	// enricher only reorders what is about to be recommended.
	ranking = e.enrich(ctx, s, ranking)
	s.lastRanking = ranking

	s.state = common.StateRecommending
	return e.closeRecommendation(s, ranking[0]), nil
}

// enrich lets the optional AI client reorder the deterministic ranking.
// Any error or invalid output falls back to the deterministic order.
func (e *Engine) enrich(ctx context.Context, s *Session, ranking []common.CandidateScore) []common.CandidateScore {
	if e.enricher == nil || len(ranking) < 2 {
		return ranking
	}
	enriched, err := e.enricher.EnrichRanking(ctx, sortedIDs(s.symptoms), ranking)
	if err != nil {
		logger.Warn("[Triage] enrichment discarded", "session", s.id, "err", err)
		return ranking
	}
	return enriched
}

func (e *Engine) closeEmergency(s *Session, rule *common.EmergencyRule) *common.TurnResult {
	s.state = common.StateClosed
	return &common.TurnResult{
		ResponseText:  emergencyText(rule),
		IsEmergency:   true,
		SessionState:  s.state,
		ShouldEndCall: true,
		Urgency:       common.UrgencyEmergency,
		Summary:       e.summarize(s, true, rule.Name, "", common.UrgencyEmergency),
	}
}

func (e *Engine) closeRecommendation(s *Session, top common.CandidateScore) *common.TurnResult {
	urgency := e.band(top)
	s.state = common.StateClosed
	logger.Info("[Triage] recommendation",
		"session", s.id,
		"condition", top.ConditionID,
		"score", top.Score,
		"urgency", urgency,
	)
	return &common.TurnResult{
		ResponseText:  e.recommendationText(top, urgency),
		SessionState:  s.state,
		ShouldEndCall: true,
		Urgency:       urgency,
		Summary:       e.summarize(s, false, "", top.ConditionID, urgency),
	}
}

// closeFallback ends a session whose turn budget ran out without any
// usable evidence. The advice degrades toward caution.
func (e *Engine) closeFallback(s *Session) *common.TurnResult {
	s.state = common.StateClosed
	return &common.TurnResult{
		ResponseText:  fallbackRecommendationText,
		SessionState:  s.state,
		ShouldEndCall: true,
		Urgency:       common.UrgencyRoutine,
		Summary:       e.summarize(s, false, "", "", common.UrgencyRoutine),
	}
}

// band maps the top score onto a care level. A condition whose graph
// metadata carries a higher clinical urgency upgrades the band, never
// downgrades it.
func (e *Engine) band(top common.CandidateScore) common.UrgencyLevel {
	urgency := common.UrgencyRoutine
	switch {
	case top.Score >= e.cfg.BandEmergency:
		urgency = common.UrgencyEmergency
	case top.Score >= e.cfg.BandUrgent:
		urgency = common.UrgencyUrgent
	}

	if entity := e.graph.Entity(top.ConditionID); entity != nil {
		if meta := common.UrgencyLevel(entity.Metadata["urgency"]); rankUrgency(meta) > rankUrgency(urgency) {
			urgency = meta
		}
	}
	return urgency
}

func rankUrgency(u common.UrgencyLevel) int {
	switch u {
	case common.UrgencyEmergency:
		return 2
	case common.UrgencyUrgent:
		return 1
	case common.UrgencyRoutine:
		return 0
	}
	return -1
}

// followUpQuestion picks the question most likely to separate the top
// candidate from the rest: an unreported symptom with an indicates edge
// into the candidate, preferring ones linked by co-occurrence to a
// symptom the caller already reported, then by edge weight, then by id.
func (e *Engine) followUpQuestion(s *Session, top common.CandidateScore) string {
	type option struct {
		entity   *common.Entity
		weight   float64
		coOccurs bool
	}
	var options []option
	for _, edge := range e.graph.Incoming(top.ConditionID, common.RelationIndicates) {
		if _, reported := s.symptoms[edge.Entity.ID]; reported {
			continue
		}
		opt := option{entity: edge.Entity, weight: edge.Weight}
		for reported := range s.symptoms {
			for _, co := range e.graph.Neighbors(reported, common.RelationCoOccurs) {
				if co.Entity.ID == opt.entity.ID {
					opt.coOccurs = true
				}
			}
		}
		options = append(options, opt)
	}
	if len(options) == 0 {
		q := fallbackQuestions[s.fallbackIdx%len(fallbackQuestions)]
		s.fallbackIdx++
		return q
	}
	sort.Slice(options, func(i, j int) bool {
		if options[i].coOccurs != options[j].coOccurs {
			return options[i].coOccurs
		}
		if options[i].weight != options[j].weight {
			return options[i].weight > options[j].weight
		}
		return options[i].entity.ID < options[j].entity.ID
	})
	return followUpText(options[0].entity)
}

func (e *Engine) summarize(s *Session, emergency bool, ruleName, topCondition string, urgency common.UrgencyLevel) *common.CallSummary {
	return &common.CallSummary{
		SessionID:         s.id,
		CorrelationID:     s.correlationID,
		FinalState:        s.state,
		Symptoms:          sortedIDs(s.symptoms),
		TurnCount:         s.turnCount,
		EmergencyDetected: emergency,
		EmergencyRule:     ruleName,
		TopCondition:      topCondition,
		Urgency:           urgency,
		StartedAt:         s.startedAt,
		EndedAt:           time.Now().UTC(),
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
