package convo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/callpoint-health/triage/backend/pkg/ai"
	"github.com/callpoint-health/triage/backend/pkg/common"
	"github.com/callpoint-health/triage/backend/pkg/extract"
	"github.com/callpoint-health/triage/backend/pkg/graph"
	"github.com/callpoint-health/triage/backend/pkg/rules"
)

func newTestEngine(t *testing.T, cfg Config, enricher ai.Enricher) *Engine {
	t.Helper()
	g, err := graph.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	rs, err := rules.NewDefault()
	if err != nil {
		t.Fatalf("rules.NewDefault() error = %v", err)
	}
	ex, err := extract.NewDefault()
	if err != nil {
		t.Fatalf("extract.NewDefault() error = %v", err)
	}
	e, err := NewEngine(NewEngineParams{
		Graph:     g,
		Rules:     rs,
		Extractor: ex,
		Enricher:  enricher,
		Config:    cfg,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func mustCreate(t *testing.T, e *Engine, id string) string {
	t.Helper()
	view, err := e.CreateSession(id)
	if err != nil {
		t.Fatalf("CreateSession(%q) error = %v", id, err)
	}
	if view.State != common.StateGreeting {
		t.Fatalf("new session state = %q, want %q", view.State, common.StateGreeting)
	}
	return view.ID
}

func TestGreetingConsumesFirstEmptyTurn(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	id := mustCreate(t, e, "call-1")

	res, err := e.ProcessTurn(context.Background(), id, "")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.SessionState != common.StateCollectingSymptoms {
		t.Errorf("state = %q, want %q", res.SessionState, common.StateCollectingSymptoms)
	}
	if res.IsEmergency || res.ShouldEndCall {
		t.Error("greeting turn flagged as emergency or end of call")
	}
	if res.ResponseText == "" {
		t.Error("greeting turn has empty response")
	}

	view, err := e.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if view.TurnCount != 1 {
		t.Errorf("turn count = %d, want 1", view.TurnCount)
	}
}

func TestEmergencyRuleEndsCall(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	id := mustCreate(t, e, "call-emergency")

	res, err := e.ProcessTurn(context.Background(), id, "I have chest pain and I'm sweating a lot")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if !res.IsEmergency {
		t.Fatal("IsEmergency = false, want true")
	}
	if !res.ShouldEndCall {
		t.Error("ShouldEndCall = false, want true")
	}
	if res.SessionState != common.StateClosed {
		t.Errorf("state = %q, want %q", res.SessionState, common.StateClosed)
	}
	if res.Urgency != common.UrgencyEmergency {
		t.Errorf("urgency = %q, want %q", res.Urgency, common.UrgencyEmergency)
	}
	if !strings.Contains(res.ResponseText, "911") {
		t.Errorf("response %q does not direct the caller to 911", res.ResponseText)
	}
	if res.Summary == nil {
		t.Fatal("Summary = nil on closing turn")
	}
	if res.Summary.EmergencyRule != "cardiac_event" {
		t.Errorf("summary rule = %q, want cardiac_event", res.Summary.EmergencyRule)
	}
	if !res.Summary.EmergencyDetected {
		t.Error("summary EmergencyDetected = false")
	}
}

func TestRoutineRecommendation(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	id := mustCreate(t, e, "call-routine")

	res, err := e.ProcessTurn(context.Background(), id, "I have a headache and I feel nauseous")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.IsEmergency {
		t.Error("IsEmergency = true for routine symptoms")
	}
	if res.SessionState != common.StateClosed {
		t.Errorf("state = %q, want %q", res.SessionState, common.StateClosed)
	}
	if res.Urgency != common.UrgencyRoutine {
		t.Errorf("urgency = %q, want %q", res.Urgency, common.UrgencyRoutine)
	}
	if !strings.Contains(res.ResponseText, "Migraine") {
		t.Errorf("response %q does not mention the migraine recommendation", res.ResponseText)
	}
	if !strings.Contains(res.ResponseText, "not a medical diagnosis") {
		t.Errorf("response %q is missing the disclaimer", res.ResponseText)
	}
	if res.Summary == nil || res.Summary.TopCondition != "migraine" {
		t.Fatalf("summary = %+v, want top condition migraine", res.Summary)
	}
}

func TestFollowUpThenUrgentRecommendation(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	id := mustCreate(t, e, "call-followup")
	ctx := context.Background()

	res, err := e.ProcessTurn(ctx, id, "I've been coughing all week")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.SessionState != common.StateFollowUp {
		t.Fatalf("state after single symptom = %q, want %q", res.SessionState, common.StateFollowUp)
	}
	// With only cough reported, fever is the heaviest missing edge
	// into the top candidate.
	if !strings.Contains(strings.ToLower(res.ResponseText), "fever") {
		t.Errorf("follow-up question %q does not ask about fever", res.ResponseText)
	}

	res, err = e.ProcessTurn(ctx, id, "yes, I have a fever too")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.SessionState != common.StateClosed {
		t.Fatalf("state = %q, want %q", res.SessionState, common.StateClosed)
	}
	if res.Urgency != common.UrgencyUrgent {
		t.Errorf("urgency = %q, want %q", res.Urgency, common.UrgencyUrgent)
	}
	if res.Summary == nil || res.Summary.TopCondition != "pneumonia" {
		t.Fatalf("summary = %+v, want top condition pneumonia", res.Summary)
	}
	if res.Summary.TurnCount != 2 {
		t.Errorf("summary turn count = %d, want 2", res.Summary.TurnCount)
	}
}

func TestNoSymptomsAsksForClarification(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	id := mustCreate(t, e, "call-unclear")

	res, err := e.ProcessTurn(context.Background(), id, "my car broke down on the highway")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.SessionState != common.StateCollectingSymptoms {
		t.Errorf("state = %q, want %q", res.SessionState, common.StateCollectingSymptoms)
	}
	if res.ShouldEndCall {
		t.Error("ShouldEndCall = true after a single unclear turn")
	}
	if res.ResponseText == "" {
		t.Error("clarification turn has empty response")
	}
}

func TestTurnBudgetFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTurns = 2
	e := newTestEngine(t, cfg, nil)
	id := mustCreate(t, e, "call-budget")
	ctx := context.Background()

	res, err := e.ProcessTurn(ctx, id, "um, hello?")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.ShouldEndCall {
		t.Fatal("call ended before the turn budget ran out")
	}

	res, err = e.ProcessTurn(ctx, id, "I don't know how to describe it")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if res.SessionState != common.StateClosed || !res.ShouldEndCall {
		t.Fatalf("state = %q, ShouldEndCall = %v, want closed call", res.SessionState, res.ShouldEndCall)
	}
	if res.IsEmergency {
		t.Error("fallback closure flagged as emergency")
	}
	if res.Summary == nil || res.Summary.TopCondition != "" {
		t.Fatalf("summary = %+v, want no top condition", res.Summary)
	}
}

func TestClosedSessionRejectsTurns(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	id := mustCreate(t, e, "call-closed")
	ctx := context.Background()

	if _, err := e.ProcessTurn(ctx, id, "chest pain and trouble breathing"); err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}

	before, err := e.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}

	if _, err := e.ProcessTurn(ctx, id, "also I have a fever now"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("ProcessTurn() on closed session error = %v, want %v", err, ErrInvalidStateTransition)
	}

	after, err := e.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if after.TurnCount != before.TurnCount || len(after.Symptoms) != len(before.Symptoms) {
		t.Error("rejected turn mutated the session")
	}
}

func TestSessionLifecycleErrors(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	mustCreate(t, e, "call-dup")

	if _, err := e.CreateSession("call-dup"); !errors.Is(err, ErrSessionExists) {
		t.Errorf("CreateSession(dup) error = %v, want %v", err, ErrSessionExists)
	}
	if _, err := e.GetSession("missing"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("GetSession(missing) error = %v, want %v", err, ErrUnknownSession)
	}
	if _, err := e.ProcessTurn(context.Background(), "missing", "hello"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("ProcessTurn(missing) error = %v, want %v", err, ErrUnknownSession)
	}

	view, err := e.CreateSession("")
	if err != nil {
		t.Fatalf("CreateSession(generated) error = %v", err)
	}
	if view.ID == "" {
		t.Error("generated session id is empty")
	}
}

// swapEnricher swaps the top two candidates.
type swapEnricher struct{ calls int }

func (s *swapEnricher) EnrichRanking(ctx context.Context, symptoms []string, candidates []common.CandidateScore) ([]common.CandidateScore, error) {
	s.calls++
	out := make([]common.CandidateScore, len(candidates))
	copy(out, candidates)
	out[0], out[1] = out[1], out[0]
	return out, nil
}

// failingEnricher always errors.
type failingEnricher struct{ calls int }

func (f *failingEnricher) EnrichRanking(ctx context.Context, symptoms []string, candidates []common.CandidateScore) ([]common.CandidateScore, error) {
	f.calls++
	return nil, errors.New("model unavailable")
}

func TestEnrichmentReordersRecommendation(t *testing.T) {
	enricher := &swapEnricher{}
	e := newTestEngine(t, DefaultConfig(), enricher)
	id := mustCreate(t, e, "call-enriched")

	res, err := e.ProcessTurn(context.Background(), id, "I have a headache and I feel nauseous")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if enricher.calls == 0 {
		t.Fatal("enricher was never called")
	}
	if res.Summary == nil {
		t.Fatal("Summary = nil")
	}
	// Deterministic top is migraine; the swap promotes the runner-up.
	if res.Summary.TopCondition == "migraine" {
		t.Error("enriched ordering was not applied")
	}
}

func TestEnrichmentFailureFallsBack(t *testing.T) {
	enricher := &failingEnricher{}
	e := newTestEngine(t, DefaultConfig(), enricher)
	id := mustCreate(t, e, "call-enrich-fail")

	res, err := e.ProcessTurn(context.Background(), id, "I have a headache and I feel nauseous")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if enricher.calls == 0 {
		t.Fatal("enricher was never called")
	}
	if res.Summary == nil || res.Summary.TopCondition != "migraine" {
		t.Fatalf("summary = %+v, want deterministic migraine fallback", res.Summary)
	}
}

func TestEnrichmentNeverRunsOnEmergency(t *testing.T) {
	enricher := &failingEnricher{}
	e := newTestEngine(t, DefaultConfig(), enricher)
	id := mustCreate(t, e, "call-enrich-emergency")

	res, err := e.ProcessTurn(context.Background(), id, "severe chest pain and I can't breathe")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if !res.IsEmergency {
		t.Fatal("IsEmergency = false, want true")
	}
	if enricher.calls != 0 {
		t.Errorf("enricher calls = %d, want 0 on emergency turns", enricher.calls)
	}
}
