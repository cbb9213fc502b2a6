// Package rules holds the hard-coded emergency screen that runs before
// any graph scoring. Rules are ordered; the first rule whose conditions
// hold wins, regardless of anything the reasoner would say.
package rules

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/callpoint-health/triage/backend/pkg/common"
)

//go:embed data/emergency_rules.json
var defaultRules []byte

// ErrInvalidRuleSet is returned when a rule source fails validation.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// RuleSet is an ordered list of emergency rules. Order is authoritative:
// evaluation walks the list front to back and stops at the first match.
type RuleSet struct {
	rules []common.EmergencyRule
}

// New validates and wraps an ordered rule list.
func New(list []common.EmergencyRule) (*RuleSet, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidRuleSet)
	}
	names := make(map[string]struct{}, len(list))
	for i, r := range list {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: rule %d has no name", ErrInvalidRuleSet, i)
		}
		if _, dup := names[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate rule name %q", ErrInvalidRuleSet, r.Name)
		}
		names[r.Name] = struct{}{}
		if len(r.RequiredSymptoms) == 0 {
			return nil, fmt.Errorf("%w: rule %q has no required symptoms", ErrInvalidRuleSet, r.Name)
		}
		if r.Directive == "" {
			return nil, fmt.Errorf("%w: rule %q has no directive", ErrInvalidRuleSet, r.Name)
		}
	}
	return &RuleSet{rules: list}, nil
}

// NewDefault loads the embedded rule list.
func NewDefault() (*RuleSet, error) {
	return load(defaultRules)
}

// NewFromFile loads a rule list from a JSON file on disk.
func NewFromFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set %s: %w", path, err)
	}
	return load(data)
}

func load(data []byte) (*RuleSet, error) {
	var list []common.EmergencyRule
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	return New(list)
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	return len(s.rules)
}

// Evaluate checks the accumulated symptom set against the rules in
// order and returns the first rule that fires, or nil if none does. A
// rule fires when every required symptom is present and, if the rule
// lists any-of symptoms, at least one of those is present too.
func (s *RuleSet) Evaluate(symptoms map[string]struct{}) *common.EmergencyRule {
	for i := range s.rules {
		r := &s.rules[i]
		if matches(r, symptoms) {
			return r
		}
	}
	return nil
}

func matches(r *common.EmergencyRule, symptoms map[string]struct{}) bool {
	for _, required := range r.RequiredSymptoms {
		if _, ok := symptoms[required]; !ok {
			return false
		}
	}
	if len(r.AnyOfSymptoms) == 0 {
		return true
	}
	for _, candidate := range r.AnyOfSymptoms {
		if _, ok := symptoms[candidate]; ok {
			return true
		}
	}
	return false
}
