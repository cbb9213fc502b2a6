// Package extract maps free-form caller utterances onto canonical
// symptom and risk-factor ids using a phrase table. Matching is
// deterministic: the same utterance always yields the same id set.
package extract

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

//go:embed data/synonyms.json
var defaultPhrases []byte

// ErrEmptyPhraseTable is returned when an extractor is built from a
// source with no phrases.
var ErrEmptyPhraseTable = errors.New("empty phrase table")

// Extractor matches known phrases inside an utterance. It is read-only
// after construction and safe for concurrent use.
type Extractor struct {
	byPhrase map[string]string
}

// New builds an extractor from a phrase -> canonical id table.
func New(table map[string]string) (*Extractor, error) {
	if len(table) == 0 {
		return nil, ErrEmptyPhraseTable
	}
	e := &Extractor{
		byPhrase: make(map[string]string, len(table)),
	}
	for phrase, id := range table {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p == "" || id == "" {
			return nil, fmt.Errorf("invalid phrase table entry %q -> %q", phrase, id)
		}
		e.byPhrase[p] = id
	}
	return e, nil
}

// NewDefault builds an extractor from the embedded phrase table.
func NewDefault() (*Extractor, error) {
	return load(defaultPhrases)
}

// NewFromFile builds an extractor from a JSON phrase table on disk.
func NewFromFile(path string) (*Extractor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase table %s: %w", path, err)
	}
	return load(data)
}

func load(data []byte) (*Extractor, error) {
	var table map[string]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse phrase table: %w", err)
	}
	return New(table)
}

// Extract returns the canonical ids of all phrases found in the
// utterance, deduplicated and in lexicographic order. Every phrase is
// checked independently, so overlapping phrases each resolve to their
// own id ("severe headache" yields both severe_headache and headache).
// An utterance with no known phrase yields an empty slice, never an
// error.
func (e *Extractor) Extract(utterance string) []string {
	text := strings.ToLower(utterance)
	found := make(map[string]struct{})

	for phrase, id := range e.byPhrase {
		if strings.Contains(text, phrase) {
			found[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
