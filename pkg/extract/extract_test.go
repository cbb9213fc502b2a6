package extract

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	e, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault() error = %v", err)
	}

	tests := []struct {
		name      string
		utterance string
		want      []string
	}{
		{
			name:      "single symptom",
			utterance: "I have a headache",
			want:      []string{"headache"},
		},
		{
			name:      "multiple symptoms",
			utterance: "I have chest pain and I'm sweating a lot",
			want:      []string{"chest_pain", "sweating"},
		},
		{
			name:      "case insensitive",
			utterance: "CHEST PAIN and Nausea",
			want:      []string{"chest_pain", "nausea"},
		},
		{
			name:      "synonym mapping",
			utterance: "I keep throwing up and I feel dizzy",
			want:      []string{"dizziness", "vomiting"},
		},
		{
			name:      "overlapping phrases both resolve",
			utterance: "this is the worst severe headache of my life",
			want:      []string{"headache", "severe_headache"},
		},
		{
			name:      "substring match keeps its own id",
			utterance: "severe headache and some nausea",
			want:      []string{"headache", "nausea", "severe_headache"},
		},
		{
			name:      "duplicate mentions collapse",
			utterance: "headache, such a bad headache, my head hurts",
			want:      []string{"headache"},
		},
		{
			name:      "risk factor phrase",
			utterance: "I'm a smoker and I have high blood pressure",
			want:      []string{"high_blood_pressure", "smoking"},
		},
		{
			name:      "no known phrases",
			utterance: "my car broke down on the highway",
			want:      []string{},
		},
		{
			name:      "empty utterance",
			utterance: "",
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.utterance)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract(%q) = %v, want %v", tt.utterance, got, tt.want)
			}
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	e, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault() error = %v", err)
	}
	utterance := "chest pain, trouble breathing, nausea, and I'm sweating"
	first := e.Extract(utterance)
	for i := 0; i < 20; i++ {
		if got := e.Extract(utterance); !reflect.DeepEqual(got, first) {
			t.Fatalf("Extract() run %d = %v, want %v", i, got, first)
		}
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrEmptyPhraseTable) {
		t.Errorf("New(nil) error = %v, want %v", err, ErrEmptyPhraseTable)
	}
	if _, err := New(map[string]string{"": "fever"}); err == nil {
		t.Error("New() with empty phrase: error = nil, want error")
	}
	if _, err := New(map[string]string{"fever": ""}); err == nil {
		t.Error("New() with empty id: error = nil, want error")
	}
}
