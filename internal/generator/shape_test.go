package generator

import (
	"encoding/json"
	"testing"
)

func TestDecodePayloadShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want PayloadShape
	}{
		{"combined", `{"title":"T","body":"B","questions":[{"type":"literal"}]}`, ShapeCombined},
		{"story only", `{"title":"T","body":"B"}`, ShapeStory},
		{"body only still counts as story", `{"body":"B"}`, ShapeStory},
		{"questions only", `{"questions":[{"type":"literal"}]}`, ShapeQuestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, shape, err := DecodePayload(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("DecodePayload error: %v", err)
			}
			if shape != tt.want {
				t.Errorf("shape = %s, want %s", shape, tt.want)
			}
		})
	}
}

func TestDecodePayloadRejectsEmptyObject(t *testing.T) {
	if _, _, err := DecodePayload(json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for payload with neither story nor questions")
	}
}

func TestAuthoredDifficulty(t *testing.T) {
	ptr := func(f float64) *float64 { return &f }
	tests := []struct {
		name       string
		difficulty *float64
		want       int
	}{
		{"absent defaults to 3", nil, 3},
		{"valid value kept", ptr(5), 5},
		{"fractional defaults to 3", ptr(2.5), 3},
		{"below range defaults to 3", ptr(0), 3},
		{"above range defaults to 3", ptr(9), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := GeneratedQuestion{Difficulty: tt.difficulty}
			if got := q.AuthoredDifficulty(); got != tt.want {
				t.Errorf("AuthoredDifficulty = %d, want %d", got, tt.want)
			}
		})
	}
}
