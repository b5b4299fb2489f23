package generator

import (
	"encoding/json"
	"fmt"
)

// PayloadShape discriminates the three payload forms a generation call
// can return. Resolved once at the boundary; downstream code switches
// on the tag instead of probing fields.
type PayloadShape string

const (
	ShapeStory     PayloadShape = "story"
	ShapeQuestions PayloadShape = "questions"
	ShapeCombined  PayloadShape = "combined"
)

type GeneratedQuestion struct {
	Type         string   `json:"type"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
	Difficulty   *float64 `json:"difficulty,omitempty"`
}

// GeneratedPayload is the decoded model output for any of the three shapes.
type GeneratedPayload struct {
	Title         string              `json:"title"`
	Body          string              `json:"body"`
	NewVocabulary []string            `json:"new_vocabulary"`
	Questions     []GeneratedQuestion `json:"questions"`
}

// DecodePayload parses a raw JSON object and classifies its shape from
// the discriminating fields (title/body vs questions).
func DecodePayload(raw json.RawMessage) (*GeneratedPayload, PayloadShape, error) {
	var p GeneratedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, "", fmt.Errorf("decode payload: %w", err)
	}

	hasStory := p.Title != "" || p.Body != ""
	hasQuestions := len(p.Questions) > 0

	switch {
	case hasStory && hasQuestions:
		return &p, ShapeCombined, nil
	case hasStory:
		return &p, ShapeStory, nil
	case hasQuestions:
		return &p, ShapeQuestions, nil
	default:
		return nil, "", fmt.Errorf("payload has neither story nor questions")
	}
}

// AuthoredDifficulty returns the question's 1-5 difficulty, defaulting
// to 3 when absent or out of range.
func (q GeneratedQuestion) AuthoredDifficulty() int {
	if q.Difficulty == nil {
		return 3
	}
	d := int(*q.Difficulty)
	if float64(d) != *q.Difficulty || d < 1 || d > 5 {
		return 3
	}
	return d
}
