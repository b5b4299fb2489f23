package models

import "time"

// Tone is an ordered narrative-style scale, from purely educational
// to highly imaginative. It is matched exactly on cache lookups.
type Tone int

const (
	ToneEducational Tone = 1
	ToneBalanced    Tone = 2
	TonePlayful     Tone = 3
	ToneImaginative Tone = 4
)

func (t Tone) Valid() bool {
	return t >= ToneEducational && t <= ToneImaginative
}

func (t Tone) String() string {
	switch t {
	case ToneEducational:
		return "educational"
	case ToneBalanced:
		return "balanced"
	case TonePlayful:
		return "playful"
	case ToneImaginative:
		return "imaginative"
	}
	return "unknown"
}

type QuestionType string

const (
	QuestionLiteral    QuestionType = "literal"
	QuestionInference  QuestionType = "inference"
	QuestionVocabulary QuestionType = "vocabulary"
	QuestionSummary    QuestionType = "summary"
)

var ValidQuestionTypes = map[QuestionType]bool{
	QuestionLiteral:    true,
	QuestionInference:  true,
	QuestionVocabulary: true,
	QuestionSummary:    true,
}

// RequiredQuestionTypes is the fixed set every combined generation must cover.
var RequiredQuestionTypes = []QuestionType{
	QuestionLiteral, QuestionInference, QuestionVocabulary, QuestionSummary,
}

// ── Persisted Entities ──────────────────────────────────

// StoryFlags records how a story was produced. Tone participates in
// cache matching; the rest is audit detail.
type StoryFlags struct {
	Tone    Tone   `json:"tone"`
	FunMode bool   `json:"fun_mode,omitempty"`
	Rewrite string `json:"rewrite,omitempty"` // "simplify" or "elevate" for rewrites
}

type StoryMetadata struct {
	WordCount              int        `json:"word_count"`
	AvgSentenceLength      float64    `json:"avg_sentence_length"`
	NewVocabulary          []string   `json:"new_vocabulary,omitempty"`
	ExpectedReadingSeconds int        `json:"expected_reading_seconds"`
	Flags                  StoryFlags `json:"flags"`
}

type Story struct {
	ID              int64         `json:"id"`
	LearnerID       int64         `json:"learner_id"`
	TopicSlug       string        `json:"topic_slug"`
	Title           string        `json:"title"`
	Body            string        `json:"body"`
	Level           float64       `json:"level"`
	Metadata        StoryMetadata `json:"metadata"`
	Model           string        `json:"model,omitempty"`
	Approved        bool          `json:"approved"`
	RejectionReason *string       `json:"rejection_reason,omitempty"`
	Reusable        bool          `json:"reusable"`
	QuestionCount   int           `json:"question_count"`
	CreatedAt       time.Time     `json:"created_at"`
}

type StoryQuestion struct {
	ID           int64        `json:"id"`
	StoryID      int64        `json:"story_id"`
	Type         QuestionType `json:"type"`
	Prompt       string       `json:"prompt"`
	Options      []string     `json:"options"`
	CorrectIndex int          `json:"correct_index"`
	Explanation  string       `json:"explanation"`
	Difficulty   int          `json:"difficulty"`
	Position     int          `json:"position"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ── Generation Request/Response ─────────────────────────

// GenerateStoryRequest drives one orchestrator run. Not persisted.
type GenerateStoryRequest struct {
	LearnerID       int64    `json:"learner_id"`
	TopicSlug       string   `json:"topic_slug,omitempty"`
	CustomTopic     string   `json:"custom_topic,omitempty"`
	ForceRegenerate bool     `json:"force_regenerate,omitempty"`
	TraceID         string   `json:"trace_id,omitempty"`
	LevelOverride   *float64 `json:"level_override,omitempty"`
	Tone            *Tone    `json:"tone,omitempty"`
	FunMode         bool     `json:"fun_mode,omitempty"`
}

type GenerateStoryResponse struct {
	Story     *Story          `json:"story"`
	Questions []StoryQuestion `json:"questions,omitempty"`
	SessionID int64           `json:"session_id"`
	TraceID   string          `json:"trace_id"`
	FromCache bool            `json:"from_cache"`
}

type RewriteStoryRequest struct {
	Direction string `json:"direction"` // "simplify" or "elevate"
}

// ── Pedagogical Profile (derived, read-only per run) ────

type PedagogicalProfile struct {
	AgeYears           int
	TargetLevel        float64 // sub-level on the 1-4 template scale
	TopicName          string
	TopicDescription   string
	CoreConcept        string
	Tone               Tone
	FunMode            bool
	Interests          []string // at most 3
	FavoriteCharacters []string
	Personalization    string // free-form facts, length-capped
	RecentTitles       []string
}
