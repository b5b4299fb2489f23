package models

import "time"

type AdjustDirection string

const (
	DirectionUp   AdjustDirection = "up"
	DirectionHold AdjustDirection = "hold"
	DirectionDown AdjustDirection = "down"
)

// AdjustmentEvidence is the numeric basis for a level decision,
// stored verbatim so evaluations can be audited later.
type AdjustmentEvidence struct {
	Comprehension float64 `json:"comprehension"`
	RhythmRatio   float64 `json:"rhythm_ratio"`
	Stability     float64 `json:"stability"`
	SessionScore  float64 `json:"session_score"`
}

// DifficultyAdjustment is append-only; rows are never mutated.
type DifficultyAdjustment struct {
	ID          int64              `json:"id"`
	LearnerID   int64              `json:"learner_id"`
	SessionID   int64              `json:"session_id"`
	LevelBefore float64            `json:"level_before"`
	LevelAfter  float64            `json:"level_after"`
	Direction   AdjustDirection    `json:"direction"`
	Reason      string             `json:"reason"`
	Evidence    AdjustmentEvidence `json:"evidence"`
	CreatedAt   time.Time          `json:"created_at"`
}

type AdjustmentOutcome struct {
	Direction   AdjustDirection `json:"direction"`
	LevelBefore float64         `json:"level_before"`
	LevelAfter  float64         `json:"level_after"`
	Reason      string          `json:"reason"`
}

// SkillRating holds one row per learner: a global Glicko-style rating,
// one rating per question type, and a single shared rating deviation.
type SkillRating struct {
	LearnerID  int64     `json:"learner_id"`
	Global     float64   `json:"global"`
	Literal    float64   `json:"literal"`
	Inference  float64   `json:"inference"`
	Vocabulary float64   `json:"vocabulary"`
	Summary    float64   `json:"summary"`
	RD         float64   `json:"rd"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RatingSnapshot is appended after every completed session, never mutated.
type RatingSnapshot struct {
	ID             int64     `json:"id"`
	LearnerID      int64     `json:"learner_id"`
	SessionID      *int64    `json:"session_id,omitempty"`
	Global         float64   `json:"global"`
	Literal        float64   `json:"literal"`
	Inference      float64   `json:"inference"`
	Vocabulary     float64   `json:"vocabulary"`
	Summary        float64   `json:"summary"`
	RD             float64   `json:"rd"`
	WordsPerMinute *float64  `json:"words_per_minute,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
