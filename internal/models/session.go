package models

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

type ReadingSession struct {
	ID                     int64         `json:"id"`
	LearnerID              int64         `json:"learner_id"`
	StoryID                int64         `json:"story_id"`
	TopicSlug              string        `json:"topic_slug"`
	Level                  float64       `json:"level"`
	ExpectedReadingSeconds int           `json:"expected_reading_seconds"`
	Status                 SessionStatus `json:"status"`
	ComprehensionScore     *int          `json:"comprehension_score,omitempty"` // 0-100
	Stars                  *int          `json:"stars,omitempty"`
	WordsPerMinute         *float64      `json:"words_per_minute,omitempty"`
	StartedAt              time.Time     `json:"started_at"`
	FinishedAt             *time.Time    `json:"finished_at,omitempty"`
}

// ── Session Finalization ────────────────────────────────

type AnsweredQuestion struct {
	QuestionID     int64        `json:"question_id"`
	Type           QuestionType `json:"type"`
	SelectedOption int          `json:"selected_option"`
	IsCorrect      bool         `json:"is_correct"`
	ResponseTimeMs int64        `json:"response_time_ms"`
}

type FinishSessionRequest struct {
	ElapsedMs      int64              `json:"elapsed_ms"`
	WordsPerMinute *float64           `json:"words_per_minute,omitempty"`
	Answers        []AnsweredQuestion `json:"answers"`
}

type FinishSessionResponse struct {
	CorrectCount       int                `json:"correct_count"`
	TotalCount         int                `json:"total_count"`
	ComprehensionScore int                `json:"comprehension_score"` // 0-100
	Stars              int                `json:"stars"`
	Adjustment         *AdjustmentOutcome `json:"adjustment,omitempty"`
	GlobalRatingBefore *float64           `json:"global_rating_before,omitempty"`
	GlobalRatingAfter  *float64           `json:"global_rating_after,omitempty"`
}
