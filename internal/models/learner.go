package models

import "time"

// Learner is a child reading profile under a parent account.
type Learner struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	Name               string    `json:"name"`
	AgeYears           int       `json:"age_years"`
	Level              float64   `json:"level"` // coarse reading level, 1-10
	Tone               Tone      `json:"tone"`
	Interests          []string  `json:"interests,omitempty"`
	FavoriteCharacters []string  `json:"favorite_characters,omitempty"`
	Personalization    string    `json:"personalization,omitempty"`
	CurrentSkillSlug   string    `json:"current_skill_slug,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type CreateLearnerRequest struct {
	Name               string   `json:"name"`
	AgeYears           int      `json:"age_years"`
	Tone               *Tone    `json:"tone,omitempty"`
	Interests          []string `json:"interests,omitempty"`
	FavoriteCharacters []string `json:"favorite_characters,omitempty"`
	Personalization    string   `json:"personalization,omitempty"`
}
