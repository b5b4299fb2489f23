package rating

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lectoria/backend/internal/models"
)

const recentScoreWindow = 8

var (
	ErrLearnerNotFound  = errors.New("learner not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrBadAnswerCount   = errors.New("expected 1 to 4 answers")
)

// Persistence is the slice of the store the service needs.
type Persistence interface {
	GetLearnerLevel(learnerID, userID int64) (float64, bool, error)
	GetSession(sessionID, learnerID int64) (*models.ReadingSession, error)
	CompleteSession(sessionID int64, comprehensionScore, stars int, wpm *float64) error
	RecentComprehensionScores(learnerID int64, limit int) ([]float64, error)
	LastCompletedAt(learnerID int64) (*time.Time, error)
	ApplyAdjustment(ctx context.Context, adj *models.DifficultyAdjustment) error
	GetOrCreateRating(learnerID int64) (*models.SkillRating, error)
	SaveRating(r *models.SkillRating) error
	AppendSnapshot(snap *models.RatingSnapshot) error
	ListSnapshots(learnerID int64, limit int) ([]models.RatingSnapshot, error)
	QuestionDifficulties(questionIDs []int64) (map[int64]int, error)
}

// Service finalizes reading sessions: it scores the answers, awards
// stars, moves the learner's coarse level, and refreshes the Glicko
// skill ratings. Scoring always succeeds when the session is valid;
// the adjustment and rating steps degrade gracefully on store errors.
type Service struct {
	store Persistence
}

func NewService(store Persistence) *Service {
	return &Service{store: store}
}

// FinishSession closes an active session and returns the learner-facing
// result. Answers must cover 1-4 questions; replays of an already
// completed session are rejected.
func (s *Service) FinishSession(ctx context.Context, userID, learnerID, sessionID int64, req *models.FinishSessionRequest) (*models.FinishSessionResponse, error) {
	level, ok, err := s.store.GetLearnerLevel(learnerID, userID)
	if err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	if !ok {
		return nil, ErrLearnerNotFound
	}

	sess, err := s.store.GetSession(sessionID, learnerID)
	if err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Status == models.SessionCompleted {
		return nil, ErrSessionCompleted
	}
	if len(req.Answers) < 1 || len(req.Answers) > 4 {
		return nil, ErrBadAnswerCount
	}

	correct := 0
	for _, a := range req.Answers {
		if a.IsCorrect {
			correct++
		}
	}
	total := len(req.Answers)
	ratio := float64(correct) / float64(total)
	scorePct := int(ratio*100 + 0.5)
	stars := Stars(ratio)

	// Stability and RD inflation look only at sessions completed before
	// this one, so both reads happen before the session is closed.
	history, err := s.store.RecentComprehensionScores(learnerID, recentScoreWindow)
	if err != nil {
		log.Printf("WARN: [rating] comprehension history unavailable for learner %d: %v", learnerID, err)
		history = nil
	}
	lastActive, err := s.store.LastCompletedAt(learnerID)
	if err != nil {
		log.Printf("WARN: [rating] last activity unavailable for learner %d: %v", learnerID, err)
		lastActive = nil
	}

	if err := s.store.CompleteSession(sessionID, scorePct, stars, req.WordsPerMinute); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	resp := &models.FinishSessionResponse{
		CorrectCount:       correct,
		TotalCount:         total,
		ComprehensionScore: scorePct,
		Stars:              stars,
	}

	// The session is already closed; a failed level move must not undo
	// that, so it degrades to a hold.
	if outcome := s.adjustLevel(ctx, learnerID, sessionID, level, ratio, req.ElapsedMs, sess.ExpectedReadingSeconds, history); outcome != nil {
		resp.Adjustment = outcome
	}

	before, after := s.updateRatings(learnerID, sessionID, sess.Level, lastActive, req)
	resp.GlobalRatingBefore = before
	resp.GlobalRatingAfter = after

	return resp, nil
}

func (s *Service) adjustLevel(ctx context.Context, learnerID, sessionID int64, levelBefore, comprehension float64, elapsedMs int64, expectedSeconds int, history []float64) *models.AdjustmentOutcome {
	rhythm := RhythmNorm(elapsedMs, int64(expectedSeconds)*1000)
	stability := Stability(history)

	direction := DirectionFor(comprehension)
	levelAfter := NextLevel(levelBefore, direction)
	reason := ReasonFor(direction, comprehension)

	adj := &models.DifficultyAdjustment{
		LearnerID:   learnerID,
		SessionID:   sessionID,
		LevelBefore: levelBefore,
		LevelAfter:  levelAfter,
		Direction:   direction,
		Reason:      reason,
		Evidence: models.AdjustmentEvidence{
			Comprehension: comprehension,
			RhythmRatio:   rhythm,
			Stability:     stability,
			SessionScore:  SessionScore(comprehension, rhythm, stability),
		},
	}

	if err := s.store.ApplyAdjustment(ctx, adj); err != nil {
		log.Printf("WARN: [rating] adjustment not applied for learner %d session %d: %v", learnerID, sessionID, err)
		return &models.AdjustmentOutcome{
			Direction:   models.DirectionHold,
			LevelBefore: levelBefore,
			LevelAfter:  levelBefore,
			Reason:      "Level held, adjustment could not be recorded",
		}
	}

	return &models.AdjustmentOutcome{
		Direction:   direction,
		LevelBefore: levelBefore,
		LevelAfter:  levelAfter,
		Reason:      reason,
	}
}

// updateRatings runs the Glicko pass over each answered question.
// Rating trouble never fails the session, it only costs the response
// its before/after numbers.
func (s *Service) updateRatings(learnerID, sessionID int64, textLevel float64, lastActive *time.Time, req *models.FinishSessionRequest) (*float64, *float64) {
	rating, err := s.store.GetOrCreateRating(learnerID)
	if err != nil {
		log.Printf("WARN: [rating] skill rating unavailable for learner %d: %v", learnerID, err)
		return nil, nil
	}
	before := rating.Global

	if lastActive != nil {
		rating.RD = InflateRD(rating.RD, *lastActive, time.Now())
	}

	ids := make([]int64, 0, len(req.Answers))
	for _, a := range req.Answers {
		ids = append(ids, a.QuestionID)
	}
	difficulties, err := s.store.QuestionDifficulties(ids)
	if err != nil {
		log.Printf("WARN: [rating] question difficulties unavailable: %v", err)
		difficulties = map[int64]int{}
	}

	for _, a := range req.Answers {
		difficulty, ok := difficulties[a.QuestionID]
		if !ok {
			difficulty = 3
		}
		anchor := AnchorRating(textLevel, difficulty)
		score := 0.0
		if a.IsCorrect {
			score = 1.0
		}

		rating.Global, rating.RD = UpdateRating(rating.Global, rating.RD, anchor, score)

		switch a.Type {
		case models.QuestionLiteral:
			rating.Literal, _ = UpdateRating(rating.Literal, rating.RD, anchor, score)
		case models.QuestionInference:
			rating.Inference, _ = UpdateRating(rating.Inference, rating.RD, anchor, score)
		case models.QuestionVocabulary:
			rating.Vocabulary, _ = UpdateRating(rating.Vocabulary, rating.RD, anchor, score)
		case models.QuestionSummary:
			rating.Summary, _ = UpdateRating(rating.Summary, rating.RD, anchor, score)
		}
	}

	if err := s.store.SaveRating(rating); err != nil {
		log.Printf("WARN: [rating] rating not saved for learner %d: %v", learnerID, err)
		return nil, nil
	}

	snap := &models.RatingSnapshot{
		LearnerID:      learnerID,
		SessionID:      &sessionID,
		Global:         rating.Global,
		Literal:        rating.Literal,
		Inference:      rating.Inference,
		Vocabulary:     rating.Vocabulary,
		Summary:        rating.Summary,
		RD:             rating.RD,
		WordsPerMinute: req.WordsPerMinute,
	}
	if err := s.store.AppendSnapshot(snap); err != nil {
		log.Printf("WARN: [rating] snapshot not recorded for learner %d: %v", learnerID, err)
	}

	after := rating.Global
	return &before, &after
}

// Ratings returns the learner's current skill ratings after an
// ownership check.
func (s *Service) Ratings(userID, learnerID int64) (*models.SkillRating, error) {
	_, ok, err := s.store.GetLearnerLevel(learnerID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLearnerNotFound
	}
	return s.store.GetOrCreateRating(learnerID)
}

// History returns the learner's recent rating snapshots, newest first.
func (s *Service) History(userID, learnerID int64, limit int) ([]models.RatingSnapshot, error) {
	_, ok, err := s.store.GetLearnerLevel(learnerID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLearnerNotFound
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	return s.store.ListSnapshots(learnerID, limit)
}
