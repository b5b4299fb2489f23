package rating

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lectoria/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Sessions ────────────────────────────────────────────

func (s *Store) GetSession(sessionID, learnerID int64) (*models.ReadingSession, error) {
	var sess models.ReadingSession
	err := s.db.QueryRow(
		`SELECT id, learner_id, story_id, topic_slug, level,
		        expected_reading_seconds, status, comprehension_score, stars,
		        words_per_minute, started_at, finished_at
		 FROM reading_sessions WHERE id = $1 AND learner_id = $2`,
		sessionID, learnerID,
	).Scan(&sess.ID, &sess.LearnerID, &sess.StoryID, &sess.TopicSlug, &sess.Level,
		&sess.ExpectedReadingSeconds, &sess.Status, &sess.ComprehensionScore,
		&sess.Stars, &sess.WordsPerMinute, &sess.StartedAt, &sess.FinishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *Store) CompleteSession(sessionID int64, comprehensionScore, stars int, wpm *float64) error {
	_, err := s.db.Exec(
		`UPDATE reading_sessions
		 SET status = $1, comprehension_score = $2, stars = $3,
		     words_per_minute = $4, finished_at = NOW()
		 WHERE id = $5`,
		models.SessionCompleted, comprehensionScore, stars, wpm, sessionID,
	)
	return err
}

// RecentComprehensionScores returns the last completed sessions'
// comprehension ratios (0..1), newest first.
func (s *Store) RecentComprehensionScores(learnerID int64, limit int) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT comprehension_score FROM reading_sessions
		 WHERE learner_id = $1 AND status = $2 AND comprehension_score IS NOT NULL
		 ORDER BY finished_at DESC LIMIT $3`,
		learnerID, models.SessionCompleted, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent comprehension: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var pct int
		if err := rows.Scan(&pct); err != nil {
			return nil, err
		}
		scores = append(scores, float64(pct)/100)
	}
	return scores, rows.Err()
}

// LastCompletedAt returns when the learner last finished a session, or
// nil for a first-timer.
func (s *Store) LastCompletedAt(learnerID int64) (*time.Time, error) {
	var finished sql.NullTime
	err := s.db.QueryRow(
		`SELECT MAX(finished_at) FROM reading_sessions
		 WHERE learner_id = $1 AND status = $2`,
		learnerID, models.SessionCompleted,
	).Scan(&finished)
	if err != nil {
		return nil, fmt.Errorf("last completed: %w", err)
	}
	if !finished.Valid {
		return nil, nil
	}
	return &finished.Time, nil
}

// ── Learner ownership + coarse level ────────────────────

func (s *Store) GetLearnerLevel(learnerID, userID int64) (float64, bool, error) {
	var level float64
	err := s.db.QueryRow(
		`SELECT level FROM learners WHERE id = $1 AND user_id = $2`,
		learnerID, userID,
	).Scan(&level)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get learner level: %w", err)
	}
	return level, true, nil
}

// ApplyAdjustment writes the new coarse level and its audit record in
// one transaction, so the level never moves without evidence.
func (s *Store) ApplyAdjustment(ctx context.Context, adj *models.DifficultyAdjustment) error {
	evidence, err := json.Marshal(adj.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE learners SET level = $1, updated_at = NOW() WHERE id = $2`,
		adj.LevelAfter, adj.LearnerID,
	); err != nil {
		return fmt.Errorf("update level: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO difficulty_adjustments
		 (learner_id, session_id, level_before, level_after, direction, reason, evidence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		adj.LearnerID, adj.SessionID, adj.LevelBefore, adj.LevelAfter,
		adj.Direction, adj.Reason, evidence,
	); err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}

	return tx.Commit()
}

// ── Skill ratings ───────────────────────────────────────

func (s *Store) GetOrCreateRating(learnerID int64) (*models.SkillRating, error) {
	_, err := s.db.Exec(
		`INSERT INTO skill_ratings (learner_id, global, literal, inference, vocabulary, summary, rd)
		 VALUES ($1, $2, $2, $2, $2, $2, $3)
		 ON CONFLICT (learner_id) DO NOTHING`,
		learnerID, InitialRating, InitialRD,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert rating: %w", err)
	}

	var r models.SkillRating
	err = s.db.QueryRow(
		`SELECT learner_id, global, literal, inference, vocabulary, summary, rd, updated_at
		 FROM skill_ratings WHERE learner_id = $1`,
		learnerID,
	).Scan(&r.LearnerID, &r.Global, &r.Literal, &r.Inference, &r.Vocabulary,
		&r.Summary, &r.RD, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get rating: %w", err)
	}
	return &r, nil
}

func (s *Store) SaveRating(r *models.SkillRating) error {
	_, err := s.db.Exec(
		`UPDATE skill_ratings
		 SET global = $1, literal = $2, inference = $3, vocabulary = $4,
		     summary = $5, rd = $6, updated_at = NOW()
		 WHERE learner_id = $7`,
		r.Global, r.Literal, r.Inference, r.Vocabulary, r.Summary, r.RD, r.LearnerID,
	)
	return err
}

func (s *Store) AppendSnapshot(snap *models.RatingSnapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO rating_snapshots
		 (learner_id, session_id, global, literal, inference, vocabulary, summary, rd, words_per_minute)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snap.LearnerID, snap.SessionID, snap.Global, snap.Literal, snap.Inference,
		snap.Vocabulary, snap.Summary, snap.RD, snap.WordsPerMinute,
	)
	return err
}

func (s *Store) ListSnapshots(learnerID int64, limit int) ([]models.RatingSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT id, learner_id, session_id, global, literal, inference,
		        vocabulary, summary, rd, words_per_minute, created_at
		 FROM rating_snapshots WHERE learner_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		learnerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.RatingSnapshot
	for rows.Next() {
		var snap models.RatingSnapshot
		if err := rows.Scan(&snap.ID, &snap.LearnerID, &snap.SessionID, &snap.Global,
			&snap.Literal, &snap.Inference, &snap.Vocabulary, &snap.Summary,
			&snap.RD, &snap.WordsPerMinute, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// ── Question difficulties ───────────────────────────────

func (s *Store) QuestionDifficulties(questionIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(questionIDs))
	for _, id := range questionIDs {
		var d int
		err := s.db.QueryRow(
			`SELECT difficulty FROM story_questions WHERE id = $1`, id,
		).Scan(&d)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("question difficulty: %w", err)
		}
		out[id] = d
	}
	return out, nil
}
