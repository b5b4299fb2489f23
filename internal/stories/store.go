package stories

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

// ── Learners ────────────────────────────────────────────

func (s *Store) GetLearner(learnerID, userID int64) (*models.Learner, error) {
	var l models.Learner
	var interests, characters []byte
	err := s.db.QueryRow(
		`SELECT id, user_id, name, age_years, level, tone, interests,
		        favorite_characters, personalization, current_skill_slug,
		        created_at, updated_at
		 FROM learners WHERE id = $1 AND user_id = $2`,
		learnerID, userID,
	).Scan(&l.ID, &l.UserID, &l.Name, &l.AgeYears, &l.Level, &l.Tone,
		&interests, &characters, &l.Personalization, &l.CurrentSkillSlug,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get learner: %w", err)
	}

	if err := json.Unmarshal(interests, &l.Interests); err != nil {
		return nil, fmt.Errorf("unmarshal interests: %w", err)
	}
	if err := json.Unmarshal(characters, &l.FavoriteCharacters); err != nil {
		return nil, fmt.Errorf("unmarshal favorite characters: %w", err)
	}
	return &l, nil
}

// ── Stories ─────────────────────────────────────────────

const storyCols = `id, learner_id, topic_slug, title, body, level, metadata,
	        model, approved, rejection_reason, reusable, question_count, created_at`

func (s *Store) CreateStory(story *models.Story) (*models.Story, error) {
	metadata, err := json.Marshal(story.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var out models.Story
	var rawMeta []byte
	err = s.db.QueryRow(
		fmt.Sprintf(`INSERT INTO stories
		 (learner_id, topic_slug, title, body, level, metadata, model,
		  approved, rejection_reason, reusable)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING %s`, storyCols),
		story.LearnerID, story.TopicSlug, story.Title, story.Body, story.Level,
		metadata, story.Model, story.Approved, story.RejectionReason, story.Reusable,
	).Scan(&out.ID, &out.LearnerID, &out.TopicSlug, &out.Title, &out.Body,
		&out.Level, &rawMeta, &out.Model, &out.Approved, &out.RejectionReason,
		&out.Reusable, &out.QuestionCount, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create story: %w", err)
	}

	if err := json.Unmarshal(rawMeta, &out.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &out, nil
}

func (s *Store) GetStory(storyID, learnerID int64) (*models.Story, error) {
	var story models.Story
	var rawMeta []byte
	err := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM stories WHERE id = $1 AND learner_id = $2`, storyCols),
		storyID, learnerID,
	).Scan(&story.ID, &story.LearnerID, &story.TopicSlug, &story.Title, &story.Body,
		&story.Level, &rawMeta, &story.Model, &story.Approved, &story.RejectionReason,
		&story.Reusable, &story.QuestionCount, &story.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get story: %w", err)
	}

	if err := json.Unmarshal(rawMeta, &story.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &story, nil
}

func (s *Store) ListStories(learnerID int64, limit, offset int) ([]models.Story, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM stories
		 WHERE learner_id = $1 AND approved = true
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, storyCols),
		learnerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	var stories []models.Story
	for rows.Next() {
		var story models.Story
		var rawMeta []byte
		if err := rows.Scan(&story.ID, &story.LearnerID, &story.TopicSlug, &story.Title,
			&story.Body, &story.Level, &rawMeta, &story.Model, &story.Approved,
			&story.RejectionReason, &story.Reusable, &story.QuestionCount,
			&story.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		if err := json.Unmarshal(rawMeta, &story.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

// RecentTitles returns up to limit most recent titles for a learner,
// optionally scoped to a topic. Used for duplicate avoidance.
func (s *Store) RecentTitles(learnerID int64, topicSlug string, limit int) ([]string, error) {
	var rows *sql.Rows
	var err error
	if topicSlug != "" {
		rows, err = s.db.Query(
			`SELECT title FROM stories
			 WHERE learner_id = $1 AND topic_slug = $2
			 ORDER BY created_at DESC LIMIT $3`,
			learnerID, topicSlug, limit,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT title FROM stories WHERE learner_id = $1
			 ORDER BY created_at DESC LIMIT $2`,
			learnerID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("recent titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

func (s *Store) RecentTopicSlugs(learnerID int64, limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT ON (topic_slug) topic_slug
		 FROM stories WHERE learner_id = $1
		 ORDER BY topic_slug, created_at DESC
		 LIMIT $2`,
		learnerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent topic slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// CountGenerationsToday counts stories created since local midnight UTC,
// the denominator for the daily quota.
func (s *Store) CountGenerationsToday(learnerID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM stories
		 WHERE learner_id = $1 AND created_at >= CURRENT_DATE`,
		learnerID,
	).Scan(&count)
	return count, err
}

// CacheCandidates returns reusable approved stories for the learner and
// topic inside the level window, newest first. Tone filtering happens in
// the resolver since tone lives inside the metadata blob.
func (s *Store) CacheCandidates(learnerID int64, topicSlug string, levelMin, levelMax float64, since time.Time) ([]models.Story, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM stories
		 WHERE learner_id = $1 AND topic_slug = $2
		   AND level >= $3 AND level <= $4
		   AND reusable = true AND approved = true
		   AND created_at >= $5
		 ORDER BY created_at DESC`, storyCols),
		learnerID, topicSlug, levelMin, levelMax, since,
	)
	if err != nil {
		return nil, fmt.Errorf("cache candidates: %w", err)
	}
	defer rows.Close()

	var candidates []models.Story
	for rows.Next() {
		var story models.Story
		var rawMeta []byte
		if err := rows.Scan(&story.ID, &story.LearnerID, &story.TopicSlug, &story.Title,
			&story.Body, &story.Level, &rawMeta, &story.Model, &story.Approved,
			&story.RejectionReason, &story.Reusable, &story.QuestionCount,
			&story.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if err := json.Unmarshal(rawMeta, &story.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		candidates = append(candidates, story)
	}
	return candidates, rows.Err()
}

// ── Questions ───────────────────────────────────────────

func (s *Store) GetQuestions(storyID int64) ([]models.StoryQuestion, error) {
	rows, err := s.db.Query(
		`SELECT id, story_id, type, prompt, options, correct_index,
		        explanation, difficulty, position, created_at
		 FROM story_questions WHERE story_id = $1 ORDER BY position`,
		storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	defer rows.Close()
	return scanQuestions(rows)
}

// InsertQuestionBatch inserts a story's question set inside a
// transaction. Existing questions are re-read first so a concurrent
// writer's batch wins and ours is discarded; callers always get the
// durable set back.
func (s *Store) InsertQuestionBatch(ctx context.Context, storyID int64, questions []models.StoryQuestion) ([]models.StoryQuestion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := questionsForUpdate(tx, storyID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	inserted := make([]models.StoryQuestion, 0, len(questions))
	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("marshal options: %w", err)
		}

		var out models.StoryQuestion
		var rawOptions []byte
		err = tx.QueryRow(
			`INSERT INTO story_questions
			 (story_id, type, prompt, options, correct_index, explanation, difficulty, position)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, story_id, type, prompt, options, correct_index,
			           explanation, difficulty, position, created_at`,
			storyID, q.Type, q.Prompt, options, q.CorrectIndex,
			q.Explanation, q.Difficulty, i,
		).Scan(&out.ID, &out.StoryID, &out.Type, &out.Prompt, &rawOptions,
			&out.CorrectIndex, &out.Explanation, &out.Difficulty, &out.Position,
			&out.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &out.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		inserted = append(inserted, out)
	}

	if _, err := tx.Exec(
		`UPDATE stories SET question_count = $1 WHERE id = $2`,
		len(inserted), storyID,
	); err != nil {
		return nil, fmt.Errorf("update question count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit questions: %w", err)
	}
	return inserted, nil
}

func questionsForUpdate(tx *sql.Tx, storyID int64) ([]models.StoryQuestion, error) {
	rows, err := tx.Query(
		`SELECT id, story_id, type, prompt, options, correct_index,
		        explanation, difficulty, position, created_at
		 FROM story_questions WHERE story_id = $1 ORDER BY position
		 FOR UPDATE`,
		storyID,
	)
	if err != nil {
		return nil, fmt.Errorf("read existing questions: %w", err)
	}
	defer rows.Close()
	return scanQuestions(rows)
}

func scanQuestions(rows *sql.Rows) ([]models.StoryQuestion, error) {
	var questions []models.StoryQuestion
	for rows.Next() {
		var q models.StoryQuestion
		var rawOptions []byte
		if err := rows.Scan(&q.ID, &q.StoryID, &q.Type, &q.Prompt, &rawOptions,
			&q.CorrectIndex, &q.Explanation, &q.Difficulty, &q.Position,
			&q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ── Sessions ────────────────────────────────────────────

func (s *Store) CreateSession(session *models.ReadingSession) (*models.ReadingSession, error) {
	var out models.ReadingSession
	err := s.db.QueryRow(
		`INSERT INTO reading_sessions
		 (learner_id, story_id, topic_slug, level, expected_reading_seconds, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, learner_id, story_id, topic_slug, level,
		           expected_reading_seconds, status, comprehension_score, stars,
		           words_per_minute, started_at, finished_at`,
		session.LearnerID, session.StoryID, session.TopicSlug, session.Level,
		session.ExpectedReadingSeconds, models.SessionActive,
	).Scan(&out.ID, &out.LearnerID, &out.StoryID, &out.TopicSlug, &out.Level,
		&out.ExpectedReadingSeconds, &out.Status, &out.ComprehensionScore,
		&out.Stars, &out.WordsPerMinute, &out.StartedAt, &out.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &out, nil
}
