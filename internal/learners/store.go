package learners

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lectoria/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const learnerCols = `id, user_id, name, age_years, level, tone, interests,
	        favorite_characters, personalization, current_skill_slug,
	        created_at, updated_at`

func (s *Store) Create(userID int64, req *models.CreateLearnerRequest, tone models.Tone) (*models.Learner, error) {
	interests, err := json.Marshal(emptyIfNil(req.Interests))
	if err != nil {
		return nil, fmt.Errorf("marshal interests: %w", err)
	}
	characters, err := json.Marshal(emptyIfNil(req.FavoriteCharacters))
	if err != nil {
		return nil, fmt.Errorf("marshal favorite characters: %w", err)
	}

	row := s.db.QueryRow(
		fmt.Sprintf(`INSERT INTO learners
		 (user_id, name, age_years, tone, interests, favorite_characters, personalization)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING %s`, learnerCols),
		userID, req.Name, req.AgeYears, tone, interests, characters, req.Personalization,
	)
	return scanLearner(row)
}

func (s *Store) Get(learnerID, userID int64) (*models.Learner, error) {
	row := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM learners WHERE id = $1 AND user_id = $2`, learnerCols),
		learnerID, userID,
	)
	l, err := scanLearner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *Store) List(userID int64) ([]models.Learner, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM learners WHERE user_id = $1 ORDER BY created_at`, learnerCols),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	defer rows.Close()

	var out []models.Learner
	for rows.Next() {
		l, err := scanLearner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *Store) Update(learnerID, userID int64, req *models.CreateLearnerRequest, tone models.Tone) (*models.Learner, error) {
	interests, err := json.Marshal(emptyIfNil(req.Interests))
	if err != nil {
		return nil, fmt.Errorf("marshal interests: %w", err)
	}
	characters, err := json.Marshal(emptyIfNil(req.FavoriteCharacters))
	if err != nil {
		return nil, fmt.Errorf("marshal favorite characters: %w", err)
	}

	row := s.db.QueryRow(
		fmt.Sprintf(`UPDATE learners
		 SET name = $1, age_years = $2, tone = $3, interests = $4,
		     favorite_characters = $5, personalization = $6, updated_at = NOW()
		 WHERE id = $7 AND user_id = $8
		 RETURNING %s`, learnerCols),
		req.Name, req.AgeYears, tone, interests, characters, req.Personalization,
		learnerID, userID,
	)
	l, err := scanLearner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *Store) Delete(learnerID, userID int64) (bool, error) {
	res, err := s.db.Exec(
		`DELETE FROM learners WHERE id = $1 AND user_id = $2`,
		learnerID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete learner: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanLearner(row scannable) (*models.Learner, error) {
	var l models.Learner
	var interests, characters []byte
	err := row.Scan(&l.ID, &l.UserID, &l.Name, &l.AgeYears, &l.Level, &l.Tone,
		&interests, &characters, &l.Personalization, &l.CurrentSkillSlug,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(interests, &l.Interests); err != nil {
		return nil, fmt.Errorf("unmarshal interests: %w", err)
	}
	if err := json.Unmarshal(characters, &l.FavoriteCharacters); err != nil {
		return nil, fmt.Errorf("unmarshal favorite characters: %w", err)
	}
	return &l, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
