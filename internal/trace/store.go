package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save upserts the full trace. Called after every observable mutation,
// so the row always reflects the latest in-memory state.
func (s *Store) Save(t *Trace) error {
	stages, err := json.Marshal(t.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO generation_traces
		 (id, learner_id, status, progress, current_stage, stages, started_at, ended_at, total_duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET status = $3, progress = $4, current_stage = $5, stages = $6,
		     ended_at = $8, total_duration_ms = $9`,
		t.ID, t.LearnerID, t.Status, t.Progress, string(t.CurrentStage),
		stages, t.StartedAt, t.EndedAt, t.TotalDurationMs,
	)
	if err != nil {
		return fmt.Errorf("save trace: %w", err)
	}
	return nil
}

// Get loads a trace scoped to a learner. Returns (nil, nil) when no
// such trace exists for that learner.
func (s *Store) Get(traceID string, learnerID int64) (*Trace, error) {
	var t Trace
	var stages []byte
	var currentStage string

	err := s.db.QueryRow(
		`SELECT id, learner_id, status, progress, current_stage, stages,
		        started_at, ended_at, total_duration_ms
		 FROM generation_traces WHERE id = $1 AND learner_id = $2`,
		traceID, learnerID,
	).Scan(&t.ID, &t.LearnerID, &t.Status, &t.Progress, &currentStage,
		&stages, &t.StartedAt, &t.EndedAt, &t.TotalDurationMs)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get trace: %w", err)
	}

	t.CurrentStage = StageID(currentStage)
	if err := json.Unmarshal(stages, &t.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	return &t, nil
}
