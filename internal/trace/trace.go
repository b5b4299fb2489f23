package trace

import (
	"log"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

type StageStatus string

const (
	StagePending      StageStatus = "pending"
	StageRunningState StageStatus = "running"
	StageDone         StageStatus = "done"
	StageErrored      StageStatus = "error"
)

type StageID string

const (
	StageValidations StageID = "validations"
	StageRoute       StageID = "route"
	StageCache       StageID = "cache"
	StagePrompt      StageID = "prompt"
	StageLLM         StageID = "llm"
	StagePersistence StageID = "persistence"
	StageSession     StageID = "session"
)

// ContentStages are the stages a cache hit makes unnecessary.
var ContentStages = []StageID{StagePrompt, StageLLM, StagePersistence}

// stagePlan fixes the visit order and per-stage target progress.
// Targets are monotonic across the list.
var stagePlan = []struct {
	ID     StageID
	Label  string
	Target int
}{
	{StageValidations, "Checking limits", 10},
	{StageRoute, "Choosing a topic", 25},
	{StageCache, "Looking for a ready story", 40},
	{StagePrompt, "Preparing the story plan", 55},
	{StageLLM, "Writing the story", 82},
	{StagePersistence, "Saving the story", 92},
	{StageSession, "Getting everything ready", 98},
}

// runningLead is how far below a stage's target MarkRunning may bump
// progress, so pollers see movement before the stage completes.
const runningLead = 12

type Stage struct {
	ID         StageID     `json:"id"`
	Label      string      `json:"label"`
	Target     int         `json:"target"`
	Status     StageStatus `json:"status"`
	Detail     string      `json:"detail,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
}

// Trace tracks one generation request through its named stages. It is
// the single progress signal an external poller sees, so every
// observable mutation must be persisted by the caller.
type Trace struct {
	ID              string     `json:"id"`
	LearnerID       int64      `json:"learner_id"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	CurrentStage    StageID    `json:"current_stage,omitempty"`
	Stages          []Stage    `json:"stages"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	TotalDurationMs int64      `json:"total_duration_ms,omitempty"`
}

// New creates a trace with all stages pending. An empty id gets a
// fresh UUID; callers may supply one for externally-tracked requests.
func New(id string, learnerID int64) *Trace {
	if id == "" {
		id = uuid.NewString()
	}
	stages := make([]Stage, len(stagePlan))
	for i, p := range stagePlan {
		stages[i] = Stage{ID: p.ID, Label: p.Label, Target: p.Target, Status: StagePending}
	}
	return &Trace{
		ID:        id,
		LearnerID: learnerID,
		Status:    StatusRunning,
		Progress:  0,
		Stages:    stages,
		StartedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the trace reached done or error. Terminal
// traces are never mutated again.
func (t *Trace) Terminal() bool {
	return t.Status == StatusDone || t.Status == StatusError
}

func (t *Trace) stage(id StageID) *Stage {
	for i := range t.Stages {
		if t.Stages[i].ID == id {
			return &t.Stages[i]
		}
	}
	return nil
}

// bumpProgress raises progress to at least p. Progress never decreases.
func (t *Trace) bumpProgress(p int) {
	if p > t.Progress {
		t.Progress = p
	}
}

// MarkRunning sets a stage running and bumps progress to just below
// the stage target, giving pollers mid-stage feedback without claiming
// completion.
func (t *Trace) MarkRunning(id StageID, detail string) {
	if t.guardTerminal("MarkRunning", id) {
		return
	}
	st := t.stage(id)
	if st == nil {
		return
	}
	st.Status = StageRunningState
	st.Detail = detail
	if st.StartedAt == nil {
		now := time.Now().UTC()
		st.StartedAt = &now
	}
	t.CurrentStage = id

	lead := st.Target - runningLead
	if lead < 1 {
		lead = 1
	}
	t.bumpProgress(lead)
}

// MarkDone completes a stage and bumps progress to its target.
func (t *Trace) MarkDone(id StageID, detail string) {
	if t.guardTerminal("MarkDone", id) {
		return
	}
	st := t.stage(id)
	if st == nil {
		return
	}
	now := time.Now().UTC()
	st.Status = StageDone
	st.Detail = detail
	st.EndedAt = &now
	if st.StartedAt != nil {
		st.DurationMs = now.Sub(*st.StartedAt).Milliseconds()
	}
	t.bumpProgress(st.Target)
}

// MarkError fails a stage and freezes the whole trace.
func (t *Trace) MarkError(id StageID, message string) {
	if t.guardTerminal("MarkError", id) {
		return
	}
	st := t.stage(id)
	now := time.Now().UTC()
	if st != nil {
		st.Status = StageErrored
		st.Detail = message
		st.EndedAt = &now
		if st.StartedAt != nil {
			st.DurationMs = now.Sub(*st.StartedAt).Milliseconds()
		}
	}
	t.Status = StatusError
	t.EndedAt = &now
	t.TotalDurationMs = now.Sub(t.StartedAt).Milliseconds()
}

// FinalizeOk completes the terminal stage if needed and closes the
// trace at 100%.
func (t *Trace) FinalizeOk(detail string) {
	if t.guardTerminal("FinalizeOk", "") {
		return
	}
	last := &t.Stages[len(t.Stages)-1]
	if last.Status != StageDone {
		t.MarkDone(last.ID, detail)
	}
	now := time.Now().UTC()
	t.Status = StatusDone
	t.Progress = 100
	t.EndedAt = &now
	t.TotalDurationMs = now.Sub(t.StartedAt).Milliseconds()
}

// SkipRemaining marks every still-pending stage in ids as done with the
// given detail. Used after a cache hit so observers can tell "skipped"
// from "never ran".
func (t *Trace) SkipRemaining(ids []StageID, detail string) {
	if t.guardTerminal("SkipRemaining", "") {
		return
	}
	for _, id := range ids {
		st := t.stage(id)
		if st == nil || st.Status != StagePending {
			continue
		}
		now := time.Now().UTC()
		st.Status = StageDone
		st.Detail = detail
		st.EndedAt = &now
		t.bumpProgress(st.Target)
	}
}

func (t *Trace) guardTerminal(op string, id StageID) bool {
	if t.Terminal() {
		log.Printf("WARN: [trace] %s(%s) on terminal trace %s ignored", op, id, t.ID)
		return true
	}
	return false
}
