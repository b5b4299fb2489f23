package trace

import "testing"

func TestNewStartsPending(t *testing.T) {
	tr := New("", 1)

	if tr.ID == "" {
		t.Error("expected a generated trace ID")
	}
	if tr.Status != StatusRunning {
		t.Errorf("expected status running, got %s", tr.Status)
	}
	if tr.Progress != 0 {
		t.Errorf("expected progress 0, got %d", tr.Progress)
	}
	if len(tr.Stages) != 7 {
		t.Fatalf("expected 7 stages, got %d", len(tr.Stages))
	}
	for _, st := range tr.Stages {
		if st.Status != StagePending {
			t.Errorf("stage %s should start pending, got %s", st.ID, st.Status)
		}
	}
}

func TestNewKeepsProvidedID(t *testing.T) {
	tr := New("client-supplied", 1)
	if tr.ID != "client-supplied" {
		t.Errorf("expected provided ID to be kept, got %s", tr.ID)
	}
}

func TestStageTargetsAreMonotonic(t *testing.T) {
	tr := New("", 1)
	prev := 0
	for _, st := range tr.Stages {
		if st.Target <= prev {
			t.Errorf("stage %s target %d not greater than previous %d", st.ID, st.Target, prev)
		}
		prev = st.Target
	}
}

func TestMarkRunningBumpsBelowTarget(t *testing.T) {
	tr := New("", 1)

	tr.MarkRunning(StageValidations, "checking")
	if tr.Progress != 1 {
		t.Errorf("first stage running should floor progress at 1, got %d", tr.Progress)
	}
	if tr.CurrentStage != StageValidations {
		t.Errorf("expected current stage validations, got %s", tr.CurrentStage)
	}

	tr.MarkDone(StageValidations, "")
	tr.MarkRunning(StageLLM, "writing")
	if tr.Progress != 70 {
		t.Errorf("llm running should bump progress to 70, got %d", tr.Progress)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	tr := New("", 1)

	tr.MarkDone(StageLLM, "")
	if tr.Progress != 82 {
		t.Fatalf("expected progress 82, got %d", tr.Progress)
	}

	// Marking an earlier stage afterwards must not pull progress back.
	tr.MarkRunning(StageCache, "late lookup")
	if tr.Progress != 82 {
		t.Errorf("progress regressed to %d", tr.Progress)
	}
	tr.MarkDone(StageCache, "")
	if tr.Progress != 82 {
		t.Errorf("progress regressed to %d", tr.Progress)
	}
}

func TestMarkDoneRecordsDuration(t *testing.T) {
	tr := New("", 1)

	tr.MarkRunning(StagePrompt, "")
	tr.MarkDone(StagePrompt, "built")

	st := tr.stage(StagePrompt)
	if st.Status != StageDone {
		t.Errorf("expected done, got %s", st.Status)
	}
	if st.StartedAt == nil || st.EndedAt == nil {
		t.Error("expected both timestamps set")
	}
	if st.Detail != "built" {
		t.Errorf("expected detail preserved, got %q", st.Detail)
	}
}

func TestMarkErrorIsTerminal(t *testing.T) {
	tr := New("", 1)

	tr.MarkRunning(StageLLM, "")
	tr.MarkError(StageLLM, "model unavailable")

	if tr.Status != StatusError {
		t.Fatalf("expected status error, got %s", tr.Status)
	}
	if tr.EndedAt == nil {
		t.Error("expected ended_at set")
	}

	progress := tr.Progress
	tr.MarkDone(StagePersistence, "should be ignored")
	tr.MarkRunning(StageSession, "should be ignored")
	tr.FinalizeOk("should be ignored")

	if tr.Status != StatusError {
		t.Errorf("terminal status mutated to %s", tr.Status)
	}
	if tr.Progress != progress {
		t.Errorf("terminal progress mutated from %d to %d", progress, tr.Progress)
	}
	if st := tr.stage(StagePersistence); st.Status != StagePending {
		t.Errorf("stage mutated after terminal state: %s", st.Status)
	}
}

func TestFinalizeOkClosesAtHundred(t *testing.T) {
	tr := New("", 1)

	for _, st := range tr.Stages[:len(tr.Stages)-1] {
		tr.MarkDone(st.ID, "")
	}
	tr.MarkRunning(StageSession, "")
	tr.FinalizeOk("ready")

	if tr.Status != StatusDone {
		t.Errorf("expected done, got %s", tr.Status)
	}
	if tr.Progress != 100 {
		t.Errorf("expected progress 100, got %d", tr.Progress)
	}
	if st := tr.stage(StageSession); st.Status != StageDone {
		t.Errorf("terminal stage not completed: %s", st.Status)
	}
}

func TestSkipRemainingMarksPendingOnly(t *testing.T) {
	tr := New("", 1)

	tr.MarkDone(StageValidations, "")
	tr.MarkDone(StageRoute, "")
	tr.MarkDone(StageCache, "hit")

	tr.SkipRemaining(ContentStages, "served from cache")

	for _, id := range ContentStages {
		st := tr.stage(id)
		if st.Status != StageDone {
			t.Errorf("stage %s should be done after skip, got %s", id, st.Status)
		}
		if st.Detail != "served from cache" {
			t.Errorf("stage %s detail = %q", id, st.Detail)
		}
	}

	// Cache stage keeps its own detail.
	if st := tr.stage(StageCache); st.Detail != "hit" {
		t.Errorf("skip overwrote a completed stage: %q", st.Detail)
	}

	if tr.Progress != 92 {
		t.Errorf("expected progress 92 after skipping content stages, got %d", tr.Progress)
	}
	if tr.Terminal() {
		t.Error("skip must not terminate the trace")
	}
}
