package stories

import (
	"testing"
	"time"

	"github.com/lectoria/backend/internal/models"
)

type stubCandidates struct {
	candidates []models.Story
	calls      int
}

func (s *stubCandidates) CacheCandidates(learnerID int64, topicSlug string, levelMin, levelMax float64, since time.Time) ([]models.Story, error) {
	s.calls++
	return s.candidates, nil
}

func cacheStory(id int64, level float64, tone models.Tone, questionCount int) models.Story {
	return models.Story{
		ID:            id,
		LearnerID:     1,
		TopicSlug:     "space-planets",
		Title:         "A story",
		Body:          "body",
		Level:         level,
		Approved:      true,
		Reusable:      true,
		QuestionCount: questionCount,
		Metadata: models.StoryMetadata{
			Flags: models.StoryFlags{Tone: tone},
		},
	}
}

func TestResolveSkipsForcedRegeneration(t *testing.T) {
	stub := &stubCandidates{candidates: []models.Story{cacheStory(1, 2.0, models.ToneBalanced, 4)}}
	r := NewCacheResolver(stub)

	hit, err := r.Resolve(1, "space-planets", 2.0, models.ToneBalanced, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit != nil {
		t.Error("expected no hit when skip is set")
	}
	if stub.calls != 0 {
		t.Error("store must not be queried when skipping")
	}
}

func TestResolveSkipsEmptyTopic(t *testing.T) {
	stub := &stubCandidates{candidates: []models.Story{cacheStory(1, 2.0, models.ToneBalanced, 4)}}
	r := NewCacheResolver(stub)

	hit, err := r.Resolve(1, "", 2.0, models.ToneBalanced, false)
	if err != nil || hit != nil {
		t.Errorf("expected miss for empty topic, got %v, %v", hit, err)
	}
}

func TestResolveToneMatchesExactly(t *testing.T) {
	stub := &stubCandidates{candidates: []models.Story{
		cacheStory(1, 2.0, models.TonePlayful, 4),
		cacheStory(2, 2.0, models.ToneImaginative, 4),
	}}
	r := NewCacheResolver(stub)

	hit, err := r.Resolve(1, "space-planets", 2.0, models.ToneBalanced, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit != nil {
		t.Errorf("expected miss when no candidate shares the tone, got story %d", hit.ID)
	}
}

func TestResolveRanksByLevelDistance(t *testing.T) {
	stub := &stubCandidates{candidates: []models.Story{
		cacheStory(1, 2.15, models.ToneBalanced, 4),
		cacheStory(2, 2.02, models.ToneBalanced, 4),
		cacheStory(3, 2.10, models.ToneBalanced, 4),
	}}
	r := NewCacheResolver(stub)

	hit, err := r.Resolve(1, "space-planets", 2.0, models.ToneBalanced, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit == nil || hit.ID != 2 {
		t.Errorf("expected closest-level story 2, got %v", hit)
	}
}

func TestResolvePenalizesMissingQuestions(t *testing.T) {
	// Story 1 is closer but has no questions; 0.05 + 0.15 > 0.12.
	stub := &stubCandidates{candidates: []models.Story{
		cacheStory(1, 2.05, models.ToneBalanced, 0),
		cacheStory(2, 2.12, models.ToneBalanced, 4),
	}}
	r := NewCacheResolver(stub)

	hit, err := r.Resolve(1, "space-planets", 2.0, models.ToneBalanced, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit == nil || hit.ID != 2 {
		t.Errorf("expected penalty to prefer story 2, got %v", hit)
	}
}

func TestResolvePenaltyDoesNotOverrideLargeGap(t *testing.T) {
	// Question-less story is so much closer the penalty can't flip it.
	stub := &stubCandidates{candidates: []models.Story{
		cacheStory(1, 2.0, models.ToneBalanced, 0),
		cacheStory(2, 2.17, models.ToneBalanced, 4),
	}}
	r := NewCacheResolver(stub)

	hit, err := r.Resolve(1, "space-planets", 2.0, models.ToneBalanced, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit == nil || hit.ID != 1 {
		t.Errorf("expected story 1 despite penalty, got %v", hit)
	}
}
