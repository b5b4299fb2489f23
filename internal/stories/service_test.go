package stories

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lectoria/backend/internal/generator"
	"github.com/lectoria/backend/internal/models"
	"github.com/lectoria/backend/internal/topics"
	"github.com/lectoria/backend/internal/trace"
)

// ── In-memory fakes ─────────────────────────────────────

type fakeStore struct {
	learner          *models.Learner
	generationsToday int
	candidates       []models.Story

	nextID   int64
	stories  []models.Story
	sessions []models.ReadingSession
	batches  map[int64][]models.StoryQuestion
}

func newFakeStore(learner *models.Learner) *fakeStore {
	return &fakeStore{learner: learner, batches: make(map[int64][]models.StoryQuestion)}
}

func (f *fakeStore) GetLearner(learnerID, userID int64) (*models.Learner, error) {
	if f.learner != nil && f.learner.ID == learnerID && f.learner.UserID == userID {
		return f.learner, nil
	}
	return nil, nil
}

func (f *fakeStore) CreateStory(story *models.Story) (*models.Story, error) {
	f.nextID++
	out := *story
	out.ID = f.nextID
	out.CreatedAt = time.Now().UTC()
	f.stories = append(f.stories, out)
	return &out, nil
}

func (f *fakeStore) GetStory(storyID, learnerID int64) (*models.Story, error) {
	for i := range f.stories {
		if f.stories[i].ID == storyID && f.stories[i].LearnerID == learnerID {
			return &f.stories[i], nil
		}
	}
	for i := range f.candidates {
		if f.candidates[i].ID == storyID && f.candidates[i].LearnerID == learnerID {
			return &f.candidates[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListStories(learnerID int64, limit, offset int) ([]models.Story, error) {
	return f.stories, nil
}

func (f *fakeStore) RecentTitles(learnerID int64, topicSlug string, limit int) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) RecentTopicSlugs(learnerID int64, limit int) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) CountGenerationsToday(learnerID int64) (int, error) {
	return f.generationsToday, nil
}

func (f *fakeStore) CacheCandidates(learnerID int64, topicSlug string, levelMin, levelMax float64, since time.Time) ([]models.Story, error) {
	var in []models.Story
	for _, c := range f.candidates {
		if c.TopicSlug == topicSlug && c.Level >= levelMin && c.Level <= levelMax {
			in = append(in, c)
		}
	}
	return in, nil
}

func (f *fakeStore) GetQuestions(storyID int64) ([]models.StoryQuestion, error) {
	return f.batches[storyID], nil
}

func (f *fakeStore) InsertQuestionBatch(ctx context.Context, storyID int64, questions []models.StoryQuestion) ([]models.StoryQuestion, error) {
	if existing := f.batches[storyID]; len(existing) > 0 {
		return existing, nil
	}
	f.batches[storyID] = questions
	return questions, nil
}

func (f *fakeStore) CreateSession(session *models.ReadingSession) (*models.ReadingSession, error) {
	f.nextID++
	out := *session
	out.ID = f.nextID
	out.Status = models.SessionActive
	out.StartedAt = time.Now().UTC()
	f.sessions = append(f.sessions, out)
	return &out, nil
}

type fakeTraces struct {
	saves  int
	latest map[string]trace.Trace
}

func newFakeTraces() *fakeTraces {
	return &fakeTraces{latest: make(map[string]trace.Trace)}
}

func (f *fakeTraces) Save(t *trace.Trace) error {
	f.saves++
	f.latest[t.ID] = *t
	return nil
}

func (f *fakeTraces) Get(traceID string, learnerID int64) (*trace.Trace, error) {
	t, ok := f.latest[traceID]
	if !ok || t.LearnerID != learnerID {
		return nil, nil
	}
	return &t, nil
}

// scriptedClient replays canned responses in order, repeating the last.
type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (*generator.LLMResponse, error) {
	idx := c.calls
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.calls++
	return &generator.LLMResponse{
		Content:      c.responses[idx],
		FinishReason: "end_turn",
		PromptTokens: 100,
		OutputTokens: 100,
	}, nil
}

// downClient fails every call at the transport level.
type downClient struct {
	calls int
}

func (c *downClient) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (*generator.LLMResponse, error) {
	c.calls++
	return nil, errTransport
}

var errTransport = errors.New("connection reset by peer")

func goodPayload() string {
	resp, _ := generator.NewMockClient().Generate(context.Background(), "", "", 0, 0)
	return resp.Content
}

func unsafePayload() string {
	return strings.Replace(goodPayload(), "found a shiny rock", "found a knife", 1)
}

func testLearner() *models.Learner {
	return &models.Learner{
		ID:       1,
		UserID:   10,
		Name:     "Mia",
		AgeYears: 7,
		Level:    4, // sub-level 2.0
		Tone:     models.ToneBalanced,
	}
}

func newTestService(store *fakeStore, traces *fakeTraces, client generator.LLMClient) *Service {
	inv := generator.NewInvokerWithClient(client, "test-model")
	return NewService(store, traces, inv, topics.NewCatalogRouter())
}

// ── Generate ────────────────────────────────────────────

func TestGenerateFullPipeline(t *testing.T) {
	store := newFakeStore(testLearner())
	traces := newFakeTraces()
	client := &scriptedClient{responses: []string{goodPayload()}}
	svc := newTestService(store, traces, client)

	resp, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID: 1,
		TopicSlug: "space-planets",
	})
	require.NoError(t, err)
	require.False(t, resp.FromCache)
	require.NotNil(t, resp.Story)
	require.True(t, resp.Story.Approved)
	require.True(t, resp.Story.Reusable)
	require.Equal(t, "space-planets", resp.Story.TopicSlug)
	require.Len(t, resp.Questions, 4)
	require.NotZero(t, resp.SessionID)

	tr, err := traces.Get(resp.TraceID, 1)
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.Equal(t, trace.StatusDone, tr.Status)
	require.Equal(t, 100, tr.Progress)

	require.Len(t, store.sessions, 1)
	require.Equal(t, resp.Story.ID, store.sessions[0].StoryID)
}

func TestGenerateFromCache(t *testing.T) {
	store := newFakeStore(testLearner())
	cached := models.Story{
		ID: 99, LearnerID: 1, TopicSlug: "space-planets",
		Title: "Old favorite", Body: "body", Level: 2.05,
		Approved: true, Reusable: true, QuestionCount: 4,
		Metadata: models.StoryMetadata{Flags: models.StoryFlags{Tone: models.ToneBalanced}},
	}
	store.candidates = []models.Story{cached}
	store.batches[99] = []models.StoryQuestion{{ID: 1, StoryID: 99, Type: models.QuestionLiteral}}
	traces := newFakeTraces()
	client := &scriptedClient{responses: []string{goodPayload()}}
	svc := newTestService(store, traces, client)

	resp, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID: 1,
		TopicSlug: "space-planets",
	})
	require.NoError(t, err)
	require.True(t, resp.FromCache)
	require.Equal(t, int64(99), resp.Story.ID)
	require.Len(t, resp.Questions, 1)
	require.Zero(t, client.calls, "cache hit must not invoke the model")
	require.Empty(t, store.stories, "cache hit must not persist a new story")
	require.Len(t, store.sessions, 1, "cache hit still creates a session")

	tr, _ := traces.Get(resp.TraceID, 1)
	require.NotNil(t, tr)
	require.Equal(t, trace.StatusDone, tr.Status)
	for _, id := range trace.ContentStages {
		for _, st := range tr.Stages {
			if st.ID == id {
				require.Equal(t, trace.StageDone, st.Status)
				require.Equal(t, "served from cache", st.Detail)
			}
		}
	}
}

func TestGenerateForceRegenerateBypassesCache(t *testing.T) {
	store := newFakeStore(testLearner())
	store.candidates = []models.Story{{
		ID: 99, LearnerID: 1, TopicSlug: "space-planets", Level: 2.0,
		Approved: true, Reusable: true, QuestionCount: 4,
		Metadata: models.StoryMetadata{Flags: models.StoryFlags{Tone: models.ToneBalanced}},
	}}
	traces := newFakeTraces()
	client := &scriptedClient{responses: []string{goodPayload()}}
	svc := newTestService(store, traces, client)

	resp, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID:       1,
		TopicSlug:       "space-planets",
		ForceRegenerate: true,
	})
	require.NoError(t, err)
	require.False(t, resp.FromCache)
	require.Equal(t, 1, client.calls)
}

func TestGenerateRejectedThenApproved(t *testing.T) {
	store := newFakeStore(testLearner())
	traces := newFakeTraces()
	client := &scriptedClient{responses: []string{unsafePayload(), goodPayload()}}
	svc := newTestService(store, traces, client)

	resp, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID: 1,
		TopicSlug: "space-planets",
	})
	require.NoError(t, err)
	require.True(t, resp.Story.Approved)
	require.Equal(t, 2, client.calls, "rubric rejection consumes one retry round")
	require.Len(t, store.stories, 1, "only the approved candidate is persisted")
}

func TestGenerateAllAttemptsRejected(t *testing.T) {
	store := newFakeStore(testLearner())
	traces := newFakeTraces()
	client := &scriptedClient{responses: []string{unsafePayload()}}
	svc := newTestService(store, traces, client)

	resp, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID: 1,
		TopicSlug: "space-planets",
	})
	require.Error(t, err)
	require.Nil(t, resp)

	pe, ok := err.(*models.PipelineError)
	require.True(t, ok)
	require.Equal(t, models.CodeQARejected, pe.Code)

	// The last rejected candidate is still stored for audit.
	require.Len(t, store.stories, 1)
	rejected := store.stories[0]
	require.False(t, rejected.Approved)
	require.False(t, rejected.Reusable)
	require.NotNil(t, rejected.RejectionReason)
	require.Contains(t, *rejected.RejectionReason, "unsafe content")
	require.Empty(t, store.sessions, "no session for a rejected story")
}

func TestGenerateDailyQuotaExceeded(t *testing.T) {
	store := newFakeStore(testLearner())
	store.generationsToday = 10
	traces := newFakeTraces()
	client := &scriptedClient{responses: []string{goodPayload()}}
	svc := newTestService(store, traces, client)

	_, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID: 1,
		TopicSlug: "space-planets",
	})
	require.Error(t, err)

	pe, ok := err.(*models.PipelineError)
	require.True(t, ok)
	require.Equal(t, models.CodeRateLimit, pe.Code)
	require.Zero(t, client.calls)
}

func TestGenerateMissingCredentialsFailsValidations(t *testing.T) {
	t.Setenv("USE_CLI_GENERATOR", "")
	t.Setenv("MOCK_GENERATOR", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	store := newFakeStore(testLearner())
	traces := newFakeTraces()
	svc := NewService(store, traces, generator.NewInvoker(), topics.NewCatalogRouter())

	resp, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID: 1,
		TopicSlug: "space-planets",
		TraceID:   "keyless",
	})
	require.Error(t, err)
	require.Nil(t, resp)

	pe, ok := err.(*models.PipelineError)
	require.True(t, ok)
	require.Equal(t, models.CodeNoAPIKey, pe.Code)
	require.Equal(t, string(trace.StageValidations), pe.Stage)

	tr, _ := traces.Get("keyless", 1)
	require.NotNil(t, tr)
	require.Equal(t, trace.StatusError, tr.Status)
	require.Equal(t, trace.StageErrored, tr.Stages[0].Status)
	require.Equal(t, trace.StagePending, tr.Stages[1].Status, "later stages never run without credentials")
	require.Empty(t, store.stories)
	require.Empty(t, store.sessions)
}

func TestGenerateUnknownLearner(t *testing.T) {
	store := newFakeStore(testLearner())
	traces := newFakeTraces()
	svc := newTestService(store, traces, &scriptedClient{responses: []string{goodPayload()}})

	_, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID: 42,
		TopicSlug: "space-planets",
	})
	require.Error(t, err)
}

// ── Deferred questions ──────────────────────────────────

func TestGenerateQuestionsIdempotent(t *testing.T) {
	store := newFakeStore(testLearner())
	store.candidates = []models.Story{{
		ID: 7, LearnerID: 1, TopicSlug: "space-planets", Title: "T", Body: "B", Level: 2.0,
	}}
	store.batches[7] = []models.StoryQuestion{
		{ID: 1, StoryID: 7, Type: models.QuestionLiteral},
		{ID: 2, StoryID: 7, Type: models.QuestionInference},
	}
	client := &scriptedClient{responses: []string{goodPayload()}}
	svc := newTestService(store, newFakeTraces(), client)

	questions, err := svc.GenerateQuestions(context.Background(), 10, 1, 7)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	require.Zero(t, client.calls, "existing batch short-circuits generation")
}

func TestGenerateQuestionsForStoryWithoutBatch(t *testing.T) {
	store := newFakeStore(testLearner())
	store.candidates = []models.Story{{
		ID: 7, LearnerID: 1, TopicSlug: "space-planets", Title: "T", Body: "B", Level: 2.0,
	}}
	client := &scriptedClient{responses: []string{goodPayload()}}
	svc := newTestService(store, newFakeTraces(), client)

	questions, err := svc.GenerateQuestions(context.Background(), 10, 1, 7)
	require.NoError(t, err)
	require.Len(t, questions, 4)
	require.Equal(t, 1, client.calls)

	types := make(map[models.QuestionType]bool)
	for _, q := range questions {
		types[q.Type] = true
	}
	for _, required := range models.RequiredQuestionTypes {
		require.True(t, types[required], "missing %s question", required)
	}
}

func TestGenerateQuestionsTransportFailureCode(t *testing.T) {
	store := newFakeStore(testLearner())
	store.candidates = []models.Story{{
		ID: 7, LearnerID: 1, TopicSlug: "space-planets", Title: "T", Body: "B", Level: 2.0,
	}}
	client := &downClient{}
	svc := newTestService(store, newFakeTraces(), client)

	_, err := svc.GenerateQuestions(context.Background(), 10, 1, 7)
	require.Error(t, err)
	require.Equal(t, 6, client.calls, "two transport tries inside each of three retry rounds")

	pe, ok := err.(*models.PipelineError)
	require.True(t, ok)
	require.Equal(t, models.CodeGenerationFailed, pe.Code,
		"a batch that never reached review is not a rejection")
}

func TestGenerateQuestionsRejectedBatchCode(t *testing.T) {
	store := newFakeStore(testLearner())
	store.candidates = []models.Story{{
		ID: 7, LearnerID: 1, TopicSlug: "space-planets", Title: "T", Body: "B", Level: 2.0,
	}}
	short := `{"questions":[
		{"type":"literal","prompt":"Q1?","options":["a","b","c","d"],"correct_index":0,"explanation":"e"},
		{"type":"inference","prompt":"Q2?","options":["a","b","c","d"],"correct_index":1,"explanation":"e"},
		{"type":"vocabulary","prompt":"Q3?","options":["a","b","c","d"],"correct_index":2,"explanation":"e"}
	]}`
	client := &scriptedClient{responses: []string{short}}
	svc := newTestService(store, newFakeTraces(), client)

	_, err := svc.GenerateQuestions(context.Background(), 10, 1, 7)
	require.Error(t, err)

	pe, ok := err.(*models.PipelineError)
	require.True(t, ok)
	require.Equal(t, models.CodeQARejected, pe.Code)
}

// ── Reads ───────────────────────────────────────────────

func TestGetTraceChecksLearnerOwnership(t *testing.T) {
	store := newFakeStore(testLearner())
	traces := newFakeTraces()
	svc := newTestService(store, traces, &scriptedClient{responses: []string{goodPayload()}})

	resp, err := svc.Generate(context.Background(), 10, models.GenerateStoryRequest{
		LearnerID: 1,
		TopicSlug: "space-planets",
	})
	require.NoError(t, err)

	tr, err := svc.GetTrace(10, resp.TraceID, 1)
	require.NoError(t, err)
	require.NotNil(t, tr)

	tr, err = svc.GetTrace(99, resp.TraceID, 1)
	require.NoError(t, err)
	require.Nil(t, tr, "a foreign user must not see the trace")
}

func TestGetStoryChecksLearnerOwnership(t *testing.T) {
	store := newFakeStore(testLearner())
	store.candidates = []models.Story{{
		ID: 7, LearnerID: 1, TopicSlug: "space-planets", Title: "T", Body: "B", Level: 2.0,
	}}
	svc := newTestService(store, newFakeTraces(), &scriptedClient{responses: []string{goodPayload()}})

	story, _, err := svc.GetStory(10, 7, 1)
	require.NoError(t, err)
	require.NotNil(t, story)

	story, _, err = svc.GetStory(99, 7, 1)
	require.NoError(t, err)
	require.Nil(t, story, "a foreign user must not see the story")
}

// ── Rewrite ─────────────────────────────────────────────

func TestRewriteProducesOneOffStory(t *testing.T) {
	store := newFakeStore(testLearner())
	store.candidates = []models.Story{{
		ID: 5, LearnerID: 1, TopicSlug: "space-planets", Title: "Original", Body: "B",
		Level: 2.0, Approved: true, Reusable: true,
		Metadata: models.StoryMetadata{Flags: models.StoryFlags{Tone: models.ToneBalanced}},
	}}
	client := &scriptedClient{responses: []string{goodPayload()}}
	svc := newTestService(store, newFakeTraces(), client)

	resp, err := svc.Rewrite(context.Background(), 10, 1, 5, "simplify")
	require.NoError(t, err)
	require.NotEqual(t, int64(5), resp.Story.ID, "rewrite creates a new row")
	require.False(t, resp.Story.Reusable, "rewrites are never cache-eligible")
	require.Equal(t, "simplify", resp.Story.Metadata.Flags.Rewrite)
	require.InDelta(t, 1.0, resp.Story.Level, 1e-9, "simplify moves one level down")
}

func TestRewriteRejectsBadDirection(t *testing.T) {
	svc := newTestService(newFakeStore(testLearner()), newFakeTraces(),
		&scriptedClient{responses: []string{goodPayload()}})

	_, err := svc.Rewrite(context.Background(), 10, 1, 5, "harder")
	require.Error(t, err)
}

// ── Sub-level mapping ───────────────────────────────────

func TestSubLevelForCoarse(t *testing.T) {
	tests := []struct {
		coarse float64
		want   float64
	}{
		{1, 1.0},
		{4, 2.0},
		{7, 3.0},
		{10, 4.0},
		{0, 1.0},  // clamped low
		{15, 4.0}, // clamped high
	}
	for _, tt := range tests {
		got := SubLevelForCoarse(tt.coarse)
		require.InDelta(t, tt.want, got, 1e-9, "coarse %v", tt.coarse)
	}
}
