package stories

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/lectoria/backend/internal/generator"
	"github.com/lectoria/backend/internal/models"
	"github.com/lectoria/backend/internal/topics"
	"github.com/lectoria/backend/internal/trace"
)

// customTopicSlug is the synthetic slug for ad-hoc free-text topics.
// These stories are never reusable and the cache never matches them.
const customTopicSlug = "custom"

// Persistence is the slice of the store the orchestrator needs.
type Persistence interface {
	candidateSource
	GetLearner(learnerID, userID int64) (*models.Learner, error)
	CreateStory(story *models.Story) (*models.Story, error)
	GetStory(storyID, learnerID int64) (*models.Story, error)
	ListStories(learnerID int64, limit, offset int) ([]models.Story, error)
	RecentTitles(learnerID int64, topicSlug string, limit int) ([]string, error)
	RecentTopicSlugs(learnerID int64, limit int) ([]string, error)
	CountGenerationsToday(learnerID int64) (int, error)
	GetQuestions(storyID int64) ([]models.StoryQuestion, error)
	InsertQuestionBatch(ctx context.Context, storyID int64, questions []models.StoryQuestion) ([]models.StoryQuestion, error)
	CreateSession(session *models.ReadingSession) (*models.ReadingSession, error)
}

// TraceStore persists traces for pollers.
type TraceStore interface {
	Save(t *trace.Trace) error
	Get(traceID string, learnerID int64) (*trace.Trace, error)
}

// Service is the generation orchestrator: it drives the trace through
// its stages and is the only entry point that produces stories.
type Service struct {
	store      Persistence
	traces     TraceStore
	cache      *CacheResolver
	invoker    *generator.Invoker
	rubric     *generator.Rubric
	router     topics.Router
	dailyQuota int
	qaRetries  int
}

func NewService(store Persistence, traces TraceStore, invoker *generator.Invoker, router topics.Router) *Service {
	dailyQuota := envInt("DAILY_GENERATION_QUOTA", 10)
	qaRetries := envInt("QA_MAX_RETRIES", 2)

	log.Printf("[stories] service: model=%s dailyQuota=%d qaRetries=%d",
		invoker.ModelName(), dailyQuota, qaRetries)

	return &Service{
		store:      store,
		traces:     traces,
		cache:      NewCacheResolver(store),
		invoker:    invoker,
		rubric:     generator.NewRubric(generator.DefaultRubricConfig()),
		router:     router,
		dailyQuota: dailyQuota,
		qaRetries:  qaRetries,
	}
}

// SubLevelForCoarse maps a coarse learner level [1,10] onto the prompt
// template scale [1,4].
func SubLevelForCoarse(coarse float64) float64 {
	return generator.ClampSubLevel(1 + (coarse-1)/3)
}

// ── Generation ──────────────────────────────────────────

// Generate runs the full pipeline for one request. The trace is the
// caller's progress signal, so every stage transition is persisted
// before the next one begins.
func (s *Service) Generate(ctx context.Context, userID int64, req models.GenerateStoryRequest) (resp *models.GenerateStoryResponse, err error) {
	tr := trace.New(req.TraceID, req.LearnerID)

	defer func() {
		if r := recover(); r != nil {
			stage := tr.CurrentStage
			if stage == "" {
				stage = trace.StageValidations
			}
			log.Printf("[stories] panic for learner=%d stage=%s: %v", req.LearnerID, stage, r)
			tr.MarkError(stage, "generation failed")
			s.saveTrace(tr)
			resp = nil
			err = models.NewPipelineError(models.CodeGenerationFailed, string(stage), "generation failed")
		}
	}()

	// 1. validations
	tr.MarkRunning(trace.StageValidations, "checking limits")
	s.saveTrace(tr)

	if !s.invoker.Ready() {
		return nil, s.failStage(tr, trace.StageValidations, models.CodeNoAPIKey, "no model API credentials configured")
	}

	learner, err := s.store.GetLearner(req.LearnerID, userID)
	if err != nil {
		return nil, s.failStage(tr, trace.StageValidations, models.CodeGenerationFailed, "could not load learner")
	}
	if learner == nil {
		return nil, s.failStage(tr, trace.StageValidations, models.CodeGenerationFailed, "learner not found")
	}

	today, err := s.store.CountGenerationsToday(req.LearnerID)
	if err != nil {
		return nil, s.failStage(tr, trace.StageValidations, models.CodeGenerationFailed, "could not check daily limit")
	}
	if today >= s.dailyQuota {
		return nil, s.failStage(tr, trace.StageValidations, models.CodeRateLimit,
			fmt.Sprintf("daily generation limit reached (%d/day)", s.dailyQuota))
	}

	tone := learner.Tone
	if req.Tone != nil && req.Tone.Valid() {
		tone = *req.Tone
	}
	coarse := learner.Level
	if req.LevelOverride != nil {
		coarse = clampCoarse(*req.LevelOverride)
	}
	subLevel := SubLevelForCoarse(coarse)
	tr.MarkDone(trace.StageValidations, "ok")
	s.saveTrace(tr)

	// 2. route
	tr.MarkRunning(trace.StageRoute, "choosing a topic")
	s.saveTrace(tr)
	topic, custom := s.routeTopic(learner, req)
	tr.MarkDone(trace.StageRoute, topic.Name)
	s.saveTrace(tr)

	// 3. cache
	tr.MarkRunning(trace.StageCache, "looking for a ready story")
	s.saveTrace(tr)
	cached, cacheErr := s.cache.Resolve(learner.ID, topic.Slug, subLevel, tone, req.ForceRegenerate || custom)
	if cacheErr != nil {
		log.Printf("WARN: [stories] cache lookup failed, treating as miss: %v", cacheErr)
	}
	if cached != nil {
		return s.finishFromCache(tr, learner, cached)
	}
	tr.MarkDone(trace.StageCache, "miss")
	s.saveTrace(tr)

	// 4. prompt
	tr.MarkRunning(trace.StagePrompt, "preparing the story plan")
	s.saveTrace(tr)
	recentTitles, titlesErr := s.store.RecentTitles(learner.ID, topic.Slug, 5)
	if titlesErr != nil {
		log.Printf("WARN: [stories] recent titles lookup failed: %v", titlesErr)
	}
	profile := models.PedagogicalProfile{
		AgeYears:           learner.AgeYears,
		TargetLevel:        subLevel,
		TopicName:          topic.Name,
		TopicDescription:   topic.Description,
		CoreConcept:        topic.CoreConcept,
		Tone:               tone,
		FunMode:            req.FunMode,
		Interests:          capInterests(learner.Interests, 3),
		FavoriteCharacters: learner.FavoriteCharacters,
		Personalization:    learner.Personalization,
		RecentTitles:       recentTitles,
	}
	system, user := generator.BuildStoryPrompts(profile)
	tr.MarkDone(trace.StagePrompt, "")
	s.saveTrace(tr)

	// 5. llm (rubric rejections share the retry budget)
	tr.MarkRunning(trace.StageLLM, "writing the story")
	s.saveTrace(tr)
	payload, review, genErr := s.generateReviewed(ctx, system, user, subLevel, recentTitles)
	if genErr != nil {
		var code models.ErrorCode = models.CodeGenerationFailed
		if pe, ok := genErr.(*models.PipelineError); ok {
			code = pe.Code
		}
		return nil, s.failStage(tr, trace.StageLLM, code, genErr.Error())
	}
	tr.MarkDone(trace.StageLLM, "")
	s.saveTrace(tr)

	// 6. persistence (the story is stored even when the rubric rejects
	// it, for auditability — just never marked reusable)
	tr.MarkRunning(trace.StagePersistence, "saving the story")
	s.saveTrace(tr)
	story := buildStory(learner.ID, topic.Slug, payload, subLevel, tone, req.FunMode, "", s.invoker.ModelName())
	story.Approved = review.Approved
	story.Reusable = review.Approved && !custom
	if !review.Approved {
		reason := review.Reason
		story.RejectionReason = &reason
	}

	persisted, err := s.store.CreateStory(story)
	if err != nil {
		return nil, s.failStage(tr, trace.StagePersistence, models.CodeGenerationFailed, "could not save story")
	}
	if !review.Approved {
		return nil, s.failStage(tr, trace.StagePersistence, models.CodeQARejected, review.Reason)
	}

	questions, err := s.store.InsertQuestionBatch(ctx, persisted.ID, toStoryQuestions(persisted.ID, payload.Questions))
	if err != nil {
		return nil, s.failStage(tr, trace.StagePersistence, models.CodeGenerationFailed, "could not save questions")
	}
	persisted.QuestionCount = len(questions)
	tr.MarkDone(trace.StagePersistence, "")
	s.saveTrace(tr)

	// 7. session
	tr.MarkRunning(trace.StageSession, "getting everything ready")
	s.saveTrace(tr)
	session, err := s.store.CreateSession(&models.ReadingSession{
		LearnerID:              learner.ID,
		StoryID:                persisted.ID,
		TopicSlug:              persisted.TopicSlug,
		Level:                  persisted.Level,
		ExpectedReadingSeconds: persisted.Metadata.ExpectedReadingSeconds,
	})
	if err != nil {
		return nil, s.failStage(tr, trace.StageSession, models.CodeGenerationFailed, "could not create session")
	}
	tr.FinalizeOk("ready")
	s.saveTrace(tr)

	return &models.GenerateStoryResponse{
		Story:     persisted,
		Questions: questions,
		SessionID: session.ID,
		TraceID:   tr.ID,
		FromCache: false,
	}, nil
}

func (s *Service) finishFromCache(tr *trace.Trace, learner *models.Learner, cached *models.Story) (*models.GenerateStoryResponse, error) {
	tr.MarkDone(trace.StageCache, "hit")
	tr.SkipRemaining(trace.ContentStages, "served from cache")
	s.saveTrace(tr)

	tr.MarkRunning(trace.StageSession, "getting everything ready")
	s.saveTrace(tr)
	session, err := s.store.CreateSession(&models.ReadingSession{
		LearnerID:              learner.ID,
		StoryID:                cached.ID,
		TopicSlug:              cached.TopicSlug,
		Level:                  cached.Level,
		ExpectedReadingSeconds: cached.Metadata.ExpectedReadingSeconds,
	})
	if err != nil {
		return nil, s.failStage(tr, trace.StageSession, models.CodeGenerationFailed, "could not create session")
	}

	questions, err := s.store.GetQuestions(cached.ID)
	if err != nil {
		log.Printf("WARN: [stories] questions lookup for cached story %d failed: %v", cached.ID, err)
	}

	tr.FinalizeOk("ready")
	s.saveTrace(tr)

	return &models.GenerateStoryResponse{
		Story:     cached,
		Questions: questions,
		SessionID: session.ID,
		TraceID:   tr.ID,
		FromCache: true,
	}, nil
}

// generateReviewed runs invoke → decode → rubric, retrying the whole
// round on rubric rejection. The last rejected candidate is returned so
// the caller can persist it for audit.
func (s *Service) generateReviewed(ctx context.Context, system, user string, subLevel float64, recentTitles []string) (*generator.GeneratedPayload, generator.Review, error) {
	attempts := s.qaRetries + 1
	var payload *generator.GeneratedPayload
	var review generator.Review
	lastErr := "no attempt succeeded"

	for attempt := 1; attempt <= attempts; attempt++ {
		raw, usage, err := s.invoker.Invoke(ctx, system, user, generator.InvokeOptions{
			MaxRetries:  1,
			Temperature: 0.8,
			MaxTokens:   4096,
		})
		if err != nil {
			if pe, ok := err.(*models.PipelineError); ok && pe.Code == models.CodeNoAPIKey {
				return nil, generator.Review{}, err
			}
			lastErr = err.Error()
			continue
		}

		p, shape, decodeErr := generator.DecodePayload(raw)
		if decodeErr != nil {
			lastErr = decodeErr.Error()
			log.Printf("WARN: [stories] attempt %d/%d undecodable payload: %v", attempt, attempts, decodeErr)
			continue
		}
		log.Printf("[stories] attempt %d/%d shape=%s tokens=%d", attempt, attempts, shape, usage.TotalTokens)

		switch shape {
		case generator.ShapeCombined:
			review = s.rubric.ReviewCombined(p, subLevel, recentTitles)
		case generator.ShapeStory:
			review = s.rubric.ReviewStory(p, subLevel, recentTitles)
		default:
			lastErr = "model returned questions without a story"
			continue
		}

		payload = p
		if review.Approved {
			return payload, review, nil
		}
		lastErr = review.Reason
		log.Printf("WARN: [stories] attempt %d/%d rejected by rubric: %s", attempt, attempts, review.Reason)
	}

	if payload != nil {
		// Rejected on every round; hand back the last candidate.
		return payload, review, nil
	}
	return nil, generator.Review{}, models.NewPipelineError(models.CodeGenerationFailed, string(trace.StageLLM), lastErr)
}

// ── Rewrite ─────────────────────────────────────────────

// Rewrite produces a new one-off story one level up or down from an
// existing one. The new row is never cache-eligible.
func (s *Service) Rewrite(ctx context.Context, userID, learnerID, storyID int64, direction string) (*models.GenerateStoryResponse, error) {
	if direction != "simplify" && direction != "elevate" {
		return nil, fmt.Errorf("direction must be \"simplify\" or \"elevate\"")
	}

	learner, err := s.store.GetLearner(learnerID, userID)
	if err != nil || learner == nil {
		return nil, fmt.Errorf("learner not found")
	}
	original, err := s.store.GetStory(storyID, learnerID)
	if err != nil || original == nil {
		return nil, fmt.Errorf("story not found")
	}

	system, user, targetLevel := generator.BuildRewritePrompts(original, direction)
	recentTitles, titlesErr := s.store.RecentTitles(learnerID, original.TopicSlug, 5)
	if titlesErr != nil {
		log.Printf("WARN: [stories] recent titles lookup failed: %v", titlesErr)
	}

	payload, review, genErr := s.generateReviewed(ctx, system, user, targetLevel, recentTitles)
	if genErr != nil {
		return nil, genErr
	}

	tone := original.Metadata.Flags.Tone
	story := buildStory(learnerID, original.TopicSlug, payload, targetLevel, tone,
		original.Metadata.Flags.FunMode, direction, s.invoker.ModelName())
	story.Approved = review.Approved
	story.Reusable = false // rewrites are one-off
	if !review.Approved {
		reason := review.Reason
		story.RejectionReason = &reason
	}

	persisted, err := s.store.CreateStory(story)
	if err != nil {
		return nil, fmt.Errorf("save rewrite: %w", err)
	}
	if !review.Approved {
		return nil, models.NewPipelineError(models.CodeQARejected, string(trace.StagePersistence), review.Reason)
	}

	questions, err := s.store.InsertQuestionBatch(ctx, persisted.ID, toStoryQuestions(persisted.ID, payload.Questions))
	if err != nil {
		return nil, fmt.Errorf("save rewrite questions: %w", err)
	}
	persisted.QuestionCount = len(questions)

	session, err := s.store.CreateSession(&models.ReadingSession{
		LearnerID:              learnerID,
		StoryID:                persisted.ID,
		TopicSlug:              persisted.TopicSlug,
		Level:                  persisted.Level,
		ExpectedReadingSeconds: persisted.Metadata.ExpectedReadingSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("create rewrite session: %w", err)
	}

	return &models.GenerateStoryResponse{
		Story:     persisted,
		Questions: questions,
		SessionID: session.ID,
		FromCache: false,
	}, nil
}

// ── Deferred question generation ────────────────────────

// GenerateQuestions produces the 4-question batch for a story that was
// served without one. Idempotent: an existing batch is returned as-is,
// and a concurrent race is settled inside InsertQuestionBatch.
func (s *Service) GenerateQuestions(ctx context.Context, userID, learnerID, storyID int64) ([]models.StoryQuestion, error) {
	learner, err := s.store.GetLearner(learnerID, userID)
	if err != nil || learner == nil {
		return nil, fmt.Errorf("learner not found")
	}
	story, err := s.store.GetStory(storyID, learnerID)
	if err != nil || story == nil {
		return nil, fmt.Errorf("story not found")
	}

	existing, err := s.store.GetQuestions(storyID)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	system, user := generator.BuildQuestionsPrompts(story)
	attempts := s.qaRetries + 1
	var batch []generator.GeneratedQuestion
	lastErr := "no attempt succeeded"
	lastWasRejection := false

	for attempt := 1; attempt <= attempts; attempt++ {
		raw, _, err := s.invoker.Invoke(ctx, system, user, generator.InvokeOptions{
			MaxRetries:  1,
			Temperature: 0.5,
			MaxTokens:   2048,
		})
		if err != nil {
			if pe, ok := err.(*models.PipelineError); ok && pe.Code == models.CodeNoAPIKey {
				return nil, err
			}
			lastErr = err.Error()
			lastWasRejection = false
			continue
		}

		p, _, decodeErr := generator.DecodePayload(raw)
		if decodeErr != nil {
			lastErr = decodeErr.Error()
			lastWasRejection = false
			continue
		}
		if review := s.rubric.ReviewQuestions(p.Questions); !review.Approved {
			lastErr = review.Reason
			lastWasRejection = true
			log.Printf("WARN: [stories] question batch attempt %d/%d rejected: %s", attempt, attempts, review.Reason)
			continue
		}
		batch = p.Questions
		break
	}
	if batch == nil {
		// QA_REJECTED means a candidate was reviewed and turned away;
		// a batch that never materialized is a generation failure.
		code := models.CodeGenerationFailed
		if lastWasRejection {
			code = models.CodeQARejected
		}
		return nil, models.NewPipelineError(code, "", lastErr)
	}

	return s.store.InsertQuestionBatch(ctx, storyID, toStoryQuestions(storyID, batch))
}

// ── Reads ───────────────────────────────────────────────

// GetTrace returns a trace after verifying the learner belongs to the
// caller. A foreign learner reads as not-found.
func (s *Service) GetTrace(userID int64, traceID string, learnerID int64) (*trace.Trace, error) {
	learner, err := s.store.GetLearner(learnerID, userID)
	if err != nil {
		return nil, err
	}
	if learner == nil {
		return nil, nil
	}
	return s.traces.Get(traceID, learnerID)
}

func (s *Service) GetStory(userID, storyID, learnerID int64) (*models.Story, []models.StoryQuestion, error) {
	learner, err := s.store.GetLearner(learnerID, userID)
	if err != nil || learner == nil {
		return nil, nil, err
	}
	story, err := s.store.GetStory(storyID, learnerID)
	if err != nil || story == nil {
		return nil, nil, err
	}
	questions, err := s.store.GetQuestions(storyID)
	if err != nil {
		return nil, nil, err
	}
	return story, questions, nil
}

func (s *Service) ListStories(userID, learnerID int64, limit, offset int) ([]models.Story, error) {
	learner, err := s.store.GetLearner(learnerID, userID)
	if err != nil {
		return nil, err
	}
	if learner == nil {
		return nil, fmt.Errorf("learner not found")
	}
	return s.store.ListStories(learnerID, limit, offset)
}

// ── Helpers ─────────────────────────────────────────────

func (s *Service) routeTopic(learner *models.Learner, req models.GenerateStoryRequest) (topics.Topic, bool) {
	if custom := strings.TrimSpace(req.CustomTopic); custom != "" {
		return topics.Topic{Slug: customTopicSlug, Name: custom}, true
	}

	if req.TopicSlug != "" {
		if t := topics.Resolve(req.TopicSlug); t != nil {
			return *t, false
		}
		log.Printf("WARN: [stories] unknown topic slug %q, falling back to router", req.TopicSlug)
	}

	recentSlugs, err := s.store.RecentTopicSlugs(learner.ID, 10)
	if err != nil {
		log.Printf("WARN: [stories] recent topics lookup failed: %v", err)
	}
	suggestions := s.router.Route(topics.RouteInput{
		LearnerID:        learner.ID,
		AgeYears:         learner.AgeYears,
		Interests:        learner.Interests,
		CurrentSkillSlug: learner.CurrentSkillSlug,
		RecentTopicSlugs: recentSlugs,
	})
	for _, sug := range suggestions {
		if t := topics.FindTopic(sug.Slug); t != nil {
			return *t, false
		}
	}
	// Router yielded nothing usable; a random age-banded topic beats failing.
	return topics.RandomForAge(learner.AgeYears), false
}

func (s *Service) failStage(tr *trace.Trace, stage trace.StageID, code models.ErrorCode, message string) error {
	tr.MarkError(stage, message)
	s.saveTrace(tr)
	return models.NewPipelineError(code, string(stage), message)
}

func (s *Service) saveTrace(tr *trace.Trace) {
	if err := s.traces.Save(tr); err != nil {
		log.Printf("WARN: [stories] trace save failed for %s: %v", tr.ID, err)
	}
}

func buildStory(learnerID int64, topicSlug string, p *generator.GeneratedPayload, subLevel float64, tone models.Tone, funMode bool, rewrite, model string) *models.Story {
	wordCount := generator.CountWords(p.Body)
	return &models.Story{
		LearnerID: learnerID,
		TopicSlug: topicSlug,
		Title:     p.Title,
		Body:      p.Body,
		Level:     subLevel,
		Model:     model,
		Metadata: models.StoryMetadata{
			WordCount:              wordCount,
			AvgSentenceLength:      generator.AvgSentenceLength(p.Body),
			NewVocabulary:          p.NewVocabulary,
			ExpectedReadingSeconds: generator.ExpectedReadingSeconds(wordCount, subLevel),
			Flags: models.StoryFlags{
				Tone:    tone,
				FunMode: funMode,
				Rewrite: rewrite,
			},
		},
	}
}

func toStoryQuestions(storyID int64, qs []generator.GeneratedQuestion) []models.StoryQuestion {
	out := make([]models.StoryQuestion, 0, len(qs))
	for i, q := range qs {
		out = append(out, models.StoryQuestion{
			StoryID:      storyID,
			Type:         models.QuestionType(strings.ToLower(q.Type)),
			Prompt:       q.Prompt,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
			Difficulty:   q.AuthoredDifficulty(),
			Position:     i,
		})
	}
	return out
}

func capInterests(interests []string, n int) []string {
	if len(interests) <= n {
		return interests
	}
	return interests[:n]
}

func clampCoarse(x float64) float64 {
	if x < 1 {
		return 1
	}
	if x > 10 {
		return 10
	}
	return x
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
