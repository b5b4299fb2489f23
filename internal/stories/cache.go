package stories

import (
	"log"
	"math"
	"sort"
	"time"

	"github.com/lectoria/backend/internal/models"
)

const (
	// cacheLevelWindow is the symmetric level distance a cached story
	// may sit from the target and still be served.
	cacheLevelWindow = 0.18

	// cacheTTL is how long a story stays cache-eligible.
	cacheTTL = 7 * 24 * time.Hour

	// noQuestionsPenalty ranks question-less hits slightly worse: they
	// still need the background question batch before a session can
	// finish.
	noQuestionsPenalty = 0.15
)

type candidateSource interface {
	CacheCandidates(learnerID int64, topicSlug string, levelMin, levelMax float64, since time.Time) ([]models.Story, error)
}

// CacheResolver finds at most one reusable story for a request.
type CacheResolver struct {
	store candidateSource
}

func NewCacheResolver(store candidateSource) *CacheResolver {
	return &CacheResolver{store: store}
}

// Resolve returns the best cached story or nil. Skipped entirely for
// forced regeneration and ad-hoc free-text topics. Tone matches
// exactly; level distance plus the question penalty break ties.
func (r *CacheResolver) Resolve(learnerID int64, topicSlug string, targetLevel float64, tone models.Tone, skip bool) (*models.Story, error) {
	if skip || topicSlug == "" {
		return nil, nil
	}

	since := time.Now().UTC().Add(-cacheTTL)
	candidates, err := r.store.CacheCandidates(
		learnerID, topicSlug,
		targetLevel-cacheLevelWindow, targetLevel+cacheLevelWindow,
		since,
	)
	if err != nil {
		return nil, err
	}

	matched := candidates[:0]
	for _, c := range candidates {
		if c.Metadata.Flags.Tone == tone {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return cacheRank(&matched[i], targetLevel) < cacheRank(&matched[j], targetLevel)
	})

	best := matched[0]
	log.Printf("[cache] hit for learner=%d topic=%s story=%d level=%.2f (target %.2f)",
		learnerID, topicSlug, best.ID, best.Level, targetLevel)
	return &best, nil
}

func cacheRank(story *models.Story, targetLevel float64) float64 {
	rank := math.Abs(story.Level - targetLevel)
	if story.QuestionCount == 0 {
		rank += noQuestionsPenalty
	}
	return rank
}
