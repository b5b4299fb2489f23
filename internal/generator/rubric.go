package generator

import (
	"fmt"
	"strings"
)

// RubricConfig holds the tunable parts of the content rubric. The word
// lists and the duplicate-title threshold are content-policy decisions,
// not structural requirements, so they are configuration.
type RubricConfig struct {
	UnsafeTerms             []string
	FlatOpenings            []string
	NarrativeConnectives    []string
	DuplicateTitleThreshold float64
	LengthTolerance         float64
}

func DefaultRubricConfig() RubricConfig {
	return RubricConfig{
		UnsafeTerms: []string{
			"kill", "blood", "gun", "knife", "weapon", "die", "dead", "death",
			"drug", "alcohol", "cigarette", "suicide", "naked", "kiss", "hate",
		},
		FlatOpenings: []string{
			"in this text", "in this story we", "today we will learn",
			"today we are going to", "this story is about", "we will read about",
			"did you know that", "let's learn about",
		},
		NarrativeConnectives: []string{
			"one day", "suddenly", "then", "but", "when", "meanwhile",
			"finally", "afterward", "so",
		},
		DuplicateTitleThreshold: 0.9,
		LengthTolerance:         0.30,
	}
}

// Review is the rubric outcome. Reason carries the FIRST failure found;
// checks run in a fixed order and are never aggregated.
type Review struct {
	Approved bool
	Reason   string
}

func approved() Review              { return Review{Approved: true} }
func rejected(reason string) Review { return Review{Approved: false, Reason: reason} }

// Rubric runs the structural and content checks against candidate
// generations. All passes are pure and synchronous.
type Rubric struct {
	cfg RubricConfig
}

func NewRubric(cfg RubricConfig) *Rubric {
	return &Rubric{cfg: cfg}
}

// ReviewCombined validates a single-call story+questions payload.
func (r *Rubric) ReviewCombined(p *GeneratedPayload, subLevel float64, recentTitles []string) Review {
	if rev := checkStoryShape(p); !rev.Approved {
		return rev
	}
	if rev := checkQuestionsShape(p.Questions, true); !rev.Approved {
		return rev
	}
	return r.contentChecks(p, subLevel, recentTitles, true)
}

// ReviewStory validates a story-only payload (questions deferred).
func (r *Rubric) ReviewStory(p *GeneratedPayload, subLevel float64, recentTitles []string) Review {
	if rev := checkStoryShape(p); !rev.Approved {
		return rev
	}
	return r.contentChecks(p, subLevel, recentTitles, false)
}

// ReviewQuestions validates a questions-only payload from a deferred
// question batch.
func (r *Rubric) ReviewQuestions(qs []GeneratedQuestion) Review {
	if rev := checkQuestionsShape(qs, true); !rev.Approved {
		return rev
	}
	if rev := checkRequiredTypes(qs); !rev.Approved {
		return rev
	}
	return checkOptionSanity(qs)
}

// ── Structural Checks ───────────────────────────────────

func checkStoryShape(p *GeneratedPayload) Review {
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Body) == "" {
		return rejected("structural: missing title or body")
	}
	return approved()
}

func checkQuestionsShape(qs []GeneratedQuestion, exactFour bool) Review {
	if exactFour && len(qs) != 4 {
		return rejected(fmt.Sprintf("structural: expected 4 questions, got %d", len(qs)))
	}
	for i, q := range qs {
		if strings.TrimSpace(q.Prompt) == "" {
			return rejected(fmt.Sprintf("structural: question %d has empty prompt", i+1))
		}
		if len(q.Options) != 4 {
			return rejected(fmt.Sprintf("structural: question %d has %d options, expected 4", i+1, len(q.Options)))
		}
		if q.CorrectIndex < 0 || q.CorrectIndex > 3 {
			return rejected(fmt.Sprintf("structural: question %d correct_index %d out of range", i+1, q.CorrectIndex))
		}
		if q.Difficulty != nil {
			d := *q.Difficulty
			if d != float64(int(d)) || d < 1 || d > 5 {
				return rejected(fmt.Sprintf("structural: question %d difficulty %v outside [1,5]", i+1, d))
			}
		}
	}
	return approved()
}

// ── Content Rubric (fixed order, first failure wins) ────

func (r *Rubric) contentChecks(p *GeneratedPayload, subLevel float64, recentTitles []string, combined bool) Review {
	// 1. Unsafe content
	if term := r.findUnsafeTerm(p.Title + " " + p.Body); term != "" {
		return rejected("unsafe content: " + term)
	}

	// 2. Length band with tolerance on both ends
	spec := SpecForLevel(subLevel)
	words := CountWords(p.Body)
	minWords := int(float64(spec.WordMin) * (1 - r.cfg.LengthTolerance))
	maxWords := int(float64(spec.WordMax) * (1 + r.cfg.LengthTolerance))
	if words < minWords {
		return rejected(fmt.Sprintf("story too short: %d words, need at least %d", words, minWords))
	}
	if words > maxWords {
		return rejected(fmt.Sprintf("story too long: %d words, limit %d", words, maxWords))
	}

	// 3. Required question types (combined form only)
	if combined {
		if rev := checkRequiredTypes(p.Questions); !rev.Approved {
			return rev
		}
	}

	// 4. Option sanity
	if rev := checkOptionSanity(p.Questions); !rev.Approved {
		return rev
	}

	// 5. Title quality
	if len(strings.TrimSpace(p.Title)) < 3 {
		return rejected("title too short")
	}

	// 6. Duplicate-title guard
	candidate := normalizeText(p.Title)
	for _, recent := range recentTitles {
		if candidate == normalizeText(recent) {
			return rejected("title duplicates a recent story: " + recent)
		}
		if diceCoefficient(p.Title, recent) >= r.cfg.DuplicateTitleThreshold {
			return rejected("title too similar to a recent story: " + recent)
		}
	}

	// 7. Flat-opening guard on the first ~80 characters
	opening := normalizeText(p.Body)
	if len(opening) > 80 {
		opening = opening[:80]
	}
	for _, flat := range r.cfg.FlatOpenings {
		if strings.HasPrefix(opening, normalizeText(flat)) {
			return rejected("generic textbook opening")
		}
	}

	// 8. Narrative-progression guard
	body := normalizeText(p.Body)
	hasConnective := false
	for _, c := range r.cfg.NarrativeConnectives {
		if containsWord(body, normalizeText(c)) {
			hasConnective = true
			break
		}
	}
	if !hasConnective {
		return rejected("no narrative progression")
	}

	return approved()
}

func (r *Rubric) findUnsafeTerm(text string) string {
	normalized := normalizeText(text)
	for _, term := range r.cfg.UnsafeTerms {
		if strings.Contains(normalized, normalizeText(term)) {
			return term
		}
	}
	return ""
}

func checkRequiredTypes(qs []GeneratedQuestion) Review {
	seen := make(map[string]bool)
	for _, q := range qs {
		seen[strings.ToLower(q.Type)] = true
	}
	for _, required := range []string{"literal", "inference", "vocabulary", "summary"} {
		if !seen[required] {
			return rejected("missing required question type: " + required)
		}
	}
	return approved()
}

func checkOptionSanity(qs []GeneratedQuestion) Review {
	for i, q := range qs {
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return rejected(fmt.Sprintf("question %d correct_index out of range", i+1))
		}
		if strings.TrimSpace(q.Options[q.CorrectIndex]) == "" {
			return rejected(fmt.Sprintf("question %d has an empty correct option", i+1))
		}
		seen := make(map[string]bool)
		for _, opt := range q.Options {
			key := normalizeText(opt)
			if seen[key] {
				return rejected(fmt.Sprintf("question %d has duplicate options", i+1))
			}
			seen[key] = true
		}
	}
	return approved()
}

// containsWord checks for a whole-word (or whole-phrase) match inside
// normalized text, so "but" doesn't match inside "butter".
func containsWord(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || text[start-1] == ' '
		afterOK := end == len(text) || text[end] == ' ' ||
			text[end] == ',' || text[end] == '.'
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}
