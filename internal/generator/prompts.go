package generator

import (
	"fmt"
	"math"
	"strings"

	"github.com/lectoria/backend/internal/models"
)

// LevelSpec is one discrete prompt-template level. The word band also
// anchors the rubric's length check.
type LevelSpec struct {
	WordMin     int
	WordMax     int
	SentenceMin int
	SentenceMax int
	Lexical     string
	IdeaDensity string
}

// levelSpecs defines the four template levels. Index 0 is level 1.
var levelSpecs = [4]LevelSpec{
	{
		WordMin: 40, WordMax: 80, SentenceMin: 4, SentenceMax: 8,
		Lexical:     "Use only very common, everyday words a beginning reader knows.",
		IdeaDensity: "Present exactly one simple idea, repeated in different ways.",
	},
	{
		WordMin: 80, WordMax: 140, SentenceMin: 6, SentenceMax: 10,
		Lexical:     "Use mostly familiar words, introducing at most two new words with context clues.",
		IdeaDensity: "Present one main idea with one supporting detail.",
	},
	{
		WordMin: 140, WordMax: 220, SentenceMin: 8, SentenceMax: 13,
		Lexical:     "Mix familiar vocabulary with three or four richer words explained by context.",
		IdeaDensity: "Develop a main idea with two or three supporting details and a small twist.",
	},
	{
		WordMin: 220, WordMax: 320, SentenceMin: 10, SentenceMax: 16,
		Lexical:     "Use varied, expressive vocabulary including some challenging words the reader can infer.",
		IdeaDensity: "Weave several connected ideas with cause and effect across the story.",
	},
}

// ClampSubLevel clamps a continuous sub-level onto the template scale.
// Idempotent: clamping a clamped value returns it unchanged.
func ClampSubLevel(x float64) float64 {
	if x < 1 {
		return 1
	}
	if x > 4 {
		return 4
	}
	return x
}

// TemplateLevel selects the nearest discrete template level for a
// continuous sub-level.
func TemplateLevel(subLevel float64) int {
	return int(math.Round(ClampSubLevel(subLevel)))
}

// SpecForLevel returns the template spec for a continuous sub-level.
func SpecForLevel(subLevel float64) LevelSpec {
	return levelSpecs[TemplateLevel(subLevel)-1]
}

const storySystemPrompt = `You are a warm, skilled children's author writing short reading passages for one specific child. You write age-appropriate, safe, encouraging stories with a clear narrative arc. Never include violence, fear, romance, or anything unsuitable for young children.

Every response must be a single JSON object and nothing else — no prose, no code fences. The object has these fields:
{
  "title": "...",
  "body": "...",
  "new_vocabulary": ["...", "..."],
  "questions": [
    {"type": "literal", "prompt": "...", "options": ["...","...","...","..."], "correct_index": 0, "explanation": "...", "difficulty": 3},
    {"type": "inference", ...},
    {"type": "vocabulary", ...},
    {"type": "summary", ...}
  ]
}

Include exactly four questions, one of each type: literal, inference, vocabulary, summary. Each question has exactly four options, a correct_index between 0 and 3, a short child-friendly explanation, and an integer difficulty from 1 to 5.`

const questionsSystemPrompt = `You are a reading teacher writing comprehension questions about a story a child has just read. Respond with a single JSON object and nothing else:
{
  "questions": [
    {"type": "literal", "prompt": "...", "options": ["...","...","...","..."], "correct_index": 0, "explanation": "...", "difficulty": 3},
    {"type": "inference", ...},
    {"type": "vocabulary", ...},
    {"type": "summary", ...}
  ]
}
Include exactly four questions, one of each type, each with exactly four options and a correct_index between 0 and 3.`

var toneInstructions = map[models.Tone]string{
	models.ToneEducational: "Keep the style clear and informative, like a friendly teacher telling a true-to-life story.",
	models.ToneBalanced:    "Balance learning and fun: a light story that naturally carries the concept.",
	models.TonePlayful:     "Make it playful and funny, with lively characters and a cheerful voice.",
	models.ToneImaginative: "Make it wildly imaginative and adventurous while keeping the concept recognizable.",
}

// BuildStoryPrompts turns a pedagogical profile into the system/user
// prompt pair for a full story+questions generation.
func BuildStoryPrompts(p models.PedagogicalProfile) (string, string) {
	spec := SpecForLevel(p.TargetLevel)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a story for a %d-year-old reader about %q.\n", p.AgeYears, p.TopicName)
	if p.TopicDescription != "" {
		fmt.Fprintf(&sb, "Topic background: %s\n", p.TopicDescription)
	}
	if p.CoreConcept != "" {
		fmt.Fprintf(&sb, "The story should naturally teach this concept: %s\n", p.CoreConcept)
	}
	sb.WriteString("\nConstraints:\n")
	fmt.Fprintf(&sb, "- Length: between %d and %d words.\n", spec.WordMin, spec.WordMax)
	fmt.Fprintf(&sb, "- Sentences: mostly %d to %d words each.\n", spec.SentenceMin, spec.SentenceMax)
	fmt.Fprintf(&sb, "- Vocabulary: %s\n", spec.Lexical)
	fmt.Fprintf(&sb, "- Ideas: %s\n", spec.IdeaDensity)
	fmt.Fprintf(&sb, "- Style: %s\n", toneInstructions[p.Tone])
	if p.FunMode {
		sb.WriteString("- Extra fun: include one gentle, silly surprise the reader won't expect.\n")
	}

	if len(p.Interests) > 0 {
		fmt.Fprintf(&sb, "\nThe reader loves: %s. Weave one of these in if it fits naturally.\n",
			strings.Join(p.Interests, ", "))
	}
	if len(p.FavoriteCharacters) > 0 {
		fmt.Fprintf(&sb, "Favorite characters to consider featuring: %s.\n",
			strings.Join(p.FavoriteCharacters, ", "))
	}
	if p.Personalization != "" {
		fmt.Fprintf(&sb, "About this reader: %s\n", capLength(p.Personalization, 400))
	}
	if len(p.RecentTitles) > 0 {
		fmt.Fprintf(&sb, "\nDo NOT reuse or closely echo any of these recent titles: %s.\n",
			strings.Join(p.RecentTitles, "; "))
	}

	return storySystemPrompt, sb.String()
}

// BuildRewritePrompts produces prompts that simplify or elevate an
// existing story by one level while preserving characters and plot.
// Returns the prompts and the target sub-level.
func BuildRewritePrompts(story *models.Story, direction string) (string, string, float64) {
	delta := 1.0
	verb := "more advanced"
	if direction == "simplify" {
		delta = -1.0
		verb = "simpler"
	}
	target := ClampSubLevel(story.Level + delta)
	spec := SpecForLevel(target)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Rewrite the following story to be one reading level %s. Keep the same characters, setting, and plot — change only the language.\n\n", verb)
	fmt.Fprintf(&sb, "TITLE: %s\n\nSTORY:\n%s\n\n", story.Title, story.Body)
	sb.WriteString("Constraints for the rewrite:\n")
	fmt.Fprintf(&sb, "- Length: between %d and %d words.\n", spec.WordMin, spec.WordMax)
	fmt.Fprintf(&sb, "- Sentences: mostly %d to %d words each.\n", spec.SentenceMin, spec.SentenceMax)
	fmt.Fprintf(&sb, "- Vocabulary: %s\n", spec.Lexical)
	fmt.Fprintf(&sb, "- Ideas: %s\n", spec.IdeaDensity)
	sb.WriteString("\nGive the rewrite a fresh title. Include the four comprehension questions as usual.\n")

	return storySystemPrompt, sb.String(), target
}

// BuildQuestionsPrompts produces prompts for the deferred question
// batch against an already-persisted story.
func BuildQuestionsPrompts(story *models.Story) (string, string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write four comprehension questions for this story, aimed at reading level %d of 4.\n\n", TemplateLevel(story.Level))
	fmt.Fprintf(&sb, "TITLE: %s\n\nSTORY:\n%s\n", story.Title, story.Body)
	return questionsSystemPrompt, sb.String()
}

func capLength(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
