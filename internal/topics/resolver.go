package topics

import (
	"log"
	"strings"
)

// legacyAliases maps retired slugs onto their canonical replacements.
// Grown whenever a catalogue slug is renamed; never shrunk, so stories
// persisted under old slugs keep resolving.
var legacyAliases = map[string]string{
	"animals":        "animals-pets",
	"pets":           "animals-pets",
	"sea-animals":    "animals-ocean",
	"dinos":          "animals-dinosaurs",
	"space":          "space-planets",
	"solar-system":   "space-planets",
	"weather":        "nature-weather",
	"plants":         "nature-plants",
	"inventions":     "people-inventions",
	"friendship":     "stories-friendship",
	"mystery":        "stories-mystery",
	"detective-kids": "stories-mystery",
}

// Resolve maps a possibly-stale slug to a canonical catalogue topic.
// Three tiers: exact match, legacy alias table, token-overlap best
// match. Remaps are logged so stale clients surface in the logs.
// Returns nil when nothing plausible matches.
func Resolve(slug string) *Topic {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil
	}

	if t := FindTopic(slug); t != nil {
		return t
	}

	if canonical, ok := legacyAliases[slug]; ok {
		log.Printf("[topics] legacy slug %q remapped to %q", slug, canonical)
		return FindTopic(canonical)
	}

	if t := bestTokenMatch(slug); t != nil {
		log.Printf("[topics] slug %q fuzzy-matched to %q", slug, t.Slug)
		return t
	}
	return nil
}

// bestTokenMatch scores catalogue entries by shared tokens between the
// unknown slug and the entry's slug+name, requiring at least one hit.
func bestTokenMatch(slug string) *Topic {
	want := tokenize(strings.ReplaceAll(slug, "-", " "))
	if len(want) == 0 {
		return nil
	}

	var best *Topic
	bestScore := 0
	for i := range catalogue {
		t := &catalogue[i]
		have := tokenize(strings.ReplaceAll(t.Slug, "-", " ") + " " + t.Name)
		score := 0
		for tok := range want {
			if have[tok] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best
}

// tokenize lowercases and splits into tokens of length >= 3, so filler
// words like "of" and "the" never drive a match.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()-")
		if len(w) >= 3 {
			tokens[w] = true
		}
	}
	return tokens
}
