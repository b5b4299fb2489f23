package topics

import "math/rand"

// Topic is one entry in the static catalogue. Description and
// CoreConcept feed the prompt builder; AgeMin/AgeMax band suggestions.
type Topic struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
	CoreConcept string `json:"core_concept"`
	AgeMin      int    `json:"age_min"`
	AgeMax      int    `json:"age_max"`
}

// RouteInput is the learner history handed to a Router.
type RouteInput struct {
	LearnerID        int64
	AgeYears         int
	Interests        []string
	SkillProgressMap map[string]float64
	CurrentSkillSlug string
	RecentTopicSlugs []string
}

// Suggestion is one ranked routing result. The orchestrator treats the
// first suggestion as authoritative when the caller named no topic.
type Suggestion struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Emoji     string `json:"emoji"`
	Domain    string `json:"domain"`
	ReasonTag string `json:"reason_tag"`
}

// Router picks the next topics for a learner. Implementations may be
// arbitrarily smart; CatalogRouter is the built-in fallback.
type Router interface {
	Route(in RouteInput) []Suggestion
}

// catalogue is the built-in topic set, ordered roughly easy-to-rich
// within each domain.
var catalogue = []Topic{
	{Slug: "animals-pets", Name: "Pets and Their Habits", Emoji: "🐶", Domain: "animals",
		Description: "Everyday pets: dogs, cats, fish, hamsters.",
		CoreConcept: "Pets have needs and routines, just like people.", AgeMin: 4, AgeMax: 9},
	{Slug: "animals-ocean", Name: "Ocean Animals", Emoji: "🐙", Domain: "animals",
		Description: "Creatures of the sea, from dolphins to octopuses.",
		CoreConcept: "Different animals have bodies suited to where they live.", AgeMin: 5, AgeMax: 11},
	{Slug: "animals-dinosaurs", Name: "Dinosaurs", Emoji: "🦕", Domain: "animals",
		Description: "Dinosaurs and the world they lived in.",
		CoreConcept: "We learn about the distant past from fossils.", AgeMin: 5, AgeMax: 11},
	{Slug: "space-planets", Name: "Planets and the Sun", Emoji: "🪐", Domain: "space",
		Description: "Our solar system: the sun, planets, and moons.",
		CoreConcept: "Planets travel around the sun in paths called orbits.", AgeMin: 6, AgeMax: 12},
	{Slug: "space-astronauts", Name: "Life as an Astronaut", Emoji: "🧑‍🚀", Domain: "space",
		Description: "How astronauts live, eat, and work in space.",
		CoreConcept: "Living without gravity changes everyday tasks.", AgeMin: 6, AgeMax: 12},
	{Slug: "nature-weather", Name: "Weather and Seasons", Emoji: "🌦️", Domain: "nature",
		Description: "Rain, snow, wind, and how seasons change.",
		CoreConcept: "Weather follows patterns we can observe and predict.", AgeMin: 4, AgeMax: 9},
	{Slug: "nature-plants", Name: "How Plants Grow", Emoji: "🌱", Domain: "nature",
		Description: "Seeds, roots, leaves, and what plants need.",
		CoreConcept: "Plants make their own food from sunlight, water, and air.", AgeMin: 5, AgeMax: 10},
	{Slug: "nature-volcanoes", Name: "Volcanoes and Earthquakes", Emoji: "🌋", Domain: "nature",
		Description: "The restless ground beneath our feet.",
		CoreConcept: "The Earth's surface moves and changes over time.", AgeMin: 7, AgeMax: 12},
	{Slug: "people-inventions", Name: "Great Inventions", Emoji: "💡", Domain: "people",
		Description: "Everyday things someone had to invent first.",
		CoreConcept: "Inventions solve problems people noticed.", AgeMin: 6, AgeMax: 12},
	{Slug: "people-helpers", Name: "Community Helpers", Emoji: "🚒", Domain: "people",
		Description: "Firefighters, doctors, teachers, and builders.",
		CoreConcept: "Communities work because people do different jobs.", AgeMin: 4, AgeMax: 8},
	{Slug: "stories-friendship", Name: "Friendship Adventures", Emoji: "🤝", Domain: "stories",
		Description: "Friends solving problems together.",
		CoreConcept: "Friends help each other even when it is hard.", AgeMin: 4, AgeMax: 10},
	{Slug: "stories-mystery", Name: "Little Mysteries", Emoji: "🔍", Domain: "stories",
		Description: "Small puzzles and who-did-it stories.",
		CoreConcept: "Clues let us figure out what we did not see happen.", AgeMin: 6, AgeMax: 12},
}

// Catalogue returns the full built-in topic list.
func Catalogue() []Topic {
	out := make([]Topic, len(catalogue))
	copy(out, catalogue)
	return out
}

// RandomForAge picks a uniformly random catalogue topic whose age band
// covers ageYears. When no band does (or the age is unknown), any
// catalogue entry is fair game.
func RandomForAge(ageYears int) Topic {
	var banded []int
	for i, t := range catalogue {
		if ageYears >= t.AgeMin && ageYears <= t.AgeMax {
			banded = append(banded, i)
		}
	}
	if len(banded) == 0 {
		return catalogue[rand.Intn(len(catalogue))]
	}
	return catalogue[banded[rand.Intn(len(banded))]]
}

// FindTopic returns the catalogue entry for a slug, or nil.
func FindTopic(slug string) *Topic {
	for i := range catalogue {
		if catalogue[i].Slug == slug {
			return &catalogue[i]
		}
	}
	return nil
}

// CatalogRouter is the static fallback Router: age-banded catalogue
// entries, interest matches first, recently-served topics last.
type CatalogRouter struct{}

func NewCatalogRouter() *CatalogRouter {
	return &CatalogRouter{}
}

func (cr *CatalogRouter) Route(in RouteInput) []Suggestion {
	recent := make(map[string]bool, len(in.RecentTopicSlugs))
	for _, slug := range in.RecentTopicSlugs {
		recent[slug] = true
	}

	var preferred, fresh, repeats []Suggestion
	for _, t := range catalogue {
		if in.AgeYears != 0 && (in.AgeYears < t.AgeMin || in.AgeYears > t.AgeMax) {
			continue
		}
		s := Suggestion{Slug: t.Slug, Name: t.Name, Emoji: t.Emoji, Domain: t.Domain}
		switch {
		case recent[t.Slug]:
			s.ReasonTag = "recently_read"
			repeats = append(repeats, s)
		case matchesInterest(t, in.Interests):
			s.ReasonTag = "interest_match"
			preferred = append(preferred, s)
		default:
			s.ReasonTag = "age_appropriate"
			fresh = append(fresh, s)
		}
	}

	out := append(preferred, fresh...)
	return append(out, repeats...)
}

func matchesInterest(t Topic, interests []string) bool {
	for _, interest := range interests {
		tokens := tokenize(interest)
		for tok := range tokens {
			if tokenize(t.Name + " " + t.Domain + " " + t.Slug)[tok] {
				return true
			}
		}
	}
	return false
}
