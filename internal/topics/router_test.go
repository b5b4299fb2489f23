package topics

import "testing"

func TestRandomForAgeStaysInBand(t *testing.T) {
	for i := 0; i < 200; i++ {
		topic := RandomForAge(5)
		if 5 < topic.AgeMin || 5 > topic.AgeMax {
			t.Fatalf("RandomForAge(5) returned %s with band [%d,%d]",
				topic.Slug, topic.AgeMin, topic.AgeMax)
		}
	}
}

func TestRandomForAgeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		seen[RandomForAge(7).Slug] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected more than one distinct topic over 200 draws, got %d", len(seen))
	}
}

func TestRandomForAgeUncoveredAge(t *testing.T) {
	// No catalogue band covers age 3; any entry is acceptable.
	topic := RandomForAge(3)
	if FindTopic(topic.Slug) == nil {
		t.Errorf("RandomForAge(3) returned non-catalogue topic %q", topic.Slug)
	}
}
