package rating

import (
	"math"
	"testing"

	"github.com/lectoria/backend/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestClampLevelIdempotent(t *testing.T) {
	for _, x := range []float64{-3, 0.5, 1, 4.5, 10, 12} {
		once := ClampLevel(x)
		if once < 1 || once > 10 {
			t.Fatalf("ClampLevel(%v) = %v, out of range", x, once)
		}
		if twice := ClampLevel(once); twice != once {
			t.Fatalf("ClampLevel not idempotent for %v: %v then %v", x, once, twice)
		}
	}
}

func TestRhythmNorm(t *testing.T) {
	tests := []struct {
		name       string
		actualMs   int64
		expectedMs int64
		want       float64
	}{
		{"perfect pace", 60000, 60000, 1.0},
		{"twice as slow", 120000, 60000, 0.5},
		{"twice as fast", 30000, 60000, 0.75},
		{"far off the expected time", 240000, 60000, 0.0},
		{"missing timing is neutral", 0, 60000, 0.5},
		{"missing expectation is neutral", 60000, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RhythmNorm(tt.actualMs, tt.expectedMs)
			if !almostEqual(got, tt.want) {
				t.Errorf("RhythmNorm(%d, %d) = %v, want %v", tt.actualMs, tt.expectedMs, got, tt.want)
			}
		})
	}
}

func TestStability(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		want    float64
	}{
		{"no history is neutral", nil, 0.5},
		{"two sessions are not enough", []float64{1, 0}, 0.5},
		{"steady learner", []float64{0.75, 0.75, 0.75}, 1.0},
		{"wildly swinging learner", []float64{1, 0, 1, 0}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stability(tt.history)
			if !almostEqual(got, tt.want) {
				t.Errorf("Stability(%v) = %v, want %v", tt.history, got, tt.want)
			}
		})
	}
}

func TestSessionScoreWeights(t *testing.T) {
	got := SessionScore(0.75, 0.9, 0.5)
	if !almostEqual(got, 0.7625) {
		t.Errorf("SessionScore = %v, want 0.7625", got)
	}
}

func TestDirectionFor(t *testing.T) {
	tests := []struct {
		comprehension float64
		want          models.AdjustDirection
	}{
		{1.0, models.DirectionUp},
		{0.80, models.DirectionUp},
		{0.79, models.DirectionHold},
		{0.60, models.DirectionHold},
		{0.59, models.DirectionDown},
		{0.0, models.DirectionDown},
	}
	for _, tt := range tests {
		if got := DirectionFor(tt.comprehension); got != tt.want {
			t.Errorf("DirectionFor(%v) = %v, want %v", tt.comprehension, got, tt.want)
		}
	}
}

func TestNextLevel(t *testing.T) {
	tests := []struct {
		name      string
		current   float64
		direction models.AdjustDirection
		want      float64
	}{
		{"up moves half a level", 4, models.DirectionUp, 4.5},
		{"down moves half a level", 4, models.DirectionDown, 3.5},
		{"hold stays put", 4, models.DirectionHold, 4},
		{"up clamps at the top", 10, models.DirectionUp, 10},
		{"down clamps at the bottom", 1, models.DirectionDown, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextLevel(tt.current, tt.direction); got != tt.want {
				t.Errorf("NextLevel(%v, %v) = %v, want %v", tt.current, tt.direction, got, tt.want)
			}
		})
	}
}

func TestStars(t *testing.T) {
	tests := []struct {
		ratio float64
		want  int
	}{
		{1.0, 3},
		{0.75, 2},
		{0.5, 1},
		{0.25, 1},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Stars(tt.ratio); got != tt.want {
			t.Errorf("Stars(%v) = %d, want %d", tt.ratio, got, tt.want)
		}
	}
}
