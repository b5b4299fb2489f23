package rating

import (
	"fmt"
	"math"

	"github.com/lectoria/backend/internal/models"
)

// Weights of the composite session score. The direction decision is
// driven by comprehension alone; the composite is recorded as evidence.
const (
	comprehensionWeight = 0.65
	rhythmWeight        = 0.25
	stabilityWeight     = 0.10

	levelStep = 0.5

	upThreshold   = 0.80
	downThreshold = 0.60
)

// ClampLevel clamps a coarse reading level onto [1,10]. Idempotent.
func ClampLevel(x float64) float64 {
	if x < 1 {
		return 1
	}
	if x > 10 {
		return 10
	}
	return x
}

// RhythmNorm scores reading pace against the expected time: 1.0 at a
// perfect match, falling off linearly on both sides. Without usable
// timings it returns a neutral 0.5.
func RhythmNorm(actualMs, expectedMs int64) float64 {
	if actualMs <= 0 || expectedMs <= 0 {
		return 0.5
	}
	r := float64(actualMs) / float64(expectedMs)
	return math.Max(0, 1-math.Abs(1-r)*0.5)
}

// Stability measures how consistent recent comprehension has been.
// Fewer than 3 prior sessions yields the neutral default 0.5.
func Stability(history []float64) float64 {
	if len(history) < 3 {
		return 0.5
	}

	mean := 0.0
	for _, v := range history {
		mean += v
	}
	mean /= float64(len(history))

	variance := 0.0
	for _, v := range history {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(history))

	return math.Max(0, 1-variance*4)
}

// SessionScore is the weighted composite recorded as adjustment evidence.
func SessionScore(comprehension, rhythmNorm, stability float64) float64 {
	return comprehensionWeight*comprehension + rhythmWeight*rhythmNorm + stabilityWeight*stability
}

// DirectionFor decides the level move from comprehension alone.
func DirectionFor(comprehension float64) models.AdjustDirection {
	switch {
	case comprehension >= upThreshold:
		return models.DirectionUp
	case comprehension < downThreshold:
		return models.DirectionDown
	default:
		return models.DirectionHold
	}
}

// NextLevel applies a direction to the current level, one half-step at
// a time, clamped to the coarse scale.
func NextLevel(current float64, direction models.AdjustDirection) float64 {
	switch direction {
	case models.DirectionUp:
		return ClampLevel(current + levelStep)
	case models.DirectionDown:
		return ClampLevel(current - levelStep)
	default:
		return ClampLevel(current)
	}
}

// ReasonFor renders the human-readable audit line for an adjustment.
func ReasonFor(direction models.AdjustDirection, comprehension float64) string {
	pct := int(math.Round(comprehension * 100))
	switch direction {
	case models.DirectionUp:
		return fmt.Sprintf("Strong comprehension (%d%%), moving up half a level", pct)
	case models.DirectionDown:
		return fmt.Sprintf("Comprehension below target (%d%%), easing down half a level", pct)
	default:
		return fmt.Sprintf("Comprehension in the target band (%d%%), holding level", pct)
	}
}
