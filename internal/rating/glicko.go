package rating

import (
	"math"
	"time"
)

// Glicko constants. Ratings live on the classic 1500 scale; the shared
// RD starts and caps at 350 (a brand-new learner is maximally uncertain).
const (
	InitialRating = 1500.0
	InitialRD     = 350.0
	MinRD         = 30.0
	MaxRD         = 350.0

	// rdInflation is Glicko's c constant: with it, a fully-confident
	// RD drifts back to the cap after roughly a year of inactivity.
	rdInflation = 18.0

	q = math.Ln10 / 400
)

// InflateRD grows the rating deviation with inactivity, capped at MaxRD.
// Standard Glicko step 1.
func InflateRD(rd float64, lastActive time.Time, now time.Time) float64 {
	if lastActive.IsZero() || !now.After(lastActive) {
		return clampRD(rd)
	}
	days := now.Sub(lastActive).Hours() / 24
	inflated := math.Sqrt(rd*rd + rdInflation*rdInflation*days)
	return clampRD(inflated)
}

func clampRD(rd float64) float64 {
	if rd < MinRD {
		return MinRD
	}
	if rd > MaxRD {
		return MaxRD
	}
	return rd
}

// AnchorRating maps a story's text level [1,4] and a question's
// authored difficulty [1,5] onto the rating scale. The text level is
// the comparison opponent; the difficulty offsets it within the level.
func AnchorRating(textLevel float64, difficulty int) float64 {
	if difficulty < 1 || difficulty > 5 {
		difficulty = 3
	}
	return InitialRating + (textLevel-2.5)*300 + float64(difficulty-3)*50
}

// UpdateRating applies one Glicko result (score 1 for correct, 0 for
// incorrect) against an anchor with the shared RD. The anchor is treated
// as a fixed-strength opponent (RD 0). Returns the new rating and RD.
func UpdateRating(rating, rd, anchor, score float64) (float64, float64) {
	g := 1.0 // opponent RD is 0, so g(RD_j) = 1
	e := 1 / (1 + math.Pow(10, g*(anchor-rating)/400))

	d2 := 1 / (q * q * g * g * e * (1 - e))
	denom := 1/(rd*rd) + 1/d2

	newRating := rating + (q/denom)*g*(score-e)
	newRD := math.Sqrt(1 / denom)
	return newRating, clampRD(newRD)
}
