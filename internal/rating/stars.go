package rating

// Stars is the session reward: perfect comprehension earns 3, a strong
// session 2, any correct answer 1, and none 0.
func Stars(ratio float64) int {
	switch {
	case ratio >= 1.0:
		return 3
	case ratio >= 0.75:
		return 2
	case ratio > 0:
		return 1
	default:
		return 0
	}
}
