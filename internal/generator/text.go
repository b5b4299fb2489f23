package generator

import "strings"

// diacriticFolder maps accented letters onto their base forms so text
// comparisons survive inconsistent model output.
var diacriticFolder = strings.NewReplacer(
	"á", "a", "à", "a", "ä", "a", "â", "a", "ã", "a",
	"é", "e", "è", "e", "ë", "e", "ê", "e",
	"í", "i", "ì", "i", "ï", "i", "î", "i",
	"ó", "o", "ò", "o", "ö", "o", "ô", "o", "õ", "o",
	"ú", "u", "ù", "u", "ü", "u", "û", "u",
	"ñ", "n", "ç", "c",
)

// normalizeText lowercases, folds diacritics, and collapses whitespace.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = diacriticFolder.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// normalizedTokens splits normalized text into tokens of length >= 2.
func normalizedTokens(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, w := range strings.Fields(normalizeText(s)) {
		w = strings.Trim(w, ".,;:!?¡¿\"'()-")
		if len(w) >= 2 {
			tokens[w] = true
		}
	}
	return tokens
}

// diceCoefficient measures token-set overlap between two strings.
func diceCoefficient(a, b string) float64 {
	ta := normalizedTokens(a)
	tb := normalizedTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for t := range ta {
		if tb[t] {
			intersection++
		}
	}
	return 2 * float64(intersection) / float64(len(ta)+len(tb))
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// AvgSentenceLength returns the mean words per sentence, treating
// '.', '!' and '?' as terminators.
func AvgSentenceLength(s string) float64 {
	sentences := 0
	for _, r := range s {
		if r == '.' || r == '!' || r == '?' {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}
	return float64(CountWords(s)) / float64(sentences)
}

// readingSpeedWPM is an age-band estimate used for expected reading time.
var readingSpeedWPM = [4]int{60, 90, 110, 130}

// ExpectedReadingSeconds estimates how long a passage at the given
// sub-level takes to read aloud.
func ExpectedReadingSeconds(wordCount int, subLevel float64) int {
	wpm := readingSpeedWPM[TemplateLevel(subLevel)-1]
	secs := wordCount * 60 / wpm
	if secs < 10 {
		secs = 10
	}
	return secs
}
