package intel

import (
	"math"
	"strings"
)

const (
	intensifierBoost = 1.5
	negationFactor   = -0.5
	scoreDivisor     = 3.0
)

// ScoreMessage оценивает тональность текста в диапазоне [-1, 1].
//
// Каждое слово словаря считается один раз, если оно встречается в тексте как подстрока.
// Усилитель увеличивает модуль оценки в 1.5 раза, отрицание при наличии совпадений
// частично переворачивает знак (множитель -0.5).
func ScoreMessage(text string) float64 {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0
	}

	positive := countHits(lower, positiveWords)
	negative := countHits(lower, negativeWords)

	hasIntensifier, hasNegation := false, false
	for _, word := range wordPattern.FindAllString(strings.ReplaceAll(lower, "’", "'"), -1) {
		if _, ok := intensifiers[word]; ok {
			hasIntensifier = true
		}
		if _, ok := negations[word]; ok {
			hasNegation = true
		}
	}

	raw := float64(positive - negative)
	if hasIntensifier {
		raw *= intensifierBoost
	}
	if hasNegation && positive+negative > 0 {
		raw *= negationFactor
	}
	return clamp(raw/scoreDivisor, -1, 1)
}

func countHits(text string, words []string) int {
	hits := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hits++
		}
	}
	return hits
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
