package sentiment

import (
	"math"
	"strings"
)

// Neutral is the score for text that carries no readable signal.
const Neutral = 0.5

// Scorer assigns a sentiment score in [0,1] to a piece of text, with
// 0.5 neutral. Implementations are deterministic for a given input and
// never fail; when nothing can be read from the text they return
// Neutral.
type Scorer interface {
	Score(text string) float64
}

var strongPositiveWords = []string{
	"amazing", "incredible", "fantastic", "wonderful", "excellent",
	"thrilled", "ecstatic", "overjoyed", "euphoric", "elated",
	"grateful", "blessed", "proud", "happy", "joyful", "love",
	"breakthrough", "relieved", "hopeful",
}

var mildPositiveWords = []string{
	"good", "nice", "pleasant", "fine", "okay", "alright", "better",
	"content", "satisfied", "pleased", "glad", "cheerful", "calm",
	"positive", "optimistic", "looking forward", "excited", "eager",
	"motivated", "rested", "refreshed", "improving", "progress",
}

var strongNegativeWords = []string{
	"terrible", "horrible", "awful", "dreadful", "unbearable",
	"devastated", "heartbroken", "shattered", "crushed", "hopeless",
	"desperate", "miserable", "depressed", "worthless", "suicidal",
	"hate", "furious", "enraged", "panicking", "terrified",
}

var mildNegativeWords = []string{
	"bad", "poor", "down", "low", "off", "sad", "upset", "lonely",
	"disappointed", "frustrated", "annoyed", "irritated", "bothered",
	"worried", "concerned", "troubled", "uneasy", "uncomfortable",
	"anxious", "nervous", "afraid", "scared", "stressed", "tense",
	"tired", "exhausted", "drained", "burnt out", "overwhelmed",
}

// KeywordScorer is the heuristic scorer: four weighted word lists with
// diminishing returns for repeats, clamped to [0,1].
type KeywordScorer struct{}

func NewKeywordScorer() KeywordScorer { return KeywordScorer{} }

func (KeywordScorer) Score(text string) float64 {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Neutral
	}

	wordSet := make(map[string]bool)
	for _, word := range strings.Fields(normalized) {
		wordSet[strings.Trim(word, ".,!?;:\"'")] = true
	}

	count := func(list []string) int {
		n := 0
		for _, entry := range list {
			if wordSet[entry] || (strings.Contains(entry, " ") && strings.Contains(normalized, entry)) {
				n++
			}
		}
		return n
	}

	score := Neutral
	if n := count(strongPositiveWords); n > 0 {
		score += float64(n) * 0.15 * math.Pow(0.8, float64(n-1))
	}
	if n := count(mildPositiveWords); n > 0 {
		score += float64(n) * 0.08 * math.Pow(0.9, float64(n-1))
	}
	if n := count(strongNegativeWords); n > 0 {
		score -= float64(n) * 0.15 * math.Pow(0.8, float64(n-1))
	}
	if n := count(mildNegativeWords); n > 0 {
		score -= float64(n) * 0.08 * math.Pow(0.9, float64(n-1))
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
