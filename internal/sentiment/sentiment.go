// Package sentiment scores text tone for chunks at index-build time.
package sentiment

import (
	"regexp"
	"strings"
)

// Scorer maps a text to a tone score in [-1, 1].
type Scorer interface {
	Score(text string) float64
}

// Lexicon scores text by counting positive and negative finance terms, in
// the spirit of the Loughran-McDonald word lists. The score is
// (pos - neg) / (pos + neg), and 0 when no term matches.
type Lexicon struct {
	positive map[string]struct{}
	negative map[string]struct{}
	negators map[string]struct{}
}

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

func NewLexicon() *Lexicon {
	return &Lexicon{
		positive: toSet(positiveTerms),
		negative: toSet(negativeTerms),
		negators: toSet([]string{"not", "no", "never", "without", "neither", "nor"}),
	}
}

func (l *Lexicon) Score(text string) float64 {
	tokens := wordRe.FindAllString(strings.ToLower(text), -1)
	var pos, neg float64
	for i, tok := range tokens {
		negated := false
		for j := max(0, i-3); j < i; j++ {
			if _, ok := l.negators[tokens[j]]; ok {
				negated = true
				break
			}
		}
		_, isPos := l.positive[tok]
		_, isNeg := l.negative[tok]
		switch {
		case isPos && !negated, isNeg && negated:
			pos++
		case isNeg && !negated, isPos && negated:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return (pos - neg) / (pos + neg)
}

// Mean returns the average of scores, 0 for none.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var positiveTerms = []string{
	"achieve", "achieved", "advance", "advantage", "beat", "beats", "benefit", "benefited",
	"boost", "boosted", "breakthrough", "confident", "exceed", "exceeded", "exceeds",
	"expand", "expanded", "expansion", "favorable", "gain", "gains", "grew", "grow",
	"growth", "improve", "improved", "improvement", "increase", "increased", "innovation",
	"outperform", "outperformed", "positive", "profitable", "profitability", "record",
	"rebound", "resilient", "rise", "rose", "strong", "stronger", "strength", "success",
	"successful", "surge", "surged", "upgrade", "upgraded", "upside",
}

var negativeTerms = []string{
	"adverse", "adversely", "bankruptcy", "challenge", "challenging", "claims", "concern",
	"decline", "declined", "declines", "decrease", "decreased", "default", "deficit",
	"delay", "delayed", "disruption", "downgrade", "downgraded", "drop", "dropped",
	"fail", "failed", "failure", "fell", "impairment", "investigation", "lawsuit",
	"litigation", "loss", "losses", "miss", "missed", "negative", "penalty", "probe",
	"recall", "recession", "restructuring", "risk", "risks", "shortfall", "slowdown",
	"slump", "uncertain", "uncertainty", "volatile", "volatility", "weak", "weaker",
	"weakness", "writedown",
}
