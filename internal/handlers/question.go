package handlers

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"filing-rag/internal/models"
)

// MetricMargin is net income over revenue, in percent. It is derived, not
// stored.
const MetricMargin = "margin"

var (
	tickerRe   = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	wordRe     = regexp.MustCompile(`(?i)\b[a-z]{2,5}\b`)
	thanRe     = regexp.MustCompile(`(?i)\bthan\b`)
	digitRunRe = regexp.MustCompile(`\d+`)

	tickerStoplist = stopSet(
		// finance abbreviations
		"US", "USD", "CEO", "CFO", "EPS", "GAAP", "SEC", "AI", "IPO", "ETF", "YOY", "QOQ", "FY", "TTM",
		// words that show up in questions, in any case
		"A", "AN", "THE", "AND", "OR", "NOT", "BUT", "IF", "SO", "AS", "AT", "BY", "IN", "ON", "OF",
		"TO", "FOR", "FROM", "WITH", "OVER", "INTO", "VS", "PER", "ABOUT", "SINCE", "UNTIL", "AFTER",
		"WHEN", "WHAT", "WHICH", "WHO", "WHY", "HOW", "WHERE", "WHILE",
		"DID", "DO", "DOES", "DONE", "HAVE", "HAS", "HAD", "IS", "ARE", "WAS", "WERE", "BE", "BEEN",
		"WILL", "CAN", "COULD", "MAY", "MIGHT", "SHALL",
		"MORE", "LESS", "MOST", "LEAST", "MUCH", "MANY", "ANY", "ALL", "BOTH", "EACH", "SOME", "SAME",
		"THAN", "THEN", "THAT", "THIS", "THESE", "THOSE", "THEY", "THEM", "THEIR", "IT", "ITS",
		"WE", "OUR", "YOU", "YOUR", "MY", "ME", "HE", "SHE", "HIS", "HER",
		"YEAR", "LAST", "NEXT", "EVER", "EVEN", "ALSO", "ONLY", "JUST", "STILL", "EVERY",
		"HIGH", "LOW", "LOWER", "BEST", "WORST", "GOOD", "BAD", "BIG", "NEW", "OLD", "UP", "DOWN",
		"GO", "GOES", "GROW", "GREW", "RISE", "ROSE", "FALL", "FELL", "BEAT", "MAKE", "MADE", "EARN",
		"SHOW", "TELL", "GIVE", "LIST", "GET", "GOT", "SEE", "LOOK", "BASED", "EARLY", "LATER",
		"SALES", "GROSS", "TOTAL", "NET", "CASH", "DEBT", "LOSS", "PRICE", "SHARE", "VALUE", "RATE",
		"STOCK", "NEWS", "TREND",
	)
)

func stopSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// metricAliases is checked in order; the first phrase found names the metric.
var metricAliases = []struct {
	phrase string
	metric string
}{
	{"profit margin", MetricMargin},
	{"profit percentage", MetricMargin},
	{"net margin", MetricMargin},
	{"net income", models.MetricNetIncome},
	{"net profit", models.MetricNetIncome},
	{"profit", models.MetricNetIncome},
	{"earnings", models.MetricNetIncome},
	{"revenue", models.MetricRevenue},
	{"sales", models.MetricRevenue},
}

// Question is a parsed user question. Handlers only read it.
type Question struct {
	Text     string
	Lower    string
	Entity   string
	Tickers  []string
	// Compared holds the two sides of an "A ... than B" question.
	Compared []string
	Years    []int
	Metric   string
}

// ParseQuestion extracts tickers, years and the metric from text. entity is
// the caller's entity; when empty the first compared or mentioned ticker is
// used.
func ParseQuestion(entity, text string) Question {
	text = strings.TrimSpace(text)
	q := Question{
		Text:  text,
		Lower: strings.ToLower(text),
	}

	seen := map[string]bool{}
	for _, t := range tickerRe.FindAllString(text, -1) {
		if tickerStoplist[t] || seen[t] {
			continue
		}
		seen[t] = true
		q.Tickers = append(q.Tickers, t)
	}

	q.Compared = comparedPair(text)

	q.Entity = strings.ToUpper(strings.TrimSpace(entity))
	switch {
	case q.Entity != "":
	case len(q.Compared) == 2:
		q.Entity = q.Compared[0]
	case len(q.Tickers) > 0:
		q.Entity = q.Tickers[0]
	}
	q.Years = findYears(text)

	for _, a := range metricAliases {
		if strings.Contains(q.Lower, a.phrase) {
			q.Metric = a.metric
			break
		}
	}
	return q
}

func (q Question) mentions(words ...string) bool {
	for _, w := range words {
		if strings.Contains(q.Lower, w) {
			return true
		}
	}
	return false
}

// comparedTickers returns the two tickers of a "X ... than Y" question.
func (q Question) comparedTickers() (string, string, bool) {
	if len(q.Compared) != 2 {
		return "", "", false
	}
	return q.Compared[0], q.Compared[1], true
}

// comparedPair finds the ticker closest before "than" and the first one after
// it, matching in any case. Both are returned upper-cased.
func comparedPair(text string) []string {
	loc := thanRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	var left, right string
	for _, w := range wordRe.FindAllString(text[:loc[0]], -1) {
		if w = strings.ToUpper(w); !tickerStoplist[w] {
			left = w
		}
	}
	for _, w := range wordRe.FindAllString(text[loc[1]:], -1) {
		if w = strings.ToUpper(w); !tickerStoplist[w] {
			right = w
			break
		}
	}
	if left == "" || right == "" || left == right {
		return nil
	}
	return []string{left, right}
}

// findYears returns the distinct 19xx/20xx years in text, sorted. Years may
// be glued to letters ("FY2023") but not to other digits.
func findYears(text string) []int {
	seen := map[int]bool{}
	var years []int
	for _, run := range digitRunRe.FindAllString(text, -1) {
		if len(run) != 4 || !(strings.HasPrefix(run, "19") || strings.HasPrefix(run, "20")) {
			continue
		}
		n, _ := strconv.Atoi(run)
		if !seen[n] {
			seen[n] = true
			years = append(years, n)
		}
	}
	sort.Ints(years)
	return years
}
