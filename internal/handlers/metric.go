package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"filing-rag/internal/metrics"
	"filing-rag/internal/models"
)

var (
	growthWords  = []string{"growth", "grow", "percent", "%"}
	outlookWords = []string{"stock", "news", "outlook", "sentiment"}
)

// metricReader resolves stored and derived metrics.
type metricReader struct {
	store metrics.Store
}

// value returns the metric for one period plus the stored records it was
// computed from.
func (m metricReader) value(ctx context.Context, entity, metric string, period int) (float64, []models.MetricRecord, error) {
	if metric != MetricMargin {
		r, err := m.store.Lookup(ctx, entity, metric, period)
		if err != nil {
			return 0, nil, err
		}
		return r.Value, []models.MetricRecord{r}, nil
	}
	ni, err := m.store.Lookup(ctx, entity, models.MetricNetIncome, period)
	if err != nil {
		return 0, nil, err
	}
	rev, err := m.store.Lookup(ctx, entity, models.MetricRevenue, period)
	if err != nil {
		return 0, nil, err
	}
	if rev.Value == 0 {
		return 0, nil, &models.MetricNotFoundError{Entity: entity, Metric: MetricMargin, Period: period}
	}
	return ni.Value / rev.Value * 100, []models.MetricRecord{ni, rev}, nil
}

func (m metricReader) periods(ctx context.Context, entity, metric string) ([]int, error) {
	if metric != MetricMargin {
		return m.store.Periods(ctx, entity, metric)
	}
	ni, err := m.store.Periods(ctx, entity, models.MetricNetIncome)
	if err != nil {
		return nil, err
	}
	rev, err := m.store.Periods(ctx, entity, models.MetricRevenue)
	if err != nil {
		return nil, err
	}
	return intersect(ni, rev), nil
}

func (m metricReader) latest(ctx context.Context, entity, metric string) (int, float64, []models.MetricRecord, error) {
	periods, err := m.periods(ctx, entity, metric)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(periods) == 0 {
		return 0, 0, nil, &models.MetricNotFoundError{Entity: entity, Metric: metric}
	}
	p := periods[len(periods)-1]
	v, recs, err := m.value(ctx, entity, metric, p)
	return p, v, recs, err
}

func metricYearComparison(m metricReader) Handler {
	return Handler{
		Name: "metric-year-comparison",
		CanHandle: func(q Question) bool {
			return q.Entity != "" && q.Metric != "" && len(q.Years) >= 2
		},
		Handle: func(ctx context.Context, q Question) (models.Answer, error) {
			values := make([]float64, len(q.Years))
			var evidence []models.Evidence
			for i, y := range q.Years {
				v, recs, err := m.value(ctx, q.Entity, q.Metric, y)
				if err != nil {
					return models.Answer{}, err
				}
				values[i] = v
				evidence = appendMetricEvidence(evidence, recs)
			}
			first, last := 0, len(q.Years)-1
			from, to := values[first], values[last]

			var change string
			if q.mentions(growthWords...) && from != 0 {
				change = formatPercent((to - from) / math.Abs(from) * 100)
			} else {
				change = formatDelta(q.Metric, to-from)
			}
			text := fmt.Sprintf("%s %s changed from %s in %d to %s in %d: %s.",
				q.Entity, metricLabel(q.Metric),
				formatValue(q.Metric, from), q.Years[first],
				formatValue(q.Metric, to), q.Years[last], change)
			return models.Answer{Text: text, Evidence: evidence}, nil
		},
	}
}

func marginEntityComparison(m metricReader) Handler {
	return Handler{
		Name: "margin-entity-comparison",
		CanHandle: func(q Question) bool {
			_, _, ok := q.comparedTickers()
			return ok && q.Metric == MetricMargin
		},
		Handle: func(ctx context.Context, q Question) (models.Answer, error) {
			return compareEntities(ctx, m, q, MetricMargin)
		},
	}
}

func profitEntityComparison(m metricReader) Handler {
	return Handler{
		Name: "profit-entity-comparison",
		CanHandle: func(q Question) bool {
			_, _, ok := q.comparedTickers()
			return ok && q.Metric == models.MetricNetIncome
		},
		Handle: func(ctx context.Context, q Question) (models.Answer, error) {
			return compareEntities(ctx, m, q, models.MetricNetIncome)
		},
	}
}

// compareEntities answers "when did A have a higher X than B", scanning
// shared periods from the most recent one.
func compareEntities(ctx context.Context, m metricReader, q Question, metric string) (models.Answer, error) {
	a, b, _ := q.comparedTickers()
	pa, err := m.periods(ctx, a, metric)
	if err != nil {
		return models.Answer{}, err
	}
	pb, err := m.periods(ctx, b, metric)
	if err != nil {
		return models.Answer{}, err
	}
	shared := intersect(pa, pb)
	if len(shared) == 0 {
		return models.Answer{}, &models.MetricNotFoundError{Entity: a + "/" + b, Metric: metric}
	}
	for i := len(shared) - 1; i >= 0; i-- {
		p := shared[i]
		va, ra, err := m.value(ctx, a, metric, p)
		if err != nil {
			return models.Answer{}, err
		}
		vb, rb, err := m.value(ctx, b, metric, p)
		if err != nil {
			return models.Answer{}, err
		}
		if va > vb {
			text := fmt.Sprintf("%s had a higher %s than %s in %d: %s vs %s.",
				a, metricLabel(metric), b, p, formatValue(metric, va), formatValue(metric, vb))
			return models.Answer{Text: text, Evidence: appendMetricEvidence(appendMetricEvidence(nil, ra), rb)}, nil
		}
	}
	text := fmt.Sprintf("No year found where %s had a higher %s than %s in the available data (%d-%d).",
		a, metricLabel(metric), b, shared[0], shared[len(shared)-1])
	return models.Answer{Text: text}, nil
}

func metricByYear(m metricReader) Handler {
	return Handler{
		Name: "metric-by-year",
		CanHandle: func(q Question) bool {
			return q.Entity != "" && q.Metric != "" && len(q.Years) == 1
		},
		Handle: func(ctx context.Context, q Question) (models.Answer, error) {
			year := q.Years[0]
			v, recs, err := m.value(ctx, q.Entity, q.Metric, year)
			if err != nil {
				return models.Answer{}, err
			}
			text := fmt.Sprintf("%s %s %d: %s", q.Entity, metricLabel(q.Metric), year, formatValue(q.Metric, v))
			return models.Answer{Text: text, Evidence: appendMetricEvidence(nil, recs)}, nil
		},
	}
}

func latestMetric(m metricReader) Handler {
	return Handler{
		Name: "latest-metric",
		CanHandle: func(q Question) bool {
			return q.Entity != "" && q.Metric != "" && len(q.Years) == 0 && !q.mentions(outlookWords...)
		},
		Handle: func(ctx context.Context, q Question) (models.Answer, error) {
			p, v, recs, err := m.latest(ctx, q.Entity, q.Metric)
			if err != nil {
				return models.Answer{}, err
			}
			text := fmt.Sprintf("%s latest %s (%d): %s", q.Entity, metricLabel(q.Metric), p, formatValue(q.Metric, v))
			return models.Answer{Text: text, Evidence: appendMetricEvidence(nil, recs)}, nil
		},
	}
}

func appendMetricEvidence(ev []models.Evidence, recs []models.MetricRecord) []models.Evidence {
	for _, r := range recs {
		ev = append(ev, models.MetricEvidence(r))
	}
	return ev
}

func metricLabel(metric string) string {
	switch metric {
	case MetricMargin:
		return "profit margin"
	default:
		return strings.ReplaceAll(metric, "_", " ")
	}
}

func formatValue(metric string, v float64) string {
	if metric == MetricMargin {
		return trimFloat(v) + "%"
	}
	v = math.Round(v*100) / 100
	if v < 0 {
		return "-$" + humanize.CommafWithDigits(-v, 2)
	}
	return "$" + humanize.CommafWithDigits(v, 2)
}

func formatDelta(metric string, d float64) string {
	if metric == MetricMargin {
		return signed(d) + " pp"
	}
	if d < 0 {
		return formatValue(metric, d)
	}
	return "+" + formatValue(metric, d)
}

// formatPercent renders a percentage change like "+20%" or "-3.75%".
func formatPercent(p float64) string {
	return signed(p) + "%"
}

func signed(v float64) string {
	s := trimFloat(v)
	if v >= 0 {
		return "+" + s
	}
	return s
}

func trimFloat(v float64) string {
	v = math.Round(v*100) / 100
	if v == 0 {
		v = 0 // drops negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func intersect(a, b []int) []int {
	in := make(map[int]bool, len(b))
	for _, v := range b {
		in[v] = true
	}
	var out []int
	for _, v := range a {
		if in[v] {
			out = append(out, v)
		}
	}
	return out
}

func isDataError(err error) bool {
	return errors.Is(err, models.ErrMetricNotFound) || errors.Is(err, models.ErrNoEntityData)
}
