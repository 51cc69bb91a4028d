package orchestrator

import (
	"fmt"
	"strings"

	"github.com/seenimoa/macroquery/pkg/models"
)

// freqRank orders frequencies fine to coarse. Zero means unknown.
func freqRank(f models.Frequency) int {
	switch f {
	case models.FreqDaily:
		return 1
	case models.FreqWeekly:
		return 2
	case models.FreqMonthly:
		return 3
	case models.FreqQuarterly:
		return 4
	case models.FreqAnnual:
		return 5
	}
	return 0
}

// convertFrequency downsamples a series in place to the target cadence
// and reports whether a conversion was applied. Upsampling is never
// attempted; unknown frequencies and period labels pass through
// untouched. The aggregation method is recorded in the metadata.
func convertFrequency(s *models.NormalizedSeries, target models.Frequency) bool {
	from := freqRank(s.Metadata.Frequency)
	to := freqRank(target)
	if from == 0 || to == 0 || from >= to {
		return false
	}

	method := aggregationFor(s.Metadata)

	type bucket struct {
		sum   float64
		count int
	}
	byPeriod := make(map[string]*bucket)
	var order []string
	for _, p := range s.Points {
		label, ok := bucketLabel(p.Date, target)
		if !ok {
			return false
		}
		b := byPeriod[label]
		if b == nil {
			b = &bucket{}
			byPeriod[label] = b
			order = append(order, label)
		}
		if p.Value != nil {
			b.sum += *p.Value
			b.count++
		}
	}

	points := make([]models.NormalizedPoint, 0, len(order))
	for _, label := range order {
		b := byPeriod[label]
		if b.count == 0 {
			points = append(points, models.NormalizedPoint{Date: label})
			continue
		}
		v := b.sum
		if method == "mean" {
			v /= float64(b.count)
		}
		points = append(points, models.NormalizedPoint{Date: label, Value: models.Float64(v)})
	}

	s.Points = points
	s.Metadata.Frequency = target
	s.Metadata.Aggregation = method
	s.SortPoints()
	return true
}

// aggregationFor picks the downsampling method from the series
// metadata: mean for rates, prices, and index levels, sum for flows.
func aggregationFor(m models.SeriesMetadata) string {
	unit := strings.ToLower(m.Unit)
	name := strings.ToLower(m.IndicatorDisplay)
	switch {
	case strings.Contains(unit, "%"), strings.Contains(unit, "percent"),
		strings.Contains(unit, "rate"), strings.Contains(unit, "ratio"),
		strings.Contains(unit, "index"), strings.Contains(unit, "per "):
		return "mean"
	case strings.Contains(name, "price"), strings.Contains(name, "rate"),
		strings.Contains(name, "index"):
		return "mean"
	}
	return "sum"
}

// bucketLabel maps a period label onto its enclosing target period.
func bucketLabel(date string, target models.Frequency) (string, bool) {
	t, ok := models.PeriodTime(date)
	if !ok {
		return "", false
	}
	switch target {
	case models.FreqAnnual:
		return fmt.Sprintf("%04d", t.Year()), true
	case models.FreqQuarterly:
		return fmt.Sprintf("%04d-Q%d", t.Year(), (int(t.Month())-1)/3+1), true
	case models.FreqMonthly:
		return t.Format("2006-01"), true
	}
	return "", false
}
