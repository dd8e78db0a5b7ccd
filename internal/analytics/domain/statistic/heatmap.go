package statistic

import (
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	ledger "flowdistributor/internal/ledger/domain"
)

const (
	DaysPerWeek  = 7
	HoursPerDay  = 24
	noBucketSlot = -1
)

// Cell is one day-of-week x hour-of-day bucket.
type Cell struct {
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// Heatmap is a 7x24 matrix of entry counts. Row 0 is Sunday; columns are
// hours of the configured location.
type Heatmap struct {
	Cells    [DaysPerWeek][HoursPerDay]Cell `json:"cells"`
	Skipped  int                            `json:"skipped"`
	Location string                         `json:"location"`
}

// HeatmapOption customizes BuildHeatmap.
type HeatmapOption func(*heatmapOptions)

type heatmapOptions struct {
	logger  *log.Logger
	include Predicate
}

// WithHeatmapLogger assigns the logger for skipped entries.
func WithHeatmapLogger(logger *log.Logger) HeatmapOption {
	return func(o *heatmapOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHeatmapFilter restricts the entries counted.
func WithHeatmapFilter(include Predicate) HeatmapOption {
	return func(o *heatmapOptions) {
		if include != nil {
			o.include = include
		}
	}
}

// BuildHeatmap buckets entries by local day of week and hour. Entries with a
// zero date are skipped, logged and counted in Skipped.
func BuildHeatmap(entries []ledger.Entry, loc *time.Location, opts ...HeatmapOption) (Heatmap, error) {
	if loc == nil {
		return Heatmap{}, ErrNilLocation
	}
	o := heatmapOptions{logger: log.Default(), include: All}
	for _, opt := range opts {
		opt(&o)
	}
	h := Heatmap{Location: loc.String()}
	for _, e := range entries {
		if !o.include(e) {
			continue
		}
		if e.Date.IsZero() {
			h.Skipped++
			o.logger.Printf("heatmap: skip entry id=%s: invalid date", e.ID)
			continue
		}
		local := e.Date.In(loc)
		cell := &h.Cells[int(local.Weekday())][local.Hour()]
		cell.Count++
		cell.Sum = cell.Sum.Add(e.Amount)
	}
	return h, nil
}

// Total returns the number of bucketed entries.
func (h Heatmap) Total() int {
	total := 0
	for day := 0; day < DaysPerWeek; day++ {
		total += h.dayCount(day)
	}
	return total
}

// BusiestDay returns the weekday with the largest count. ok is false for an
// empty matrix; ties resolve to the earliest day.
func (h Heatmap) BusiestDay() (time.Weekday, bool) {
	best, bestCount := noBucketSlot, 0
	for day := 0; day < DaysPerWeek; day++ {
		if count := h.dayCount(day); count > bestCount {
			best, bestCount = day, count
		}
	}
	if best == noBucketSlot {
		return time.Sunday, false
	}
	return time.Weekday(best), true
}

// PeakHour returns the hour with the largest count across all days.
func (h Heatmap) PeakHour() (int, bool) {
	best, bestCount := noBucketSlot, 0
	for hour := 0; hour < HoursPerDay; hour++ {
		count := 0
		for day := 0; day < DaysPerWeek; day++ {
			count += h.Cells[day][hour].Count
		}
		if count > bestCount {
			best, bestCount = hour, count
		}
	}
	if best == noBucketSlot {
		return 0, false
	}
	return best, true
}

func (h Heatmap) dayCount(day int) int {
	count := 0
	for hour := 0; hour < HoursPerDay; hour++ {
		count += h.Cells[day][hour].Count
	}
	return count
}

// PeriodBucket counts and sums entries of one period.
type PeriodBucket struct {
	Key   TimeKey         `json:"key"`
	Start time.Time       `json:"start"`
	Count int             `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// Grouping is the result of GroupByPeriod.
type Grouping struct {
	Buckets []PeriodBucket `json:"buckets"`
	Skipped int            `json:"skipped"`
}

// GroupByPeriod buckets entries by day, week, month or year in loc.
func GroupByPeriod(entries []ledger.Entry, granularity Granularity, loc *time.Location) (Grouping, error) {
	if !granularity.IsValid() {
		return Grouping{}, ErrInvalidGranularity
	}
	if loc == nil {
		return Grouping{}, ErrNilLocation
	}
	var g Grouping
	byKey := make(map[TimeKey]*PeriodBucket)
	for _, e := range entries {
		if e.Date.IsZero() {
			g.Skipped++
			continue
		}
		key, err := NewTimeKey(granularity, e.Date, loc)
		if err != nil {
			return Grouping{}, err
		}
		bucket, ok := byKey[key]
		if !ok {
			start, err := PeriodStart(granularity, e.Date, loc)
			if err != nil {
				return Grouping{}, err
			}
			bucket = &PeriodBucket{Key: key, Start: start}
			byKey[key] = bucket
		}
		bucket.Count++
		bucket.Sum = bucket.Sum.Add(e.Amount)
	}
	g.Buckets = make([]PeriodBucket, 0, len(byKey))
	for _, bucket := range byKey {
		g.Buckets = append(g.Buckets, *bucket)
	}
	sort.Slice(g.Buckets, func(i, j int) bool { return g.Buckets[i].Start.Before(g.Buckets[j].Start) })
	return g, nil
}
