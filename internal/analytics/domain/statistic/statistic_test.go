package statistic

import (
	"bytes"
	"log"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "flowdistributor/internal/ledger/domain"
)

func entry(id string, date time.Time, amount string, dir ledger.Direction, status ledger.Status) ledger.Entry {
	return ledger.Entry{ID: id, Date: date, Amount: decimal.RequireFromString(amount), Direction: dir, Status: status}
}

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestReduceEndToEndScenario(t *testing.T) {
	entries := []ledger.Entry{
		entry("a", day(2025, 1, 1, 0), "1000", ledger.DirectionIncome, ""),
		entry("b", day(2025, 1, 5, 0), "400", ledger.DirectionExpense, ""),
	}
	b := Reduce(entries, CompletedOnly)
	assert.Equal(t, "1000", b.TotalIncome.String())
	assert.Equal(t, "400", b.TotalExpense.String())
	assert.Equal(t, "600", b.NetBalance.String())
	assert.Equal(t, 2, b.Count)

	trend := ComputeTrendDecimal(b.NetBalance, decimal.NewFromInt(500), 0)
	assert.Equal(t, 20.0, trend.PercentChange)
	assert.Equal(t, TrendUp, trend.Direction)
}

func TestReduceIsPermutationInvariant(t *testing.T) {
	amounts := []string{"0.1", "0.2", "0.3", "1000000.07", "3.14159", "2.5", "99.99", "0.01"}
	var entries []ledger.Entry
	for i, a := range amounts {
		dir := ledger.DirectionIncome
		if i%3 == 0 {
			dir = ledger.DirectionExpense
		}
		entries = append(entries, entry(a, day(2025, 1, i+1, 0), a, dir, ""))
	}
	want := Reduce(entries, All)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]ledger.Entry(nil), entries...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Reduce(shuffled, All)
		require.True(t, want.TotalIncome.Equal(got.TotalIncome))
		require.True(t, want.TotalExpense.Equal(got.TotalExpense))
		require.True(t, want.NetBalance.Equal(got.NetBalance))
		require.Equal(t, want.Count, got.Count)
	}
}

func TestReducePredicates(t *testing.T) {
	entries := []ledger.Entry{
		entry("done", day(2025, 1, 1, 0), "100", ledger.DirectionIncome, ledger.StatusCompleted),
		entry("implicit", day(2025, 1, 1, 0), "50", ledger.DirectionIncome, ""),
		entry("pending", day(2025, 1, 1, 0), "30", ledger.DirectionIncome, ledger.StatusPending),
		entry("cancelled", day(2025, 1, 1, 0), "20", ledger.DirectionIncome, ledger.StatusCancelled),
	}
	assert.Equal(t, "150", Reduce(entries, CompletedOnly).TotalIncome.String())
	assert.Equal(t, "180", Reduce(entries, NotCancelled).TotalIncome.String())
	assert.Equal(t, "30", Reduce(entries, PendingOnly).TotalIncome.String())
	assert.Equal(t, 4, Reduce(entries, nil).Count)
}

func TestReduceByPeriodMonthly(t *testing.T) {
	entries := []ledger.Entry{
		entry("a", day(2025, 2, 3, 0), "10", ledger.DirectionIncome, ""),
		entry("b", day(2025, 1, 31, 0), "5", ledger.DirectionIncome, ""),
		entry("c", day(2025, 2, 10, 0), "4", ledger.DirectionExpense, ""),
	}
	periods, err := ReduceByPeriod(entries, GranularityMonth, time.UTC, All)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, TimeKey("2025-01"), periods[0].Key)
	assert.Equal(t, "6", periods[1].Balance.NetBalance.String())
	assert.Equal(t, "6", BalanceFor(periods, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)).NetBalance.String())
	assert.True(t, BalanceFor(periods, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)).NetBalance.IsZero())

	_, err = ReduceByPeriod(entries, GranularityMonth, nil, All)
	require.ErrorIs(t, err, ErrNilLocation)
}

func TestTrendZeroGuard(t *testing.T) {
	trend := ComputeTrend(5000, 0, 0)
	assert.Equal(t, 0.0, trend.PercentChange)
	assert.Equal(t, TrendFlat, trend.Direction)

	trend = ComputeTrendDecimal(decimal.NewFromInt(5000), decimal.Zero, 0)
	assert.Equal(t, 0.0, trend.PercentChange)
	assert.Equal(t, TrendFlat, trend.Direction)
}

func TestTrendEpsilon(t *testing.T) {
	assert.Equal(t, TrendDown, ComputeTrend(95, 100, 0).Direction)
	assert.Equal(t, TrendFlat, ComputeTrend(95, 100, 5).Direction)
	assert.Equal(t, TrendUp, ComputeTrend(106, 100, 5).Direction)
	assert.Equal(t, TrendFlat, ComputeTrend(100, 100, 0).Direction)
}

func TestTimeKeys(t *testing.T) {
	loc := time.UTC
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, loc)
	key, err := NewTimeKey(GranularityWeek, at, loc)
	require.NoError(t, err)
	assert.Equal(t, TimeKey("2025-W01"), key)

	start, err := PeriodStart(GranularityWeek, at, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 30, 0, 0, 0, 0, loc), start)

	_, err = NewTimeKey(Granularity("HOUR"), at, loc)
	require.ErrorIs(t, err, ErrInvalidGranularity)

	g, err := ParseGranularity("day")
	require.NoError(t, err)
	assert.Equal(t, GranularityDay, g)
}

func TestHeatmapBucketConservation(t *testing.T) {
	var buf bytes.Buffer
	rng := rand.New(rand.NewSource(42))
	var entries []ledger.Entry
	valid := 0
	for i := 0; i < 500; i++ {
		e := entry("e", day(2025, 1, 1, 0).Add(time.Duration(rng.Intn(24*60))*time.Hour), "1", ledger.DirectionIncome, "")
		if i%17 == 0 {
			e.Date = time.Time{}
		} else {
			valid++
		}
		entries = append(entries, e)
	}

	h, err := BuildHeatmap(entries, time.UTC, WithHeatmapLogger(log.New(&buf, "", 0)))
	require.NoError(t, err)

	sum := 0
	for d := 0; d < DaysPerWeek; d++ {
		for hr := 0; hr < HoursPerDay; hr++ {
			sum += h.Cells[d][hr].Count
		}
	}
	assert.Equal(t, valid, sum)
	assert.Equal(t, valid, h.Total())
	assert.Equal(t, len(entries)-valid, h.Skipped)
	assert.Contains(t, buf.String(), "invalid date")
}

func TestHeatmapLocalTimeAndInsights(t *testing.T) {
	// 2025-01-05 is a Sunday.
	entries := []ledger.Entry{
		entry("a", time.Date(2025, 1, 6, 2, 0, 0, 0, time.UTC), "10", ledger.DirectionIncome, ""),
		entry("b", time.Date(2025, 1, 6, 3, 0, 0, 0, time.UTC), "10", ledger.DirectionIncome, ""),
		entry("c", time.Date(2025, 1, 7, 15, 0, 0, 0, time.UTC), "10", ledger.DirectionIncome, ""),
	}

	utc, err := BuildHeatmap(entries, time.UTC)
	require.NoError(t, err)
	dayIdx, ok := utc.BusiestDay()
	require.True(t, ok)
	assert.Equal(t, time.Monday, dayIdx)
	assert.Equal(t, 1, utc.Cells[1][2].Count)

	mexico := time.FixedZone("CST", -6*3600)
	local, err := BuildHeatmap(entries, mexico)
	require.NoError(t, err)
	dayIdx, ok = local.BusiestDay()
	require.True(t, ok)
	assert.Equal(t, time.Sunday, dayIdx)
	assert.Equal(t, 1, local.Cells[0][20].Count)
	assert.Equal(t, "10", local.Cells[0][20].Sum.String())

	hour, ok := local.PeakHour()
	require.True(t, ok)
	assert.Equal(t, 9, hour)

	_, err = BuildHeatmap(entries, nil)
	require.ErrorIs(t, err, ErrNilLocation)
}

func TestHeatmapEmpty(t *testing.T) {
	h, err := BuildHeatmap(nil, time.UTC)
	require.NoError(t, err)
	_, ok := h.BusiestDay()
	assert.False(t, ok)
	_, ok = h.PeakHour()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Total())
}

func TestGroupByPeriod(t *testing.T) {
	entries := []ledger.Entry{
		entry("a", day(2025, 1, 1, 10), "10", ledger.DirectionIncome, ""),
		entry("b", day(2025, 1, 1, 20), "5", ledger.DirectionExpense, ""),
		entry("c", day(2025, 1, 2, 1), "1", ledger.DirectionIncome, ""),
		{ID: "bad"},
	}
	g, err := GroupByPeriod(entries, GranularityDay, time.UTC)
	require.NoError(t, err)
	require.Len(t, g.Buckets, 2)
	assert.Equal(t, TimeKey("2025-01-01"), g.Buckets[0].Key)
	assert.Equal(t, 2, g.Buckets[0].Count)
	assert.Equal(t, "15", g.Buckets[0].Sum.String())
	assert.Equal(t, 1, g.Skipped)
}
