package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortBySeverityIsStable(t *testing.T) {
	list := []Alert{
		{ID: "a", Severity: SeverityLow},
		{ID: "b", Severity: SeverityCritical},
		{ID: "c", Severity: SeverityMedium},
		{ID: "d", Severity: SeverityCritical},
		{ID: "e", Severity: SeverityHigh},
		{ID: "f", Severity: SeverityLow},
	}
	SortBySeverity(list)
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"b", "d", "e", "c", "a", "f"}, ids)
}

func TestBuildIDDeterministic(t *testing.T) {
	a := BuildID(KindNegativeBalance, "account:monte")
	assert.Equal(t, a, BuildID(KindNegativeBalance, "account:monte"))
	assert.NotEqual(t, a, BuildID(KindTrendShift, "account:monte"))
	assert.Len(t, a, len("alert-")+16)
}

func TestThresholdsMergeAndValidate(t *testing.T) {
	merged := DefaultThresholds().Merge(Thresholds{LowStock: 25, TrendGrowth: 35})
	assert.Equal(t, int64(25), merged.LowStock)
	assert.Equal(t, 35.0, merged.TrendGrowth)
	assert.Equal(t, 30, merged.OverdueDays)
	require.NoError(t, merged.Validate())

	bad := DefaultThresholds().Merge(Thresholds{ZScoreHigh: 2})
	assert.ErrorIs(t, bad.Validate(), ErrInvalidThresholds)
}

func TestSessionFilter(t *testing.T) {
	s := NewSession()
	s.Dismiss("x")
	got := s.Filter([]Alert{{ID: "x"}, {ID: "y"}})
	require.Len(t, got, 1)
	assert.Equal(t, "y", got[0].ID)
	assert.True(t, s.Dismissed("x"))
}
