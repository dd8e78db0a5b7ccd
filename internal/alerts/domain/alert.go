package alerts

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
)

// Kind is the rule family that produced an alert.
type Kind string

const (
	KindLowStockInfo       Kind = "low_stock_info"
	KindNegativeBalance    Kind = "negative_balance"
	KindOverdueReceivable  Kind = "overdue_receivable"
	KindStatisticalOutlier Kind = "statistical_outlier"
	KindTrendShift         Kind = "trend_shift"
	KindHighDebtExposure   Kind = "high_debt_exposure"
)

// Severity is ordered Low < Medium < High < Critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the fixed ordering rank of a severity.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Alert is a derived signal recomputed on every aggregation pass.
type Alert struct {
	ID         string   `json:"id"`
	Kind       Kind     `json:"kind"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	SubjectRef string   `json:"subject_ref"`
}

// New builds an alert whose id is stable across passes for the same kind and subject.
func New(kind Kind, severity Severity, subjectRef, message string) Alert {
	return Alert{
		ID:         BuildID(kind, subjectRef),
		Kind:       kind,
		Severity:   severity,
		Message:    message,
		SubjectRef: subjectRef,
	}
}

// BuildID derives a deterministic alert id.
func BuildID(kind Kind, subjectRef string) string {
	sum := sha1.Sum([]byte(string(kind) + "|" + subjectRef))
	return "alert-" + hex.EncodeToString(sum[:8])
}

// SortBySeverity orders alerts by severity descending, keeping evaluation
// order between equal severities.
func SortBySeverity(list []Alert) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Severity.Rank() > list[j].Severity.Rank()
	})
}
