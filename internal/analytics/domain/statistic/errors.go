package statistic

import "errors"

var (
	// ErrInvalidGranularity is returned when granularity is unsupported.
	ErrInvalidGranularity = errors.New("statistic: invalid granularity")
	// ErrInvalidPeriodStart is returned when the period start is zero.
	ErrInvalidPeriodStart = errors.New("statistic: invalid period start")
	// ErrNilLocation is returned when bucketing is asked to guess a timezone.
	ErrNilLocation = errors.New("statistic: nil location")
)
