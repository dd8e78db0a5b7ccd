package alerts

import "errors"

var (
	// ErrNotFound indicates an alert id absent from the latest pass.
	ErrNotFound = errors.New("alert: not found")
	// ErrInvalidThresholds is returned when thresholds contradict each other.
	ErrInvalidThresholds = errors.New("alert: invalid thresholds")
)
