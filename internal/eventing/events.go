package eventing

import (
	"time"

	cache "flowdistributor/internal/cache/domain"
)

// DatasetChanged is published after every reconciler change.
type DatasetChanged struct {
	Dataset    cache.Dataset
	OccurredAt time.Time
}
