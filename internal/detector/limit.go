package detector

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/jackzampolin/relayout/internal/types"
)

// DefaultMaxConcurrency bounds in-flight detections per process.
const DefaultMaxConcurrency = 10

// Limited admits at most n concurrent Detect calls to the wrapped detector.
// Callers beyond the limit wait until a slot frees or their context ends.
type Limited struct {
	Detector
	sem *semaphore.Weighted
	max int64
}

// Limit wraps d with an admission limit of n concurrent calls.
func Limit(d Detector, n int64) *Limited {
	if n <= 0 {
		n = DefaultMaxConcurrency
	}
	return &Limited{Detector: d, sem: semaphore.NewWeighted(n), max: n}
}

// Detect waits for a slot, then delegates.
func (l *Limited) Detect(ctx context.Context, image []byte) ([]types.Region, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for detector slot: %w", err)
	}
	defer l.sem.Release(1)
	return l.Detector.Detect(ctx, image)
}

// MaxConcurrency returns the admission limit.
func (l *Limited) MaxConcurrency() int64 {
	return l.max
}

var _ Detector = (*Limited)(nil)
