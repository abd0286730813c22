package scheduler

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_pruner.go -package=mocks github.com/mattjoyce/themethumb/internal/scheduler Pruner

// Pruner is the cache surface the scheduler drives.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}
