package worker

import (
	"context"
	"fmt"
)

// Task is one unit of periodic maintenance.
type Task interface {
	// Name identifies the task in logs.
	Name() string

	// Run performs one pass. Errors are logged and the task runs again on
	// the next tick.
	Run(ctx context.Context) error
}

// CacheSweeper removes expired result cache entries.
type CacheSweeper interface {
	ClearExpired(ctx context.Context) (int64, error)
}

// CacheSweepTask deletes expired cache entries on each run.
type CacheSweepTask struct {
	cache CacheSweeper
}

// NewCacheSweepTask creates a task that sweeps cache.
func NewCacheSweepTask(cache CacheSweeper) *CacheSweepTask {
	return &CacheSweepTask{cache: cache}
}

// Name implements Task.
func (t *CacheSweepTask) Name() string { return "cache_sweep" }

// Run implements Task.
func (t *CacheSweepTask) Run(ctx context.Context) error {
	if _, err := t.cache.ClearExpired(ctx); err != nil {
		return fmt.Errorf("sweep cache: %w", err)
	}
	return nil
}
