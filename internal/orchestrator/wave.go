package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// waveRunner dispatches one wave: parallel tasks through a bounded pool,
// sequential tasks as a single lane in declaration order.
type waveRunner struct {
	registry   *ExecutorRegistry
	maxWorkers int
	// onStart and onDone are called from worker goroutines and must be safe
	// for concurrent use.
	onStart func(*models.Task)
	onDone  func(models.ExecutionResult)
}

// run dispatches every task in the wave and returns one result per task,
// in the wave's declaration order. It returns once all dispatches finished.
func (w *waveRunner) run(ctx context.Context, wave Wave, contextFor func(*models.Task) RunContext) []models.ExecutionResult {
	results := make([]models.ExecutionResult, len(wave.Tasks))
	index := make(map[string]int, len(wave.Tasks))
	for i, t := range wave.Tasks {
		index[t.ID] = i
	}

	dispatch := func(t *models.Task) {
		if w.onStart != nil {
			w.onStart(t)
		}
		r := w.registry.Dispatch(ctx, t, contextFor(t))
		// Each goroutine writes only its own slot.
		results[index[t.ID]] = r
		if w.onDone != nil {
			w.onDone(r)
		}
	}

	var g errgroup.Group
	limit := w.maxWorkers
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	if seq := wave.Sequential(); len(seq) > 0 {
		g.Go(func() error {
			for _, t := range seq {
				dispatch(t)
			}
			return nil
		})
	}
	for _, t := range wave.Parallel() {
		g.Go(func() error {
			dispatch(t)
			return nil
		})
	}

	_ = g.Wait()
	return results
}
