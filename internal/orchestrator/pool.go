package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// ErrPoolStopped is returned when submitting to a stopped pool.
var ErrPoolStopped = errors.New("orchestrator pool stopped")

// Pool caps the number of concurrent runs sharing one Orchestrator.
// Each run still owns its own state.
type Pool struct {
	orch  *Orchestrator
	slots chan struct{}

	// active tracks cancel functions of running runs by ID
	active map[string]context.CancelFunc
	mu     sync.RWMutex

	// ctx and cancel for pool lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks runs started with Submit
	wg sync.WaitGroup
}

// NewPool creates a Pool allowing at most maxConcurrent runs at once.
func NewPool(orch *Orchestrator, maxConcurrent int) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		orch:   orch,
		slots:  make(chan struct{}, maxConcurrent),
		active: make(map[string]context.CancelFunc),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run waits for a free slot and runs request synchronously. The error is
// non-nil only when no slot could be acquired before ctx or the pool ended.
func (p *Pool) Run(ctx context.Context, request string, runCtx map[string]any, maxIterations int) (*models.Response, error) {
	return p.run(ctx, p.orch.newRunID(), request, runCtx, maxIterations)
}

// Submit starts request in the background and returns its run ID and a
// channel that receives the response once. The run ends early when ctx or
// the pool is cancelled; the caller's request scope should not be passed
// here unless the run must die with it.
func (p *Pool) Submit(ctx context.Context, request string, runCtx map[string]any, maxIterations int) (string, <-chan *models.Response, error) {
	if p.ctx.Err() != nil {
		return "", nil, ErrPoolStopped
	}
	runID := p.orch.newRunID()
	out := make(chan *models.Response, 1)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)
		resp, err := p.run(ctx, runID, request, runCtx, maxIterations)
		if err != nil {
			log.Printf("[pool] run %s not started: %v", runID, err)
			return
		}
		out <- resp
	}()
	return runID, out, nil
}

func (p *Pool) run(ctx context.Context, runID, request string, runCtx map[string]any, maxIterations int) (*models.Response, error) {
	if p.ctx.Err() != nil {
		return nil, ErrPoolStopped
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPoolStopped
	}
	defer func() { <-p.slots }()

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	p.mu.Lock()
	p.active[runID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.active, runID)
		p.mu.Unlock()
	}()

	return p.orch.RunWithID(rctx, runID, request, runCtx, maxIterations), nil
}

// Cancel cancels the run with the given ID. It reports whether the run was
// active; runs still waiting for a slot are not yet active.
func (p *Pool) Cancel(runID string) bool {
	p.mu.RLock()
	cancel, ok := p.active[runID]
	p.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// CancelAll cancels every active run. The pool keeps accepting new runs.
func (p *Pool) CancelAll() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cancel := range p.active {
		cancel()
	}
	return len(p.active)
}

// Events returns the orchestrator's event channel, or nil if events are disabled.
func (p *Pool) Events() <-chan OrchestratorEvent {
	return p.orch.Events()
}

// Stop cancels all runs and waits for submitted runs to complete.
func (p *Pool) Stop() error {
	p.cancel()
	p.wg.Wait()
	return nil
}

// Count returns the number of running runs.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}

// DroppedEventCount returns the total dropped events.
func (p *Pool) DroppedEventCount() uint64 {
	return p.orch.DroppedEventCount()
}
