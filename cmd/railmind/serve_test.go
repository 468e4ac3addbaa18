package main

import (
	"context"
	"testing"
	"time"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/planner"
	"github.com/ShayCichocki/railmind/internal/signals"
	"github.com/ShayCichocki/railmind/pkg/models"
)

func TestSignalRunner_StopCancelsSubmittedRun(t *testing.T) {
	started := make(chan struct{})
	reg := orchestrator.NewExecutorRegistry(0)
	reg.Register(models.CapabilityOperations, orchestrator.ExecutorFunc(func(ctx context.Context, _ map[string]any, _ orchestrator.RunContext) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	fp, err := planner.NewFilePlanner(writePlan(t, "subtasks:\n  - {task_id: a, agent: operations}\n"))
	if err != nil {
		t.Fatal(err)
	}
	orch := orchestrator.New(orchestrator.RequiredConfig{Planner: fp, Registry: reg})
	defer orch.Close()
	pool := orchestrator.NewPool(orch, 1)
	defer pool.Stop()

	m, err := signals.New(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	r := signalRunner{pool: pool, signals: m}

	id, out, err := r.Submit(context.Background(), "hold", nil, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	if err := m.SendStop(); err != nil {
		t.Fatal(err)
	}
	m.ShouldStop()

	select {
	case resp := <-out:
		if resp == nil || resp.RunID != id {
			t.Fatalf("resp = %+v, want run %s", resp, id)
		}
		if got := resp.Results[models.CapabilityOperations][0].Status; got != models.TaskStatusCancelled {
			t.Errorf("task status = %s, want cancelled", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stop signal did not cancel the submitted run")
	}
	if m.Active() != 0 {
		t.Errorf("signal registrations left = %d, want 0", m.Active())
	}
}

func TestSignalRunner_CancelByID(t *testing.T) {
	r := signalRunner{pool: orchestrator.NewPool(orchestrator.New(orchestrator.RequiredConfig{Planner: planner.KeywordPlanner{}}), 1)}
	defer r.pool.Stop()
	if r.Cancel("missing") {
		t.Error("Cancel of unknown run reported true")
	}
}
