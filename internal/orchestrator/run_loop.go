package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// RunWithID is Run with a caller-chosen run ID.
func (o *Orchestrator) RunWithID(ctx context.Context, runID, request string, runCtx map[string]any, maxIterations int) (resp *models.Response) {
	start := time.Now()
	if maxIterations < 1 {
		maxIterations = o.policy.Loop.MaxIterations
	}
	if runCtx == nil {
		runCtx = map[string]any{}
	}
	if o.policy.Loop.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.policy.Loop.RunTimeout)
		defer cancel()
	}

	st := newOrchestrationState(runID, request, runCtx, maxIterations)
	o.logger.Log("[run %s] start: request=%q maxIterations=%d", runID, request, maxIterations)

	defer func() {
		if p := recover(); p != nil {
			log.Printf("[orchestrator] run %s: recovered from panic: %v", runID, p)
			st.terminate(fmt.Errorf("internal error: %v", p))
			st.cancelRunning("run aborted")
			st.Phase = PhaseDone
			resp = o.finish(ctx, st, start)
		}
	}()

	o.loop(ctx, st)
	return o.finish(ctx, st, start)
}

// loop drives the state machine until PhaseDone. Every step goes through
// the transition table.
func (o *Orchestrator) loop(ctx context.Context, st *OrchestrationState) {
	for st.Phase != PhaseDone {
		var next Phase
		switch st.Phase {
		case PhasePlanning:
			next = o.planPhase(ctx, st)
		case PhaseExecuting:
			next = o.executePhase(ctx, st)
		case PhaseEvaluating:
			next = o.evaluatePhase(st)
		case PhaseReplanning:
			next = o.replanPhase(ctx, st)
		default:
			next = PhaseDone
		}

		o.logger.Log("[run %s] %s -> %s (iteration %d)", st.RunID, st.Phase, next, st.Iteration)
		if err := st.transition(next); err != nil {
			st.terminate(err)
			st.Phase = PhaseDone
		}
	}
}

func (o *Orchestrator) planPhase(ctx context.Context, st *OrchestrationState) Phase {
	if err := ctx.Err(); err != nil {
		st.terminate(&TimeoutError{Phase: PhasePlanning, Err: err})
		return PhaseDone
	}

	var memory map[string]any
	if o.memory != nil {
		userID, _ := st.Context["user_id"].(string)
		snap, err := o.memory.Snapshot(ctx, userID)
		if err != nil {
			o.logger.Log("[run %s] memory snapshot failed: %v", st.RunID, err)
		} else {
			memory = snap
		}
	}

	outcome, err := o.planner.Plan(ctx, PlanRequest{Request: st.Request, Context: st.Context, Memory: memory})

	var plan *models.Plan
	switch {
	case err != nil && ctx.Err() != nil:
		st.terminate(&TimeoutError{Phase: PhasePlanning, Err: ctx.Err()})
		return PhaseDone
	case err != nil:
		plan = o.fallback(st, &PlanningError{Reason: "planner unavailable", Err: err})
	case outcome.Kind == models.OutcomeClarification:
		st.questions = outcome.Questions
		st.terminate(fmt.Errorf("%w: %s", ErrClarificationRequired, strings.Join(outcome.Questions, "; ")))
		return PhaseDone
	case outcome.Kind == models.OutcomeValidPlan && outcome.Plan != nil:
		plan = outcome.Plan.Clone()
	default:
		reason := outcome.Reason
		if reason == "" {
			reason = "planner returned no plan"
		}
		plan = o.fallback(st, &PlanningError{Reason: reason, Raw: outcome.Raw})
	}

	for _, t := range plan.Subtasks {
		t.Status = models.TaskStatusPending
	}

	if err := o.scheduler.Validate(plan, st.TaskResults); err != nil {
		o.logger.Log("[run %s] plan rejected: %v", st.RunID, err)
		st.terminate(err)
		return PhaseDone
	}

	st.setPlan(plan)
	o.emitter.Emit(OrchestratorEvent{
		Type:      EventPlanCreated,
		RunID:     st.RunID,
		TaskIDs:   planIDs(plan),
		Iteration: st.Iteration,
		Message:   plan.RequestType,
	})
	return PhaseExecuting
}

// fallback builds the single-task plan used when planner output is unusable.
func (o *Orchestrator) fallback(st *OrchestrationState, perr *PlanningError) *models.Plan {
	log.Printf("[orchestrator] run %s: %v; using fallback plan", st.RunID, perr)
	o.metrics.observeFallback()
	o.emitter.Emit(OrchestratorEvent{
		Type:      EventPlanFallback,
		RunID:     st.RunID,
		Iteration: st.Iteration,
		Error:     perr,
	})
	return &models.Plan{
		RequestType: "general",
		Priority:    "medium",
		Subtasks: []*models.Task{{
			ID:            "task_1",
			Description:   st.Request,
			Agent:         o.policy.Planning.FallbackAgent,
			ExecutionType: models.ExecutionSequential,
			Inputs:        map[string]any{"query": st.Request},
			Status:        models.TaskStatusPending,
		}},
		ExpectedOutcome: "Answer the request directly",
	}
}

func (o *Orchestrator) executePhase(ctx context.Context, st *OrchestrationState) Phase {
	st.roundDispatched = 0
	runner := &waveRunner{
		registry:   o.registry,
		maxWorkers: o.policy.Dispatch.MaxWorkers,
		onStart: func(t *models.Task) {
			o.emitter.Emit(OrchestratorEvent{
				Type:      EventTaskStarted,
				RunID:     st.RunID,
				TaskID:    t.ID,
				Agent:     t.Agent,
				Iteration: st.Iteration,
			})
		},
		onDone: func(r models.ExecutionResult) {
			o.metrics.observeTask(r)
			ev := OrchestratorEvent{
				Type:      EventTaskCompleted,
				RunID:     st.RunID,
				TaskID:    r.TaskID,
				Agent:     r.Agent,
				Iteration: st.Iteration,
				Status:    string(r.Status),
				Duration:  r.Duration,
			}
			if !r.Succeeded() {
				ev.Type = EventTaskFailed
				ev.Message = r.Error
			}
			o.emitter.Emit(ev)
		},
	}

	for {
		if err := ctx.Err(); err != nil {
			st.cancelRunning(fmt.Sprintf("run cancelled: %v", err))
			st.terminate(&TimeoutError{Phase: PhaseExecuting, Err: err})
			return PhaseDone
		}

		wave, err := o.scheduler.NextWave(st.CurrentPlan, st.TaskResults)
		if err != nil {
			st.terminate(err)
			return PhaseDone
		}
		if wave.Empty() {
			return PhaseEvaluating
		}

		// Contexts are built before dispatch so workers never read run state.
		contexts := make(map[string]RunContext, len(wave.Tasks))
		for _, t := range wave.Tasks {
			contexts[t.ID] = o.runContextFor(st, t)
		}

		st.markRunning(wave)
		o.emitter.Emit(OrchestratorEvent{
			Type:      EventWaveStarted,
			RunID:     st.RunID,
			TaskIDs:   wave.IDs(),
			Iteration: st.Iteration,
		})
		o.logger.Log("[run %s] dispatching wave %v", st.RunID, wave.IDs())

		results := runner.run(ctx, wave, func(t *models.Task) RunContext { return contexts[t.ID] })
		st.merge(results)

		for _, r := range results {
			o.logger.Log("[run %s] task %s (%s) -> %s %s", st.RunID, r.TaskID, r.Agent, r.Status, r.Error)
		}
	}
}

func (o *Orchestrator) runContextFor(st *OrchestrationState, t *models.Task) RunContext {
	upstream := make(map[string]map[string]any, len(t.Dependencies))
	order := make([]string, 0, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if _, dup := upstream[dep]; dup {
			continue
		}
		if r, ok := st.TaskResults[dep]; ok && r.Succeeded() {
			upstream[dep] = r.Output
			order = append(order, dep)
		}
	}
	return RunContext{
		RunID:         st.RunID,
		Request:       st.Request,
		Iteration:     st.Iteration,
		TaskID:        t.ID,
		Values:        st.Context,
		Upstream:      upstream,
		UpstreamOrder: order,
	}
}

func (o *Orchestrator) evaluatePhase(st *OrchestrationState) Phase {
	switch {
	case st.allSucceeded():
		return PhaseDone
	case st.roundDispatched == 0:
		o.logger.Log("[run %s] no task could make progress", st.RunID)
		return PhaseDone
	case st.Iteration >= st.MaxIterations:
		o.logger.Log("[run %s] iteration budget %d exhausted", st.RunID, st.MaxIterations)
		return PhaseDone
	default:
		return PhaseReplanning
	}
}

func (o *Orchestrator) replanPhase(ctx context.Context, st *OrchestrationState) Phase {
	st.Iteration++
	o.metrics.observeReplan()

	if err := ctx.Err(); err != nil {
		st.terminate(&TimeoutError{Phase: PhaseReplanning, Err: err})
		return PhaseDone
	}

	unfinished := st.unfinished()
	retry := restrictPlan(st.CurrentPlan, unfinished)

	results := make(map[string]models.ExecutionResult, len(st.TaskResults))
	for id, r := range st.TaskResults {
		results[id] = r
	}

	next := retry
	proposed, err := o.replanner.Replan(ctx, st.CurrentPlan.Clone(), results, st.Request)
	switch {
	case err != nil && ctx.Err() != nil:
		st.terminate(&TimeoutError{Phase: PhaseReplanning, Err: ctx.Err()})
		return PhaseDone
	case err != nil:
		log.Printf("[orchestrator] run %s: replanner failed, retrying unfinished tasks: %v", st.RunID, err)
	case proposed == nil:
		o.logger.Log("[run %s] replanner returned no plan, retrying unfinished tasks", st.RunID)
	default:
		restricted := restrictPlan(proposed, unfinished)
		if err := o.scheduler.Validate(restricted, st.TaskResults); err != nil {
			log.Printf("[orchestrator] run %s: replanned plan rejected, retrying unfinished tasks: %v", st.RunID, err)
		} else if len(restricted.Subtasks) > 0 {
			next = restricted
		}
	}

	st.setPlan(next)
	o.emitter.Emit(OrchestratorEvent{
		Type:      EventReplanned,
		RunID:     st.RunID,
		TaskIDs:   planIDs(next),
		Iteration: st.Iteration,
	})
	return PhaseExecuting
}

// finish aggregates the response, records it and emits run_done.
func (o *Orchestrator) finish(ctx context.Context, st *OrchestrationState, start time.Time) *models.Response {
	meta := st.CurrentPlan
	resp := Aggregate(AggregateInput{
		RunID:      st.RunID,
		Request:    st.Request,
		Plan:       meta,
		Ledger:     st.Ledger(),
		Results:    st.TaskResults,
		Iteration:  st.Iteration,
		Dispatched: st.Dispatched(),
		Err:        st.Err(),
		Questions:  st.questions,
	})

	elapsed := time.Since(start)
	o.metrics.observeRun(resp.Status, elapsed)
	o.logger.Log("[run %s] done: status=%s iteration=%d results=%d in %s", st.RunID, resp.Status, resp.Iteration, resp.ResultCount(), elapsed)

	if o.recorder != nil {
		if err := o.recorder.SaveRun(context.WithoutCancel(ctx), resp, st.Context); err != nil {
			log.Printf("[orchestrator] run %s: failed to record run: %v", st.RunID, err)
		}
	}

	ev := OrchestratorEvent{
		Type:      EventRunDone,
		RunID:     st.RunID,
		Iteration: resp.Iteration,
		Status:    string(resp.Status),
		Message:   resp.Error,
		Duration:  elapsed,
	}
	if err := st.Err(); err != nil && !errors.Is(err, ErrClarificationRequired) {
		ev.Error = err
	}
	o.emitter.Emit(ev)
	return resp
}

func planIDs(p *models.Plan) []string {
	ids := make([]string, len(p.Subtasks))
	for i, t := range p.Subtasks {
		ids[i] = t.ID
	}
	return ids
}
