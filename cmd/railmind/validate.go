package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/railmind/internal/graph"
	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/planner"
	"github.com/ShayCichocki/railmind/pkg/models"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Check a plan file and show its execution waves",
	Long: `Check a JSON or YAML plan file without running it.

The plan must have unique task IDs, known dependencies and no cycles.
Valid plans are printed as execution waves and in dependency order, with
the tasks each one waits on and feeds.
Tasks naming a capability with no built-in executor are reported as
warnings since they would fail at dispatch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := planner.LoadPlan(args[0])
		if err != nil {
			return err
		}
		waves, err := planWaves(plan)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printWaves(out, plan, waves)
		return printDependencies(out, plan)
	},
}

// planWaves returns the task IDs of each wave, assuming every task succeeds.
func planWaves(plan *models.Plan) ([][]string, error) {
	sched := orchestrator.NewScheduler(nil)
	if err := sched.Validate(plan, nil); err != nil {
		return nil, err
	}

	results := make(map[string]models.ExecutionResult, len(plan.Subtasks))
	var waves [][]string
	for len(results) < len(plan.Subtasks) {
		pending := plan.Clone()
		for _, t := range pending.Subtasks {
			if _, done := results[t.ID]; done {
				t.Status = models.TaskStatusSuccess
			}
		}
		wave, err := sched.NextWave(pending, results)
		if err != nil {
			return nil, err
		}
		if wave.Empty() {
			return nil, fmt.Errorf("plan stalls after %d wave(s)", len(waves))
		}
		for _, id := range wave.IDs() {
			results[id] = models.ExecutionResult{TaskID: id, Status: models.TaskStatusSuccess}
		}
		waves = append(waves, wave.IDs())
	}
	return waves, nil
}

func printWaves(w io.Writer, plan *models.Plan, waves [][]string) {
	fmt.Fprintf(w, "%s plan is valid: %d task(s) in %d wave(s)\n", color.GreenString("✓"), len(plan.Subtasks), len(waves))
	for i, ids := range waves {
		fmt.Fprintf(w, "  wave %d: %s\n", i+1, strings.Join(ids, ", "))
	}
	for _, t := range plan.Subtasks {
		if !models.IsKnownCapability(t.Agent) {
			fmt.Fprintf(w, "%s task %s uses unknown capability %q\n", color.YellowString("⚠"), t.ID, t.Agent)
		}
	}
}

// printDependencies writes the tasks in dependency order with the tasks
// each one waits on and the tasks it feeds.
func printDependencies(w io.Writer, plan *models.Plan) error {
	g := graph.New()
	if err := g.Build(plan.Subtasks, nil); err != nil {
		return err
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "dependency order (%d task(s)): %s\n", g.Size(), strings.Join(order, " -> "))
	for _, id := range order {
		fmt.Fprintf(w, "  %s [%s]", id, g.GetTask(id).Agent)
		if deps := g.GetDependencies(id); len(deps) > 0 {
			fmt.Fprintf(w, " after %s", strings.Join(deps, ", "))
		}
		if next := g.GetDependents(id); len(next) > 0 {
			fmt.Fprintf(w, " feeds %s", strings.Join(next, ", "))
		}
		fmt.Fprintln(w)
	}
	return nil
}
