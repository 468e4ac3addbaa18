package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/railmind/internal/api"
	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/tui"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// errPaused is returned when a pause signal is present.
var errPaused = errors.New("railmind is paused; run 'railmind signal clear' to resume")

var (
	runPlanPath      string
	runTUI           bool
	runJSON          bool
	runMaxIterations int
	runUserID        string
	runContextPairs  []string
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a single request",
	Long: `Run one free-text request through the planner and executors.

The request is planned with the language model when an Anthropic key (or
Bedrock) is configured, and with the built-in keyword planner otherwise.
Use --plan to replay a saved plan file instead.

Examples:
  railmind run "Train 12627 is delayed by 45 minutes at Katpadi"
  railmind run --user +919800000001 --context pnr=4521678901 "refund my ticket"
  railmind run --plan plan.yaml --tui "replay"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequest,
}

func init() {
	runCmd.Flags().StringVar(&runPlanPath, "plan", "", "Replay a JSON or YAML plan file instead of planning")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live run monitor")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full response as JSON")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Planning rounds (default from config)")
	runCmd.Flags().StringVar(&runUserID, "user", "", "User ID for memory and history")
	runCmd.Flags().StringArrayVar(&runContextPairs, "context", nil, "Run context entry as key=value (repeatable)")
}

func runRequest(cmd *cobra.Command, args []string) error {
	request := strings.TrimSpace(strings.Join(args, " "))
	if request == "" {
		return fmt.Errorf("request is empty")
	}
	if runMaxIterations < 0 {
		return fmt.Errorf("--max-iterations must not be negative")
	}
	runCtx, err := parseContextPairs(runContextPairs)
	if err != nil {
		return err
	}
	if runUserID != "" {
		runCtx["user_id"] = runUserID
	}
	if _, ok := runCtx["channel"]; !ok {
		runCtx["channel"] = "cli"
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := newRuntime(cfg, runtimeOptions{planPath: runPlanPath, events: runTUI})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if rt.signals != nil {
		if rt.signals.Paused() {
			return errPaused
		}
		var release context.CancelFunc
		ctx, release = rt.signals.Context(ctx)
		defer release()
	}

	var resp *models.Response
	if runTUI {
		resp, err = runWithMonitor(ctx, rt.orch, request, runCtx, runMaxIterations)
		if err != nil {
			return err
		}
	} else {
		resp = rt.orch.Run(ctx, request, runCtx, runMaxIterations)
	}

	out := cmd.OutOrStdout()
	if runJSON {
		if err := writeJSON(out, resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	} else {
		printResponse(out, resp)
		printUsage(out, rt.usage)
	}

	if resp.Status == models.ResponseError {
		return fmt.Errorf("run %s ended with an error", resp.RunID)
	}
	return nil
}

// runWithMonitor runs the request behind the bubbletea monitor and returns
// once both the run and the monitor have finished.
func runWithMonitor(ctx context.Context, orch *orchestrator.Orchestrator, request string, runCtx map[string]any, maxIterations int) (*models.Response, error) {
	// Log output corrupts the display.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	program, _ := tui.NewMonitorProgram(request)
	go tui.Forward(program, orch.Events())

	done := make(chan *models.Response, 1)
	go func() {
		resp := orch.Run(ctx, request, runCtx, maxIterations)
		done <- resp
		program.Send(tui.RunDoneMsg{Response: resp})
	}()

	if _, err := program.Run(); err != nil {
		return nil, fmt.Errorf("run monitor: %w", err)
	}
	return <-done, nil
}

// parseContextPairs turns key=value flags into a run context map.
func parseContextPairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --context %q: want key=value", p)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func statusColor(status models.ResponseStatus) *color.Color {
	switch status {
	case models.ResponseCompleted:
		return color.New(color.FgGreen, color.Bold)
	case models.ResponsePartial:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func taskMarker(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusSuccess:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.YellowString("✗")
	default:
		return color.RedString("!")
	}
}

// printResponse writes a human-readable summary of resp.
func printResponse(w io.Writer, resp *models.Response) {
	fmt.Fprintf(w, "Run %s: %s (iteration %d)\n", resp.RunID, statusColor(resp.Status).Sprint(resp.Status), resp.Iteration)
	if resp.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", resp.Error)
	}
	for _, q := range resp.Questions {
		fmt.Fprintf(w, "  ? %s\n", q)
	}

	agents := make([]string, 0, len(resp.Results))
	for agent := range resp.Results {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	for _, agent := range agents {
		for _, r := range resp.Results[agent] {
			fmt.Fprintf(w, "  %s %s %s (attempt %d, %s)", taskMarker(r.Status), r.TaskID, agent, r.Attempt, r.Status)
			if r.Error != "" {
				fmt.Fprintf(w, ": %s", r.Error)
			}
			fmt.Fprintln(w)
		}
	}
}

// printUsage reports model token usage. Runs that never called the model
// print nothing.
func printUsage(w io.Writer, usage *api.TokenTracker) {
	if usage == nil || usage.Calls() == 0 {
		return
	}
	in, out := usage.Total()
	fmt.Fprintf(w, "Model usage: %d call(s), %d input / %d output tokens (~$%.4f)\n", usage.Calls(), in, out, usage.Cost())
}
