package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/railmind/internal/config"
	"github.com/ShayCichocki/railmind/internal/state"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past runs",
	Long: `Show past runs from the state database.

Without arguments, lists the most recent runs. With a run ID, shows that
run's results.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print as JSON")
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		resp, err := db.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(out, resp)
		}
		printResponse(out, resp)
		return nil
	}

	runs, err := db.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		return writeJSON(out, runs)
	}
	printRuns(out, runs)
	return nil
}

func openHistory(cfg *config.Config) (*state.DB, error) {
	if !cfg.Memory.Enabled {
		return nil, errors.New("memory is disabled; set memory.enabled to keep run history")
	}
	db, err := state.OpenMigrated(cfg.DBPath(state.GlobalDBPath()))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	return db, nil
}

func printRuns(w io.Writer, runs []state.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-9s  %5s  %-19s  %s\n", "RUN", "STATUS", "TASKS", "CREATED", "REQUEST")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-9s  %5d  %-19s  %s\n",
			r.ID, statusColor(r.Status).Sprint(r.Status), r.Tasks,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), truncate(r.Request, 60))
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
