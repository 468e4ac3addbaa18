package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// rememberedKeys are request-context values kept as user facts after a run.
var rememberedKeys = []string{"train_number", "pnr", "station", "location", "language"}

// RunSummary is one row of run history.
type RunSummary struct {
	ID        string                `json:"run_id"`
	Request   string                `json:"request"`
	Status    models.ResponseStatus `json:"status"`
	Iteration int                   `json:"iteration"`
	UserID    string                `json:"user_id,omitempty"`
	Error     string                `json:"error,omitempty"`
	Tasks     int                   `json:"tasks"`
	CreatedAt time.Time             `json:"created_at"`
}

// SaveRun persists a finished response, its task results and, when the
// run context names a user, an interaction plus remembered facts.
func (db *DB) SaveRun(ctx context.Context, resp *models.Response, runCtx map[string]any) error {
	if resp == nil || resp.RunID == "" {
		return fmt.Errorf("save run: response has no run id")
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	userID, _ := runCtx["user_id"].(string)
	now := formatTime(db.now())

	return db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO runs (id, request, status, iteration, error, user_id, response_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, resp.RunID, resp.Request, string(resp.Status), resp.Iteration,
			nullString(resp.Error), nullString(userID), string(payload), now)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE run_id = ?`, resp.RunID); err != nil {
			return fmt.Errorf("clear task results: %w", err)
		}
		for _, agent := range sortedAgents(resp.Results) {
			for _, r := range resp.Results[agent] {
				_, err := tx.ExecContext(ctx, `
					INSERT OR REPLACE INTO task_results (run_id, task_id, agent, status, attempt, error, duration_ms)
					VALUES (?, ?, ?, ?, ?, ?, ?)
				`, resp.RunID, r.TaskID, r.Agent, string(r.Status), r.Attempt,
					nullString(r.Error), r.Duration.Milliseconds())
				if err != nil {
					return fmt.Errorf("insert task result %s: %w", r.TaskID, err)
				}
			}
		}

		if userID == "" {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO interactions (user_id, request, status, summary, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, userID, resp.Request, string(resp.Status), nullString(runSummaryLine(resp)), now)
		if err != nil {
			return fmt.Errorf("insert interaction: %w", err)
		}
		for _, key := range rememberedKeys {
			v, ok := runCtx[key]
			if !ok || v == nil {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO facts (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, userID, key, fmt.Sprint(v), now)
			if err != nil {
				return fmt.Errorf("remember %s: %w", key, err)
			}
		}
		return nil
	})
}

// GetRun returns the stored response for a run.
func (db *DB) GetRun(ctx context.Context, id string) (*models.Response, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var payload string
	err := db.conn.QueryRowContext(ctx, `SELECT response_json FROM runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	var resp models.Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &resp, nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT r.id, r.request, r.status, r.iteration, r.user_id, r.error, r.created_at,
			(SELECT COUNT(*) FROM task_results t WHERE t.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var status, created string
		var userID, runErr sql.NullString
		if err := rows.Scan(&s.ID, &s.Request, &status, &s.Iteration, &userID, &runErr, &created, &s.Tasks); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.Status = models.ResponseStatus(status)
		s.UserID = userID.String
		s.Error = runErr.String
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse run time: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CapabilityStats returns the number of task results per capability and status.
func (db *DB) CapabilityStats(ctx context.Context) (map[string]map[models.TaskStatus]int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `SELECT agent, status, COUNT(*) FROM task_results GROUP BY agent, status`)
	if err != nil {
		return nil, fmt.Errorf("query capability stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]map[models.TaskStatus]int)
	for rows.Next() {
		var agent, status string
		var n int
		if err := rows.Scan(&agent, &status, &n); err != nil {
			return nil, fmt.Errorf("scan capability stats: %w", err)
		}
		if stats[agent] == nil {
			stats[agent] = make(map[models.TaskStatus]int)
		}
		stats[agent][models.TaskStatus(status)] = n
	}
	return stats, rows.Err()
}

func runSummaryLine(resp *models.Response) string {
	total, ok := 0, 0
	for _, rs := range resp.Results {
		for _, r := range rs {
			total++
			if r.Succeeded() {
				ok++
			}
		}
	}
	if total == 0 {
		if resp.Error != "" {
			return resp.Error
		}
		return "no tasks executed"
	}
	return fmt.Sprintf("%d/%d tasks succeeded", ok, total)
}

func sortedAgents(results map[string][]models.ExecutionResult) []string {
	agents := make([]string, 0, len(results))
	for a := range results {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	return agents
}
