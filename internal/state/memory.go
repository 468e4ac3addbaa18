package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// recentInteractions is how many interactions a snapshot carries.
const recentInteractions = 5

// Interaction is one past request from a user.
type Interaction struct {
	ID        int64
	UserID    string
	Request   string
	Status    string
	Summary   string
	CreatedAt time.Time
}

// RecordInteraction appends an interaction to the user's history.
func (db *DB) RecordInteraction(ctx context.Context, in *Interaction) error {
	if in.UserID == "" {
		return fmt.Errorf("record interaction: user id is required")
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = db.now()
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO interactions (user_id, request, status, summary, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, in.UserID, in.Request, in.Status, nullString(in.Summary), formatTime(in.CreatedAt))
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	in.ID, _ = res.LastInsertId()
	return nil
}

// RecentInteractions returns up to limit interactions, newest first.
func (db *DB) RecentInteractions(ctx context.Context, userID string, limit int) ([]Interaction, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, user_id, request, status, summary, created_at
		FROM interactions WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		var summary sql.NullString
		var created string
		if err := rows.Scan(&in.ID, &in.UserID, &in.Request, &in.Status, &summary, &created); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.Summary = summary.String
		if in.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse interaction time: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// PutFact stores a key/value fact about a user, replacing any previous value.
func (db *DB) PutFact(ctx context.Context, userID, key, value string) error {
	if userID == "" || key == "" {
		return fmt.Errorf("put fact: user id and key are required")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO facts (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, userID, key, value, formatTime(db.now()))
	if err != nil {
		return fmt.Errorf("put fact: %w", err)
	}
	return nil
}

// Facts returns every fact stored for a user.
func (db *DB) Facts(ctx context.Context, userID string) (map[string]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM facts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	facts := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts[k] = v
	}
	return facts, rows.Err()
}

// Snapshot returns what the planner should know about a user: stored facts,
// the most recent interactions and a one-line summary. An anonymous caller
// gets a nil snapshot.
func (db *DB) Snapshot(ctx context.Context, userID string) (map[string]any, error) {
	if userID == "" {
		return nil, nil
	}
	facts, err := db.Facts(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := db.RecentInteractions(ctx, userID, recentInteractions)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 && len(recent) == 0 {
		return nil, nil
	}

	history := make([]map[string]any, 0, len(recent))
	for _, in := range recent {
		entry := map[string]any{
			"request": in.Request,
			"status":  in.Status,
			"at":      formatTime(in.CreatedAt),
		}
		if in.Summary != "" {
			entry["summary"] = in.Summary
		}
		history = append(history, entry)
	}

	snap := map[string]any{
		"user_id":             userID,
		"recent_interactions": history,
		"summary":             summarize(recent),
	}
	if len(facts) > 0 {
		snap["facts"] = facts
	}
	return snap, nil
}

func summarize(recent []Interaction) string {
	if len(recent) == 0 {
		return "no previous requests"
	}
	return fmt.Sprintf("%d recent request(s); last: %q (%s)", len(recent), recent[0].Request, recent[0].Status)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
