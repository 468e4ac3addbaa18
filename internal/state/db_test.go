package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMigrated(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// countRows returns the number of rows in table.
func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")

	db, err := Open(filepath.Join(nested, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("parent directories not created: %s", nested)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	// Nothing can be created under /proc.
	if _, err := Open("/proc/nonexistent/test.db"); err == nil {
		t.Error("expected error opening db at invalid path")
	}
}

func TestClose(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := db.conn.Query("SELECT 1"); err == nil {
		t.Error("expected error after close, got nil")
	}
}

func TestMigrate(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"schema_version", "runs", "task_results", "interactions", "facts", "deliveries"} {
		var count int
		row := db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := row.Scan(&count); err != nil {
			t.Errorf("failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate (iteration %d) failed: %v", i, err)
		}
	}

	var version, rows int
	if err := db.conn.QueryRow("SELECT MAX(version), COUNT(*) FROM schema_version").Scan(&version, &rows); err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != 5 || rows != 5 {
		t.Errorf("schema version = %d over %d rows, want 5 over 5", version, rows)
	}
}

func TestTransaction(t *testing.T) {
	insert := func(tx *sql.Tx, id string) error {
		_, err := tx.Exec(`INSERT INTO runs (id, request, status, response_json, created_at) VALUES (?, 'r', 'completed', '{}', ?)`,
			id, formatTime(time.Now()))
		return err
	}

	tests := []struct {
		name    string
		fn      func(tx *sql.Tx) error
		wantErr bool
		want    int
	}{
		{
			name: "commit",
			fn:   func(tx *sql.Tx) error { return insert(tx, "tx-1") },
			want: 1,
		},
		{
			name: "rollback",
			fn: func(tx *sql.Tx) error {
				if err := insert(tx, "tx-fail"); err != nil {
					return err
				}
				return fmt.Errorf("simulated error")
			},
			wantErr: true,
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			err := db.Transaction(context.Background(), tt.fn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transaction error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := countRows(t, db, "runs"); got != tt.want {
				t.Errorf("runs = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGlobalDBPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := GlobalDBPath(), "/custom/data/railmind/railmind.db"; got != want {
		t.Errorf("GlobalDBPath() = %q, want %q", got, want)
	}

	t.Setenv("XDG_DATA_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := GlobalDBPath(), filepath.Join(home, ".local", "share", "railmind", "railmind.db"); got != want {
		t.Errorf("GlobalDBPath() = %q, want %q", got, want)
	}
}

func TestProjectDBPath(t *testing.T) {
	if got, want := ProjectDBPath("/my/project"), "/my/project/.railmind/state.db"; got != want {
		t.Errorf("ProjectDBPath() = %q, want %q", got, want)
	}
}

func TestFormatAndParseTime(t *testing.T) {
	now := time.Now()
	parsed, err := parseTime(formatTime(now))
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if !now.Equal(parsed) {
		t.Errorf("time round-trip failed: got %v, want %v", parsed, now.UTC())
	}
}
