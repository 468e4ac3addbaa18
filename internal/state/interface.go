package state

import (
	"context"
	"io"
	"time"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// MemoryStore handles per-user memory.
type MemoryStore interface {
	Snapshot(ctx context.Context, userID string) (map[string]any, error)
	RecordInteraction(ctx context.Context, in *Interaction) error
	PutFact(ctx context.Context, userID, key, value string) error
	Facts(ctx context.Context, userID string) (map[string]string, error)
}

// RunStore handles run history.
type RunStore interface {
	SaveRun(ctx context.Context, resp *models.Response, runCtx map[string]any) error
	GetRun(ctx context.Context, id string) (*models.Response, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	PurgeOldRuns(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DeliveryStore tracks provider delivery callbacks for outbound messages.
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, d Delivery) error
	Delivery(ctx context.Context, sid string) (*Delivery, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore composes every persistence concern the CLI and server need.
type StateStore interface {
	io.Closer
	Migrator
	MemoryStore
	RunStore
	DeliveryStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore                  = (*DB)(nil)
	_ orchestrator.MemoryProvider = (*DB)(nil)
	_ orchestrator.RunRecorder    = (*DB)(nil)
)
