package ports

import (
	"context"

	"github.com/aretw0/tether/pkg/domain"
)

// SnapshotStore checkpoints the current run so other processes can observe it.
// A key holds exactly one snapshot: saving a new run overwrites the previous one.
type SnapshotStore interface {
	// Save persists the snapshot under key.
	Save(ctx context.Context, key string, snap domain.Snapshot) error

	// Load retrieves the snapshot stored under key.
	// Returns domain.ErrSnapshotNotFound if nothing is stored.
	Load(ctx context.Context, key string) (domain.Snapshot, error)

	// Delete removes the snapshot stored under key.
	Delete(ctx context.Context, key string) error
}
