package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore
// implementation adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := domain.Snapshot{
			State:     domain.StateAwaitingInput,
			RunID:     "run-1",
			Events:    []any{map[string]any{"step": 1}},
			Interrupt: domain.InterruptRequest{"region": "Select a region"},
			Pending:   domain.PendingInput{"region": "eastus"},
			UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}

		require.NoError(t, store.Save(ctx, key, snap), "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.State, loaded.State)
		assert.Equal(t, snap.RunID, loaded.RunID)
		assert.Equal(t, snap.Interrupt, loaded.Interrupt)
		assert.Equal(t, "eastus", loaded.Pending["region"])
		require.Len(t, loaded.Events, 1)
		// JSON persistence turns numbers into float64; only check presence.
		assert.NotNil(t, loaded.Events[0].(map[string]any)["step"])
		assert.True(t, snap.UpdatedAt.Equal(loaded.UpdatedAt))
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, domain.Snapshot{State: domain.StateStreaming, RunID: "run-2"}))

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.RunID("run-2"), loaded.RunID)
		assert.Nil(t, loaded.Interrupt)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+key)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, domain.Snapshot{State: domain.StateCompleted}))

		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")
	})
}
