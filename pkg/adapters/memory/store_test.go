package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/tether/pkg/adapters/memory"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSnapshotStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	snap := domain.Snapshot{State: domain.StateAwaitingInput, Pending: domain.PendingInput{"region": "eastus"}}
	require.NoError(t, store.Save(ctx, "current", snap))
	snap.Pending["region"] = "westus"

	loaded, err := store.Load(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, "eastus", loaded.Pending["region"])

	loaded.Pending["region"] = "northeurope"
	again, _ := store.Load(ctx, "current")
	assert.Equal(t, "eastus", again.Pending["region"])
	assert.Equal(t, []string{"current"}, store.Keys())
}
