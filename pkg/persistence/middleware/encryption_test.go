package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/tether/pkg/adapters/memory"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/persistence/middleware"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.SnapshotStore, config middleware.EncryptionConfig) ports.SnapshotStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(config)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	original := domain.Snapshot{
		State:   domain.StateAwaitingInput,
		RunID:   "run-1",
		Pending: domain.PendingInput{"secret": "my-secret-sauce"},
	}
	require.NoError(t, secure.Save(ctx, "current", original))

	// The underlying store only sees the envelope.
	stored, err := underlying.Load(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingInput, stored.State)
	assert.Equal(t, domain.RunID("run-1"), stored.RunID)
	assert.Nil(t, stored.Pending)
	assert.Contains(t, stored.Result, "__encrypted__")

	loaded, err := secure.Load(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Pending["secret"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	withOld := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, withOld.Save(ctx, "current", domain.Snapshot{State: domain.StateCompleted, HasResult: true, Result: "old"}))

	withNew := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := withNew.Load(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, "old", loaded.Result)

	require.NoError(t, withNew.Save(ctx, "current", domain.Snapshot{State: domain.StateCompleted, HasResult: true, Result: "new"}))
	_, err = withOld.Load(ctx, "current")
	assert.Error(t, err, "the old key alone cannot read data sealed with the new key")
}

func TestEncryptionMiddleware_RejectsPlainSnapshots(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "current", domain.Snapshot{State: domain.StateIdle}))

	_, err := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)}).Load(ctx, "current")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.Error(t, err)
}
