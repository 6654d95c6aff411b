package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/tether/internal/logging"
	redisAdapter "github.com/aretw0/tether/pkg/adapters/redis"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.BaseURL = scriptedURL(t, vmScript())
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.Timeout = 200 * time.Millisecond

	rt, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	ctx := context.Background()

	unlock, err := rt.Lock(ctx)
	require.NoError(t, err)

	other, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	_, err = other.Lock(ctx)
	assert.Error(t, err, "the snapshot key is already claimed")

	_, err = execute(t, rt.Client, RunOptions{
		Prompt: "Create Azure VM",
		Quiet:  true,
		In:     strings.NewReader("eastus\nazureuser\nB2s\n"),
	})
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	snap, err := other.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, snap.State)
	assert.Equal(t, rt.Client.RunID(), snap.RunID)

	unlock, err = other.Lock(ctx)
	require.NoError(t, err)
	assert.NoError(t, unlock(ctx))

	n, err := testutil.GatherAndCount(rt.Registry, "tether_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen_WithoutRedis(t *testing.T) {
	cfg := DefaultConfig()
	rt, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.LoadSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)

	unlock, err := rt.Lock(context.Background())
	require.NoError(t, err)
	assert.NoError(t, unlock(context.Background()))
}

func TestOpen_BadRedisURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisURL = "not-a-redis-url"
	_, err := Open(cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestRuntime_ServeMetricsStopsWithContext(t *testing.T) {
	rt, err := Open(DefaultConfig(), logging.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.ServeMetrics(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestOpen_SealsCheckpoints(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.BaseURL = scriptedURL(t, vmScript())
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
	cfg.MaskKeys = []string{"admin"}

	rt, err := Open(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	_, err = execute(t, rt.Client, RunOptions{
		Prompt: "Create Azure VM",
		Quiet:  true,
		In:     strings.NewReader("eastus\nazureuser\nB2s\n"),
	})
	require.NoError(t, err)

	raw, err := mr.Get(redisAdapter.DefaultPrefix + cfg.SnapshotKey)
	require.NoError(t, err)
	assert.NotContains(t, raw, "vm-42")
	assert.Contains(t, raw, "__encrypted__")

	snap, err := rt.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, snap.State)
	assert.Equal(t, map[string]any{"vmId": "vm-42"}, snap.Result)
}
