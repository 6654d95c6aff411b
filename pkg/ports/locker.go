package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates processes sharing a snapshot store, so that
// only one client drives the run checkpointed under a given key.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired or ctx ends.
	// The lock expires after ttl unless released earlier by the returned UnlockFunc.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
