package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/tether"
	redisAdapter "github.com/aretw0/tether/pkg/adapters/redis"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/observability"
	"github.com/aretw0/tether/pkg/persistence/middleware"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// wrapStore masks PII, then seals the snapshot, before it reaches store.
func wrapStore(store ports.SnapshotStore, cfg Config) (ports.SnapshotStore, error) {
	var mws []middleware.Middleware
	if len(cfg.MaskKeys) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.MaskKeys)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	ec, err := cfg.encryptionConfig()
	if err != nil {
		return nil, err
	}
	if ec != nil {
		enc, err := middleware.NewEncryptionMiddleware(*ec)
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

// LockTTL bounds how long a crashed process can keep the snapshot key locked.
const LockTTL = 15 * time.Minute

// lockPrefix namespaces the run lock next to the snapshots.
const lockPrefix = "tether:"

// ErrNoStore is returned by commands that need a snapshot store when none is configured.
var ErrNoStore = errors.New("no snapshot store configured (set redis_url or --redis-url)")

// Runtime bundles the client and the optional infrastructure configured for it.
type Runtime struct {
	Client   *tether.Client
	Store    ports.SnapshotStore
	Registry *prometheus.Registry

	cfg    Config
	logger *slog.Logger
	locker ports.DistributedLocker
	redis  *redisAdapter.Store
}

// Open builds a Runtime from cfg. Redis and metrics are wired only when configured.
func Open(cfg Config, logger *slog.Logger, opts ...tether.Option) (*Runtime, error) {
	rt := &Runtime{
		cfg:      cfg,
		logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	metrics, err := observability.NewMetrics(rt.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	clientOpts := []tether.Option{
		tether.WithLogger(logger),
		tether.WithTimeout(cfg.Timeout),
		tether.WithContractValidation(cfg.ValidateContract),
		tether.WithLifecycleHooks(metrics.Hooks()),
		tether.WithLifecycleHooks(debugHooks(logger)),
	}

	if cfg.RedisURL != "" {
		store, err := redisAdapter.New(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.redis = store
		rt.locker = redisAdapter.NewLocker(store.Client(), lockPrefix)
		if rt.Store, err = wrapStore(store, cfg); err != nil {
			_ = rt.Close()
			return nil, err
		}
		clientOpts = append(clientOpts, tether.WithSnapshotStore(rt.Store, cfg.SnapshotKey))
	}

	client, err := tether.New(cfg.BaseURL, append(clientOpts, opts...)...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Client = client
	return rt, nil
}

// Lock claims the configured snapshot key so that no other process drives
// a run checkpointed under it. Without a store it is a no-op.
func (rt *Runtime) Lock(ctx context.Context) (ports.UnlockFunc, error) {
	if rt.locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	if rt.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.Timeout)
		defer cancel()
	}
	unlock, err := rt.locker.Lock(ctx, rt.cfg.SnapshotKey, LockTTL)
	if err != nil {
		return nil, fmt.Errorf("snapshot key %q is in use: %w", rt.cfg.SnapshotKey, err)
	}
	return unlock, nil
}

// LoadSnapshot returns the run checkpointed under the configured key.
func (rt *Runtime) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	if rt.Store == nil {
		return domain.Snapshot{}, ErrNoStore
	}
	return rt.Store.Load(ctx, rt.cfg.SnapshotKey)
}

// ServeMetrics exposes the registry on addr until ctx ends.
func (rt *Runtime) ServeMetrics(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.Handler(rt.Registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		rt.logger.Info("serving metrics", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	}
}

// Close releases the client and the store connection.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Client != nil {
		errs = append(errs, rt.Client.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	return errors.Join(errs...)
}

// debugHooks logs every transition and stream event at debug level.
func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, tr domain.Transition) {
			logger.Debug("transition", "from", tr.From, "to", tr.To, "run_id", tr.RunID)
		},
		OnStreamEvent: func(ctx context.Context, ev domain.StreamEvent) {
			logger.Debug("stream event", "kind", ev.Kind, "run_id", ev.RunID)
		},
	}
}
