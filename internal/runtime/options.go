package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
)

// DefaultSnapshotKey is the store key used when WithStore is given an empty key.
const DefaultSnapshotKey = "current"

// Option defines a functional option for configuring the Controller.
type Option func(*Controller)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHooks registers lifecycle hooks. Repeated calls accumulate.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithTimeout bounds each create-run and resume call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithStore checkpoints the run's snapshot under key after every mutation.
func WithStore(store ports.SnapshotStore, key string) Option {
	return func(c *Controller) {
		if key == "" {
			key = DefaultSnapshotKey
		}
		c.store = store
		c.storeKey = key
	}
}
