package tether

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/internal/runtime"
	httpAdapter "github.com/aretw0/tether/pkg/adapters/http"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
)

// Client is the high-level entry point for the tether library.
// It drives one remote workflow run at a time and exposes the run's state
// through read-only accessors.
type Client struct {
	controller *runtime.Controller

	backend    ports.Backend
	httpClient *http.Client
	validate   bool
	logger     *slog.Logger
	hooks      domain.LifecycleHooks
	timeout    time.Duration
	hasTimeout bool
	store      ports.SnapshotStore
	storeKey   string
}

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls accumulate.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Client) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithHTTPClient sets the HTTP client used to reach the backend.
// It must not carry an overall timeout, or streams will be cut short.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBackend injects a custom Backend, bypassing the HTTP adapter.
// The base URL passed to New is then ignored.
func WithBackend(b ports.Backend) Option {
	return func(c *Client) {
		c.backend = b
	}
}

// WithContractValidation checks every backend response against the
// embedded OpenAPI document.
func WithContractValidation(enabled bool) Option {
	return func(c *Client) {
		c.validate = enabled
	}
}

// WithTimeout bounds each create-run and resume call (default 30s).
// Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.hasTimeout = true
	}
}

// WithSnapshotStore checkpoints the run after every change under key.
func WithSnapshotStore(store ports.SnapshotStore, key string) Option {
	return func(c *Client) {
		c.store = store
		c.storeKey = key
	}
}

// New creates an idle Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}

	if c.backend == nil {
		clientOpts := []httpAdapter.ClientOption{httpAdapter.WithClientLogger(c.logger)}
		if c.httpClient != nil {
			clientOpts = append(clientOpts, httpAdapter.WithHTTPClient(c.httpClient))
		}
		if c.validate {
			contract, err := httpAdapter.NewContract(context.Background())
			if err != nil {
				return nil, fmt.Errorf("failed to load contract: %w", err)
			}
			clientOpts = append(clientOpts, httpAdapter.WithContract(contract))
		}
		b, err := httpAdapter.NewClient(baseURL, clientOpts...)
		if err != nil {
			return nil, err
		}
		c.backend = b
	}

	rtOpts := []runtime.Option{
		runtime.WithLogger(c.logger),
		runtime.WithHooks(c.hooks),
	}
	if c.hasTimeout {
		rtOpts = append(rtOpts, runtime.WithTimeout(c.timeout))
	}
	if c.store != nil {
		rtOpts = append(rtOpts, runtime.WithStore(c.store, c.storeKey))
	}
	c.controller = runtime.NewController(c.backend, rtOpts...)
	return c, nil
}

// Start begins a new run. Allowed when idle, completed or failed.
func (c *Client) Start(ctx context.Context, prompt any) error {
	return c.controller.Start(ctx, prompt)
}

// SetInputField records a value for the next resume. Allowed only while
// the run awaits input.
func (c *Client) SetInputField(key string, value any) error {
	return c.controller.SetInputField(key, value)
}

// Resume submits the pending input. Allowed only while the run awaits input.
func (c *Client) Resume(ctx context.Context) error {
	return c.controller.Resume(ctx)
}

// Wait blocks until the run reaches one of states, or comes to rest when
// none are given.
func (c *Client) Wait(ctx context.Context, states ...domain.RunState) (domain.Snapshot, error) {
	return c.controller.Wait(ctx, states...)
}

// Close releases the live stream, if any.
func (c *Client) Close() error {
	return c.controller.Close()
}

// State returns the current lifecycle state.
func (c *Client) State() domain.RunState { return c.controller.State() }

// RunID returns the current run's identifier, empty before the first start.
func (c *Client) RunID() domain.RunID { return c.controller.RunID() }

// Events returns a copy of the payloads received so far.
func (c *Client) Events() []any { return c.controller.Events() }

// Interrupt returns the fields requested by the paused run, or nil.
func (c *Client) Interrupt() domain.InterruptRequest { return c.controller.Interrupt() }

// Pending returns a copy of the input collected for the next resume.
func (c *Client) Pending() domain.PendingInput { return c.controller.Pending() }

// Result returns the final result and whether one was produced.
func (c *Client) Result() (any, bool) { return c.controller.Result() }

// Err returns the failure of a failed run.
func (c *Client) Err() error { return c.controller.Err() }

// Snapshot returns a deep copy of the run.
func (c *Client) Snapshot() domain.Snapshot { return c.controller.Snapshot() }

// Changed returns a channel that is closed on the next change to the run.
func (c *Client) Changed() <-chan struct{} { return c.controller.Changed() }
