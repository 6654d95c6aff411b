package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
	"github.com/aretw0/tether/pkg/stream"
)

// DefaultTimeout bounds each create-run and resume call.
const DefaultTimeout = 30 * time.Second

// ErrClosed is recorded when Close abandons a run that was still streaming.
var ErrClosed = errors.New("run abandoned: controller closed")

// Controller drives one remote run through its lifecycle.
// All operations are serialized by a single mutex; stream events are applied
// by a dispatch goroutine per session, one at a time and in arrival order.
type Controller struct {
	backend ports.Backend
	opener  *stream.Opener
	logger  *slog.Logger
	hooks   domain.LifecycleHooks
	timeout time.Duration

	store    ports.SnapshotStore
	storeKey string

	mu        sync.Mutex
	state     domain.RunState
	runID     domain.RunID
	events    []any
	interrupt domain.InterruptRequest
	pending   domain.PendingInput

	// staged holds the result carried by a data frame until the terminal marker.
	staged    any
	hasStaged bool
	result    any
	hasResult bool

	err       error
	session   *stream.Session
	changed   chan struct{}
	updatedAt time.Time
}

// NewController creates an idle controller talking to backend.
func NewController(backend ports.Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		logger:  logging.NewNop(),
		timeout: DefaultTimeout,
		state:   domain.StateIdle,
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.opener = stream.NewOpener(backend, stream.WithLogger(c.logger))
	c.updatedAt = time.Now().UTC()
	return c
}

// Start begins a new run with prompt. It is allowed in idle, completed and
// failed. The previous run's events, result, input and error are discarded.
// A failure of the create-run call moves the run to failed and is returned.
func (c *Controller) Start(ctx context.Context, prompt any) error {
	c.mu.Lock()
	if !c.state.CanStart() {
		state := c.state
		c.mu.Unlock()
		return &domain.StateError{Op: "start", State: state}
	}
	c.runID = ""
	c.events = nil
	c.interrupt = nil
	c.pending = nil
	c.staged, c.hasStaged = nil, false
	c.result, c.hasResult = nil, false
	c.err = nil
	c.transitionLocked(ctx, domain.StateStarting)
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	runID, err := c.backend.CreateRun(callCtx, prompt)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil && runID == "" {
		err = &domain.ProtocolError{Op: "start", Reason: "empty run id"}
	}
	if err != nil {
		err = domain.AsTransport("start", err)
		c.failLocked(ctx, err)
		return err
	}

	c.runID = runID
	c.logger.Info("run started", "run_id", string(runID))
	if err := c.openSessionLocked(ctx); err != nil {
		c.failLocked(ctx, err)
		return err
	}
	return nil
}

// SetInputField records value for key in the pending input. It is allowed
// only while the run awaits input and never changes the run state.
func (c *Controller) SetInputField(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.StateAwaitingInput {
		return &domain.StateError{Op: "set input field", State: c.state}
	}
	if key == "" {
		return fmt.Errorf("set input field: %w", domain.ErrEmptyKey)
	}
	if c.pending == nil {
		c.pending = make(domain.PendingInput)
	}
	c.pending[key] = domain.CloneValue(value)
	c.touchLocked()
	return nil
}

// Resume submits the pending input. The run either pauses again, settles
// from the response, or goes back to streaming on a new session.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.state != domain.StateAwaitingInput {
		state := c.state
		c.mu.Unlock()
		return &domain.StateError{Op: "resume", State: state}
	}
	runID := c.runID
	input := c.pending.Clone()
	if input == nil {
		input = domain.PendingInput{}
	}
	c.interrupt = nil
	c.transitionLocked(ctx, domain.StateResuming)
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	outcome, err := c.backend.Resume(callCtx, runID, input)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		err = domain.AsTransport("resume", err)
		c.failLocked(ctx, err)
		return err
	}

	log := c.logger.With("run_id", string(runID), "status", outcome.Status)
	switch {
	case outcome.AwaitingInput():
		if len(outcome.Interrupt) == 0 {
			err := &domain.ProtocolError{Op: "resume", Reason: "waiting_for_input without interrupt_data"}
			c.failLocked(ctx, err)
			return err
		}
		log.Info("run needs more input", "fields", outcome.Interrupt.Keys())
		c.interrupt = outcome.Interrupt.Clone()
		c.pending = nil
		c.transitionLocked(ctx, domain.StateAwaitingInput)
		return nil

	case outcome.Failed():
		err := &domain.RemoteError{Status: outcome.Status, Message: outcome.Message}
		c.failLocked(ctx, err)
		return err

	case outcome.Settled():
		log.Info("run settled by resume")
		c.pending = nil
		if outcome.Result != nil {
			c.staged, c.hasStaged = domain.CloneValue(outcome.Result), true
		}
		c.completeLocked(ctx)
		return nil
	}

	c.pending = nil
	if err := c.openSessionLocked(ctx); err != nil {
		c.failLocked(ctx, err)
		return err
	}
	return nil
}

// Close tears down the live session. A run that was still streaming is
// moved to failed with ErrClosed. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	if c.state == domain.StateStreaming {
		c.failLocked(context.Background(), ErrClosed)
		return nil
	}
	c.closeSessionLocked()
	return nil
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.timeout <= 0 {
		return detached, func() {}
	}
	return context.WithTimeout(detached, c.timeout)
}

func (c *Controller) openSessionLocked(ctx context.Context) error {
	sess, err := c.opener.Open(ctx, c.runID)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	c.session = sess
	c.transitionLocked(ctx, domain.StateStreaming)
	go c.dispatch(sess)
	return nil
}

func (c *Controller) closeSessionLocked() {
	if c.session == nil {
		return
	}
	_ = c.session.Close()
	c.session = nil
}

func (c *Controller) dispatch(sess *stream.Session) {
	for ev := range sess.Events() {
		c.onStreamEvent(sess, ev)
	}
}

// onStreamEvent applies one event delivered by sess.
func (c *Controller) onStreamEvent(sess *stream.Session, ev domain.StreamEvent) {
	ctx := context.Background()
	c.mu.Lock()
	defer c.mu.Unlock()

	if sess != c.session {
		c.logger.Debug("dropping event from stale session", "run_id", string(ev.RunID), "kind", string(ev.Kind))
		return
	}
	if c.hooks.OnStreamEvent != nil {
		c.hooks.OnStreamEvent(ctx, ev)
	}

	switch ev.Kind {
	case domain.EventData:
		c.events = append(c.events, domain.CloneValue(ev.Payload))
		if ev.HasResult && !c.hasStaged {
			c.staged, c.hasStaged = domain.CloneValue(ev.Result), true
		}
		c.touchLocked()

	case domain.EventInterrupt:
		c.closeSessionLocked()
		c.interrupt = ev.Interrupt.Clone()
		c.pending = nil
		c.logger.Info("run paused for input", "run_id", string(c.runID), "fields", c.interrupt.Keys())
		c.transitionLocked(ctx, domain.StateAwaitingInput)

	case domain.EventTerminal:
		c.closeSessionLocked()
		c.completeLocked(ctx)

	case domain.EventTransportError:
		err := ev.Err
		if err == nil {
			err = &domain.TransportError{Op: "stream", Err: errors.New("unknown stream failure")}
		}
		c.failLocked(ctx, err)
	}
}

func (c *Controller) completeLocked(ctx context.Context) {
	if c.hasStaged {
		c.result, c.hasResult = c.staged, true
	}
	c.staged, c.hasStaged = nil, false
	c.logger.Info("run completed", "run_id", string(c.runID), "has_result", c.hasResult)
	c.transitionLocked(ctx, domain.StateCompleted)
}

func (c *Controller) failLocked(ctx context.Context, err error) {
	c.closeSessionLocked()
	if c.state.IsTerminal() {
		c.logger.Warn("ignoring failure of settled run", "run_id", string(c.runID), "state", string(c.state), "error", err)
		return
	}
	c.interrupt = nil
	c.staged, c.hasStaged = nil, false
	c.err = err
	c.logger.Error("run failed", "run_id", string(c.runID), "error", err)
	c.transitionLocked(ctx, domain.StateFailed)
}

// transitionLocked moves the run to `to` if the edge exists, then notifies
// observers. Edges outside the state machine are refused and logged.
func (c *Controller) transitionLocked(ctx context.Context, to domain.RunState) bool {
	from := c.state
	if !domain.CanTransition(from, to) {
		c.logger.Error("refusing invalid transition", "from", string(from), "to", string(to))
		return false
	}
	c.state = to
	c.logger.Debug("state changed", "run_id", string(c.runID), "from", string(from), "to", string(to))
	c.touchLocked()
	if c.hooks.OnTransition != nil {
		c.hooks.OnTransition(ctx, domain.Transition{
			RunID: c.runID,
			From:  from,
			To:    to,
			At:    c.updatedAt,
			Err:   c.err,
		})
	}
	return true
}

// touchLocked wakes waiters and checkpoints the run after a mutation.
func (c *Controller) touchLocked() {
	c.updatedAt = time.Now().UTC()
	close(c.changed)
	c.changed = make(chan struct{})
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeoutOr(5*time.Second))
	defer cancel()
	if err := c.store.Save(ctx, c.storeKey, c.snapshotLocked()); err != nil {
		c.logger.Warn("failed to checkpoint run", "run_id", string(c.runID), "error", err)
	}
}

func (c *Controller) timeoutOr(d time.Duration) time.Duration {
	if c.timeout > 0 && c.timeout < d {
		return c.timeout
	}
	return d
}

// State returns the current run state.
func (c *Controller) State() domain.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the current run's identifier, empty before create-run succeeds.
func (c *Controller) RunID() domain.RunID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Events returns a copy of the payloads received for the current run.
func (c *Controller) Events() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eventsLocked()
}

func (c *Controller) eventsLocked() []any {
	out := make([]any, len(c.events))
	for i, ev := range c.events {
		out[i] = domain.CloneValue(ev)
	}
	return out
}

// Interrupt returns the open input request, nil unless the run awaits input.
func (c *Controller) Interrupt() domain.InterruptRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupt.Clone()
}

// Pending returns a copy of the input collected so far.
func (c *Controller) Pending() domain.PendingInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Clone()
}

// Result returns the run's result. The second value is false until the run
// has completed with one.
func (c *Controller) Result() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneValue(c.result), c.hasResult
}

// Err returns the reason the run failed, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Snapshot returns a deep copy of the whole run state.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		State:     c.state,
		RunID:     c.runID,
		Events:    c.eventsLocked(),
		Interrupt: c.interrupt.Clone(),
		Pending:   c.pending.Clone(),
		Result:    domain.CloneValue(c.result),
		HasResult: c.hasResult,
		Err:       c.err,
		UpdatedAt: c.updatedAt,
	}
	if c.err != nil {
		snap.Error = c.err.Error()
	}
	return snap
}

// Changed returns a channel that is closed on the next mutation.
func (c *Controller) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Wait blocks until the run is in one of states and returns its snapshot.
// With no states it waits for the run to come to rest: awaiting input,
// completed or failed.
func (c *Controller) Wait(ctx context.Context, states ...domain.RunState) (domain.Snapshot, error) {
	if len(states) == 0 {
		states = []domain.RunState{domain.StateAwaitingInput, domain.StateCompleted, domain.StateFailed}
	}
	for {
		c.mu.Lock()
		if slices.Contains(states, c.state) {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			return snap, nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}
