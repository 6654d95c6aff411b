package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
)

// Opener creates streaming sessions and enforces one live session per run.
type Opener struct {
	streamer ports.Streamer
	logger   *slog.Logger
	maxFrame int

	mu   sync.Mutex
	live map[domain.RunID]*Session
}

// NewOpener creates an Opener that connects through streamer.
func NewOpener(streamer ports.Streamer, opts ...Option) *Opener {
	o := &Opener{
		streamer: streamer,
		logger:   logging.NewNop(),
		maxFrame: MaxFrameSize,
		live:     make(map[domain.RunID]*Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open starts a session for runID. The connection is established by the
// session's reader goroutine; a failure to connect is delivered as a
// transport error event. The returned session must be closed by the caller.
//
// Opening a second session for a run whose session is still live returns
// domain.ErrSessionActive.
func (o *Opener) Open(ctx context.Context, runID domain.RunID) (*Session, error) {
	if runID == "" {
		return nil, errors.New("open session: empty run id")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.live[runID]; busy {
		return nil, fmt.Errorf("open session for %s: %w", runID, domain.ErrSessionActive)
	}

	// The session outlives the call that opened it; only Close tears it down.
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		runID:  runID,
		opener: o,
		logger: o.logger.With("run_id", string(runID)),
		events: make(chan domain.StreamEvent),
		done:   make(chan struct{}),
		ctx:    sctx,
		cancel: cancel,
	}
	o.live[runID] = s
	go s.run(o.streamer)

	s.logger.Debug("stream session opened")
	return s, nil
}

// Live reports whether runID has an open session.
func (o *Opener) Live(runID domain.RunID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.live[runID]
	return ok
}

func (o *Opener) release(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.live[s.runID] == s {
		delete(o.live, s.runID)
	}
}

// Session is one server-push connection scoped to a single run.
// Events are delivered on Events() in arrival order; the channel is closed
// when the session ends.
type Session struct {
	runID  domain.RunID
	opener *Opener
	logger *slog.Logger

	events chan domain.StreamEvent
	done   chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// RunID returns the run this session streams.
func (s *Session) RunID() domain.RunID {
	return s.runID
}

// Events returns the channel of parsed events. It is unbuffered: the reader
// waits for each event to be received before parsing the next frame.
func (s *Session) Events() <-chan domain.StreamEvent {
	return s.events
}

// Done is closed once the reader goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close tears the connection down and waits for the reader to exit.
// It is idempotent and safe to call from the goroutine consuming Events.
// No event is delivered after Close returns.
func (s *Session) Close() error {
	s.shutdown()
	<-s.done
	return nil
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.logger.Debug("stream session closed")
	})
}

func (s *Session) run(streamer ports.Streamer) {
	defer close(s.done)
	defer close(s.events)
	defer s.opener.release(s)

	body, err := streamer.Stream(s.ctx, s.runID)
	if err != nil {
		if s.ctx.Err() == nil {
			s.emit(domain.TransportErrorEvent(s.runID, domain.AsTransport("stream", err)))
		}
		s.shutdown()
		return
	}
	defer body.Close()
	stop := context.AfterFunc(s.ctx, func() { _ = body.Close() })
	defer stop()

	frames := NewFrameReaderSize(body, s.opener.maxFrame)
	for {
		frame, err := frames.Next()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = domain.ErrStreamEnded
			}
			s.emit(domain.TransportErrorEvent(s.runID, &domain.TransportError{Op: "stream", Err: err}))
			s.shutdown()
			return
		}

		ev, ok := Classify(s.runID, frame)
		if !ok {
			s.logger.Debug("ignoring frame", "event", frame.Event)
			continue
		}
		if !s.emit(ev) {
			return
		}
		if ev.Kind.Closes() {
			s.shutdown()
			return
		}
	}
}

// emit hands ev to the consumer unless the session is closed first.
func (s *Session) emit(ev domain.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}
