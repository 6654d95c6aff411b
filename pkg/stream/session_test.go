package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticStreamer serves a fixed body for every run.
type staticStreamer struct {
	body string
	err  error
}

func (s staticStreamer) Stream(ctx context.Context, runID domain.RunID) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

// pipeStreamer hands out pipes so tests control when frames arrive.
type pipeStreamer struct {
	mu      sync.Mutex
	writers []*io.PipeWriter
	opened  chan struct{}
}

func newPipeStreamer() *pipeStreamer {
	return &pipeStreamer{opened: make(chan struct{}, 8)}
}

func (p *pipeStreamer) Stream(ctx context.Context, runID domain.RunID) (io.ReadCloser, error) {
	r, w := io.Pipe()
	p.mu.Lock()
	p.writers = append(p.writers, w)
	p.mu.Unlock()
	p.opened <- struct{}{}
	return r, nil
}

func (p *pipeStreamer) writer(t *testing.T, i int) *io.PipeWriter {
	t.Helper()
	select {
	case <-p.opened:
	case <-time.After(time.Second):
		t.Fatal("stream was never requested")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writers[i]
}

func collect(t *testing.T, s *Session) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("session did not finish")
			return out
		}
	}
}

func kinds(events []domain.StreamEvent) []domain.EventKind {
	out := make([]domain.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestSession_DataThenTerminal(t *testing.T) {
	body := "event: ping\ndata: connected\n\n" +
		"data: {\"step\":1}\n\n" +
		"data: {\"step\":2,\"result\":{\"vmId\":\"vm-42\"}}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"step\":3}\n\n"

	tests := map[string]string{
		"plain":      "",
		"id only":    "id: 7\n\n",
		"empty data": "data:\n\n",
		"keep-alive": ": ping\n\n",
	}
	for name, prefix := range tests {
		t.Run(name, func(t *testing.T) {
			opener := NewOpener(staticStreamer{body: prefix + body})

			s, err := opener.Open(context.Background(), "run-1")
			require.NoError(t, err)
			defer s.Close()

			events := collect(t, s)
			assert.Equal(t, []domain.EventKind{domain.EventData, domain.EventData, domain.EventTerminal}, kinds(events))
			assert.Equal(t, map[string]any{"step": 1.0}, events[0].Payload)
			assert.True(t, events[1].HasResult)
			assert.False(t, opener.Live("run-1"))
		})
	}
}

func TestSession_OversizedFrame(t *testing.T) {
	opener := NewOpener(staticStreamer{body: "data: {\"step\":1}\n\ndata: \"" + strings.Repeat("x", 256) + "\"\n\n"},
		WithMaxFrameSize(64))
	s, err := opener.Open(context.Background(), "run-1")
	require.NoError(t, err)
	defer s.Close()

	events := collect(t, s)
	require.Equal(t, []domain.EventKind{domain.EventData, domain.EventTransportError}, kinds(events))
	var te *domain.TransportError
	require.True(t, errors.As(events[1].Err, &te))
	assert.ErrorIs(t, events[1].Err, ErrMalformedFrame)
}

func TestSession_InterruptClosesWithoutWaiting(t *testing.T) {
	streamer := newPipeStreamer()
	opener := NewOpener(streamer)

	s, err := opener.Open(context.Background(), "run-1")
	require.NoError(t, err)

	w := streamer.writer(t, 0)
	go func() {
		_, _ = io.WriteString(w, "data: {\"step\":1}\n\nevent: interrupt\ndata: {\"interrupt_data\":{\"region\":\"Select a region\"}}\n\n")
		// The writer never closes: the session must not wait for more frames.
	}()

	events := collect(t, s)
	require.Equal(t, []domain.EventKind{domain.EventData, domain.EventInterrupt}, kinds(events))
	assert.Equal(t, domain.InterruptRequest{"region": "Select a region"}, events[1].Interrupt)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not close after interrupt")
	}
}

func TestSession_MalformedFrame(t *testing.T) {
	opener := NewOpener(staticStreamer{body: "data: {broken\n\ndata: {\"step\":1}\n\n"})
	s, err := opener.Open(context.Background(), "run-1")
	require.NoError(t, err)
	defer s.Close()

	events := collect(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTransportError, events[0].Kind)
	assert.ErrorIs(t, events[0].Err, ErrMalformedFrame)
}

func TestSession_EndWithoutSentinel(t *testing.T) {
	opener := NewOpener(staticStreamer{body: "data: {\"step\":1}\n\n"})
	s, err := opener.Open(context.Background(), "run-1")
	require.NoError(t, err)
	defer s.Close()

	events := collect(t, s)
	require.Equal(t, []domain.EventKind{domain.EventData, domain.EventTransportError}, kinds(events))
	assert.ErrorIs(t, events[1].Err, domain.ErrStreamEnded)
}

func TestSession_ConnectFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	opener := NewOpener(staticStreamer{err: dialErr})
	s, err := opener.Open(context.Background(), "run-1")
	require.NoError(t, err)
	defer s.Close()

	events := collect(t, s)
	require.Len(t, events, 1)
	var te *domain.TransportError
	require.True(t, errors.As(events[0].Err, &te))
	assert.ErrorIs(t, events[0].Err, dialErr)
}

func TestSession_CloseIsIdempotentAndStopsDelivery(t *testing.T) {
	streamer := newPipeStreamer()
	opener := NewOpener(streamer)

	s, err := opener.Open(context.Background(), "run-1")
	require.NoError(t, err)
	w := streamer.writer(t, 0)

	go func() { _, _ = io.WriteString(w, "data: {\"step\":1}\n\n") }()
	ev := <-s.Events()
	assert.Equal(t, domain.EventData, ev.Kind)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	// Writes after close fail because the body was torn down.
	_, err = io.WriteString(w, "data: {\"step\":2}\n\n")
	assert.Error(t, err)

	_, open := <-s.Events()
	assert.False(t, open, "events channel must be closed after Close")
}

func TestOpener_SingleLiveSessionPerRun(t *testing.T) {
	streamer := newPipeStreamer()
	opener := NewOpener(streamer)

	first, err := opener.Open(context.Background(), "run-1")
	require.NoError(t, err)

	_, err = opener.Open(context.Background(), "run-1")
	assert.ErrorIs(t, err, domain.ErrSessionActive)

	other, err := opener.Open(context.Background(), "run-2")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, first.Close())
	again, err := opener.Open(context.Background(), "run-1")
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}

func TestOpener_EmptyRunID(t *testing.T) {
	_, err := NewOpener(staticStreamer{}).Open(context.Background(), "")
	assert.Error(t, err)
}
