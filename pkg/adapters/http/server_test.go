package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScriptedBackend(t *testing.T, script Script, opts ...ServerOption) (*Server, *Client) {
	t.Helper()
	srv, err := NewServer(script, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c, err := NewClient(ts.URL)
	require.NoError(t, err)
	return srv, c
}

// readEvents drains a stream into classified events.
func readEvents(t *testing.T, c *Client, runID domain.RunID) []domain.StreamEvent {
	t.Helper()
	body, err := c.Stream(context.Background(), runID)
	require.NoError(t, err)
	defer body.Close()

	var events []domain.StreamEvent
	frames := stream.NewFrameReader(body)
	for {
		f, err := frames.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		if ev, ok := stream.Classify(runID, f); ok {
			events = append(events, ev)
			if ev.Kind.Closes() {
				return events
			}
		}
	}
}

func twoPauseScript() Script {
	return Script{
		Segments: []Segment{
			{Events: []map[string]any{{"step": 1}}, Interrupt: map[string]string{"region": "Select a region"}},
			{Events: []map[string]any{{"step": 2}}, Interrupt: map[string]string{"size": "Pick a VM size", "admin": "Admin user"}},
			{Events: []map[string]any{{"step": 3}}, Result: map[string]any{"vmId": "vm-42"}},
		},
	}
}

func TestServer_PlaysScript(t *testing.T) {
	srv, c := newScriptedBackend(t, twoPauseScript())
	ctx := context.Background()

	id, err := c.CreateRun(ctx, "Create Azure VM")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Runs())

	events := readEvents(t, c, id)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventData, events[0].Kind)
	assert.Equal(t, domain.InterruptRequest{"region": "Select a region"}, events[1].Interrupt)

	out, err := c.Resume(ctx, id, domain.PendingInput{"region": "eastus"})
	require.NoError(t, err)
	assert.Equal(t, "continuing", out.Status)

	events = readEvents(t, c, id)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventInterrupt, events[1].Kind)

	// Partial input is re-prompted with only the missing keys.
	out, err = c.Resume(ctx, id, domain.PendingInput{"size": "B2s"})
	require.NoError(t, err)
	assert.True(t, out.AwaitingInput())
	assert.Equal(t, domain.InterruptRequest{"admin": "Admin user"}, out.Interrupt)

	out, err = c.Resume(ctx, id, domain.PendingInput{"admin": "azureuser"})
	require.NoError(t, err)
	assert.Equal(t, "continuing", out.Status)

	events = readEvents(t, c, id)
	require.Len(t, events, 3)
	assert.True(t, events[1].HasResult)
	assert.Equal(t, map[string]any{"vmId": "vm-42"}, events[1].Result)
	assert.Equal(t, domain.EventTerminal, events[2].Kind)

	// A finished run only replays the terminal marker.
	events = readEvents(t, c, id)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTerminal, events[0].Kind)
}

func TestServer_SettlesOnResumeWhenNothingLeft(t *testing.T) {
	script := Script{Segments: []Segment{
		{Events: []map[string]any{{"step": 1}}, Interrupt: map[string]string{"confirm": "Proceed?"}, Result: "done"},
	}}
	_, c := newScriptedBackend(t, script)
	ctx := context.Background()

	id, err := c.CreateRun(ctx, "x")
	require.NoError(t, err)
	readEvents(t, c, id)

	out, err := c.Resume(ctx, id, domain.PendingInput{"confirm": "yes"})
	require.NoError(t, err)
	assert.True(t, out.Settled())
	assert.Equal(t, "done", out.Result)
}

func TestServer_FailSegment(t *testing.T) {
	_, c := newScriptedBackend(t, Script{Segments: []Segment{{Fail: "quota exceeded"}}})
	id, err := c.CreateRun(context.Background(), "x")
	require.NoError(t, err)

	events := readEvents(t, c, id)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTransportError, events[0].Kind)
	assert.Contains(t, events[0].Err.Error(), "quota exceeded")
}

func TestServer_Conflicts(t *testing.T) {
	_, c := newScriptedBackend(t, twoPauseScript())
	ctx := context.Background()

	_, err := c.Stream(ctx, "no-such-run")
	assert.True(t, IsStatus(err, http.StatusNotFound))

	id, err := c.CreateRun(ctx, "x")
	require.NoError(t, err)

	_, err = c.Resume(ctx, id, domain.PendingInput{"region": "eastus"})
	assert.True(t, IsStatus(err, http.StatusConflict), "resume before any interrupt")

	readEvents(t, c, id)
	_, err = c.Stream(ctx, id)
	assert.True(t, IsStatus(err, http.StatusConflict), "stream while waiting for input")
}

func TestServer_RequestValidation(t *testing.T) {
	contract, err := NewContract(context.Background())
	require.NoError(t, err)
	srv, err := NewServer(twoPauseScript(), WithRequestValidation(contract))
	require.NoError(t, err)

	for name, body := range map[string]string{
		"missing prompt": `{}`,
		"not json":       `prompt=x`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/workflow/start", bytes.NewBufferString(body))
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestServer_ServesSpec(t *testing.T) {
	srv, err := NewServer(DefaultScript())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/workflow/{id}/resume")
}
