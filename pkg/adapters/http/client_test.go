package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/tether/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURLs(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "ftp://host", "http://"} {
		_, err := NewClient(raw)
		assert.Error(t, err, raw)
	}
}

func TestClient_CreateRun(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/workflow/start", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]string{"workflow_id": "run-1"})
	})

	id, err := c.CreateRun(context.Background(), "Create Azure VM")
	require.NoError(t, err)
	assert.Equal(t, domain.RunID("run-1"), id)
	assert.Equal(t, map[string]any{"prompt": "Create Azure VM"}, got)
}

func TestClient_CreateRunFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		protocol bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom"},
		{name: "missing id", status: http.StatusOK, body: `{}`, protocol: true},
		{name: "not json", status: http.StatusOK, body: `<html>`, protocol: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.CreateRun(context.Background(), "x")
			require.Error(t, err)
			var pe *domain.ProtocolError
			var te *domain.TransportError
			if tt.protocol {
				assert.True(t, errors.As(err, &pe), "want protocol error, got %v", err)
			} else {
				assert.True(t, errors.As(err, &te), "want transport error, got %v", err)
				assert.True(t, IsStatus(err, tt.status))
			}
		})
	}
}

func TestClient_CreateRunUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	_, err = c.CreateRun(context.Background(), "x")
	var te *domain.TransportError
	assert.True(t, errors.As(err, &te))
}

func TestClient_Resume(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workflow/run-1/resume", r.URL.Path)
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if _, ok := body["user_input"]["size"]; ok {
			writeJSON(w, http.StatusOK, map[string]any{"status": "continuing"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "waiting_for_input",
			"interrupt_data": map[string]string{"size": "Pick a VM size"},
		})
	})

	out, err := c.Resume(context.Background(), "run-1", domain.PendingInput{"region": "eastus"})
	require.NoError(t, err)
	assert.True(t, out.AwaitingInput())
	assert.Equal(t, domain.InterruptRequest{"size": "Pick a VM size"}, out.Interrupt)

	out, err = c.Resume(context.Background(), "run-1", domain.PendingInput{"size": "B2s"})
	require.NoError(t, err)
	assert.Equal(t, "continuing", out.Status)
	assert.False(t, out.AwaitingInput())
}

func TestClient_ResumeProtocolErrors(t *testing.T) {
	for name, body := range map[string]string{
		"missing status":            `{}`,
		"waiting without interrupt": `{"status":"waiting_for_input"}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			_, err := c.Resume(context.Background(), "run-1", nil)
			var pe *domain.ProtocolError
			assert.True(t, errors.As(err, &pe), "got %v", err)
		})
	}
}

func TestClient_ContractValidation(t *testing.T) {
	contract, err := NewContract(context.Background())
	require.NoError(t, err)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"workflow_id": 42}`)
	}, WithContract(contract))

	_, err = c.CreateRun(context.Background(), "x")
	var pe *domain.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "response violates contract", pe.Reason)
}

func TestClient_Stream(t *testing.T) {
	t.Run("event stream", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/workflow/run-1/stream", r.URL.Path)
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
		})
		body, err := c.Stream(context.Background(), "run-1")
		require.NoError(t, err)
		defer body.Close()
		raw, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "data: [DONE]\n\n", string(raw))
	})

	t.Run("unknown run", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Unknown workflow", http.StatusNotFound)
		})
		_, err := c.Stream(context.Background(), "run-9")
		var te *domain.TransportError
		require.True(t, errors.As(err, &te))
		assert.True(t, IsStatus(err, http.StatusNotFound))
	})

	t.Run("wrong content type", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"oops": "json"})
		})
		_, err := c.Stream(context.Background(), "run-1")
		var te *domain.TransportError
		assert.True(t, errors.As(err, &te))
	})
}
