package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/aretw0/tether/pkg/ports"
)

// maxResponseSize caps JSON bodies read from the backend.
const maxResponseSize = 4 << 20

var _ ports.Backend = (*Client)(nil)

// Client reaches the workflow backend over HTTP.
//
// Endpoints:
//
//	POST {base}/workflow/start         {"prompt": ...}     -> {"workflow_id": "..."}
//	GET  {base}/workflow/{id}/stream   text/event-stream
//	POST {base}/workflow/{id}/resume   {"user_input": {...}} -> {"status": "...", ...}
type Client struct {
	base     *url.URL
	http     *http.Client
	logger   *slog.Logger
	contract *Contract
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its Timeout must be
// zero or larger than the longest expected stream.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientLogger configures the structured logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContract validates every JSON response against the OpenAPI schemas.
// A violation is reported as a protocol error.
func WithContract(contract *Contract) ClientOption {
	return func(c *Client) {
		c.contract = contract
	}
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing host", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateRun starts a run and returns the identifier assigned by the backend.
func (c *Client) CreateRun(ctx context.Context, prompt any) (domain.RunID, error) {
	const op = "create run"
	raw, err := c.postJSON(ctx, op, c.endpoint("workflow", "start"), map[string]any{"prompt": prompt})
	if err != nil {
		return "", err
	}
	if err := c.validate(op, SchemaStartResponse, raw); err != nil {
		return "", err
	}

	var body struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", &domain.ProtocolError{Op: op, Reason: "undecodable response", Err: err}
	}
	if body.WorkflowID == "" {
		return "", &domain.ProtocolError{Op: op, Reason: "missing workflow_id"}
	}
	c.logger.Debug("run created", "run_id", body.WorkflowID)
	return domain.RunID(body.WorkflowID), nil
}

// Resume submits input for a paused run.
func (c *Client) Resume(ctx context.Context, runID domain.RunID, input domain.PendingInput) (domain.ResumeOutcome, error) {
	const op = "resume"
	if input == nil {
		input = domain.PendingInput{}
	}
	raw, err := c.postJSON(ctx, op, c.endpoint("workflow", string(runID), "resume"), map[string]any{"user_input": input})
	if err != nil {
		return domain.ResumeOutcome{}, err
	}
	if err := c.validate(op, SchemaResumeResponse, raw); err != nil {
		return domain.ResumeOutcome{}, err
	}

	var outcome domain.ResumeOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return domain.ResumeOutcome{}, &domain.ProtocolError{Op: op, Reason: "undecodable response", Err: err}
	}
	if outcome.Status == "" {
		return domain.ResumeOutcome{}, &domain.ProtocolError{Op: op, Reason: "missing status"}
	}
	if outcome.AwaitingInput() && len(outcome.Interrupt) == 0 {
		return domain.ResumeOutcome{}, &domain.ProtocolError{Op: op, Reason: "waiting_for_input without interrupt_data"}
	}
	c.logger.Debug("run resumed", "run_id", string(runID), "status", outcome.Status)
	return outcome, nil
}

// Stream opens the run's event stream. The caller owns the returned body.
func (c *Client) Stream(ctx context.Context, runID domain.RunID) (io.ReadCloser, error) {
	const op = "stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("workflow", string(runID), "stream"), nil)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(op, resp)
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		defer resp.Body.Close()
		return nil, &domain.TransportError{Op: op, Err: fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))}
	}
	return resp.Body, nil
}

func (c *Client) postJSON(ctx context.Context, op, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(op, resp)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	return raw, nil
}

func (c *Client) validate(op, schema string, raw []byte) error {
	if c.contract == nil {
		return nil
	}
	if err := c.contract.Validate(schema, raw); err != nil {
		return &domain.ProtocolError{Op: op, Reason: "response violates contract", Err: err}
	}
	return nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.base.String() + "/" + strings.Join(escaped, "/")
}

// StatusError is wrapped by transport errors caused by a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &domain.TransportError{Op: op, Err: &StatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(raw)),
	}}
}

// IsStatus reports whether err carries an HTTP status error with code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
