package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Server is a scripted workflow backend. Every run created on it plays the
// same Script, pausing where the script asks for input and re-prompting
// until every requested field has been supplied.
type Server struct {
	script   Script
	logger   *slog.Logger
	contract *Contract

	mu   sync.Mutex
	runs map[string]*scriptedRun
}

type scriptedRun struct {
	id        string
	prompt    any
	next      int
	waiting   domain.InterruptRequest
	input     domain.PendingInput
	streaming bool
	// seq identifies the stream that holds the run.
	seq  int
	done bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger configures the structured logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestValidation rejects request bodies violating the contract with 400.
func WithRequestValidation(contract *Contract) ServerOption {
	return func(s *Server) {
		s.contract = contract
	}
}

// NewServer creates a scripted backend.
func NewServer(script Script, opts ...ServerOption) (*Server, error) {
	if err := script.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		script: script,
		logger: logging.NewNop(),
		runs:   make(map[string]*scriptedRun),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the HTTP routes of the backend.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(Spec())
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/workflow", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Get("/{id}/stream", s.handleStream)
		r.Post("/{id}/resume", s.handleResume)
	})
	return r
}

// handleStart handles POST /workflow/start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt any `json:"prompt"`
	}
	if !s.decode(w, r, SchemaStartRequest, &body) {
		return
	}

	run := &scriptedRun{id: uuid.NewString(), prompt: body.Prompt}
	s.mu.Lock()
	s.runs[run.id] = run
	s.mu.Unlock()

	s.logger.Info("run created", "run_id", run.id)
	writeJSON(w, http.StatusOK, map[string]string{"workflow_id": run.id})
}

// handleStream handles GET /workflow/{id}/stream (SSE).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("stream: streaming not supported")
		return
	}

	id := chi.URLParam(r, "id")
	s.mu.Lock()
	run, ok := s.runs[id]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "Unknown workflow", http.StatusNotFound)
		return
	}
	if run.waiting != nil || run.streaming {
		s.mu.Unlock()
		http.Error(w, "Workflow is not streaming", http.StatusConflict)
		return
	}
	run.seq++
	token := run.seq
	run.streaming = true
	start, done := run.next, run.done
	s.mu.Unlock()

	// release must be called with s.mu held.
	release := func() {
		if run.seq == token {
			run.streaming = false
		}
	}
	defer func() {
		s.mu.Lock()
		release()
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, data []byte) {
		if event != "" {
			fmt.Fprintf(w, "event: %s\n", event)
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	emit := func(event string, data []byte) bool {
		send(event, data)
		if s.script.Delay == 0 {
			return r.Context().Err() == nil
		}
		select {
		case <-r.Context().Done():
			return false
		case <-time.After(s.script.Delay):
			return true
		}
	}

	log := s.logger.With("run_id", id)
	if !emit("ping", []byte("connected")) {
		return
	}
	if done {
		send("", []byte("[DONE]"))
		return
	}

	for i := start; i < len(s.script.Segments); i++ {
		seg := s.script.Segments[i]
		for _, ev := range seg.Events {
			if !emit("", mustJSON(ev)) {
				log.Info("stream client disconnected")
				return
			}
		}

		switch {
		case seg.Interrupt != nil:
			req := domain.InterruptRequest(seg.Interrupt)
			s.mu.Lock()
			run.waiting = req.Clone()
			run.input = nil
			run.next = i + 1
			release()
			s.mu.Unlock()
			log.Info("run paused", "fields", req.Keys())
			send("interrupt", mustJSON(map[string]any{"interrupt_data": seg.Interrupt}))
			return

		case seg.Fail != "":
			s.finish(run)
			log.Info("run failed", "reason", seg.Fail)
			send("error", []byte(seg.Fail))
			return
		}

		if i == len(s.script.Segments)-1 {
			if seg.Result != nil && !emit("", mustJSON(map[string]any{"result": seg.Result})) {
				return
			}
		}
	}

	s.finish(run)
	log.Info("run completed")
	send("", []byte("[DONE]"))
}

// handleResume handles POST /workflow/{id}/resume.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserInput domain.PendingInput `json:"user_input"`
	}
	if !s.decode(w, r, SchemaResumeRequest, &body) {
		return
	}

	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		http.Error(w, "Unknown workflow", http.StatusNotFound)
		return
	}
	if run.waiting == nil {
		http.Error(w, "Workflow is not waiting for input", http.StatusConflict)
		return
	}

	if run.input == nil {
		run.input = make(domain.PendingInput)
	}
	maps.Copy(run.input, body.UserInput)

	if missing := run.waiting.Missing(run.input); len(missing) > 0 {
		again := make(domain.InterruptRequest, len(missing))
		for _, key := range missing {
			again[key] = run.waiting[key]
		}
		run.waiting = again
		s.logger.Info("run still missing input", "run_id", id, "fields", missing)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         domain.StatusWaitingForInput,
			"interrupt_data": again,
		})
		return
	}

	run.waiting = nil
	if run.next >= len(s.script.Segments) {
		run.done = true
		var result any
		if n := len(s.script.Segments); n > 0 {
			result = s.script.Segments[n-1].Result
		}
		s.logger.Info("run settled on resume", "run_id", id)
		writeJSON(w, http.StatusOK, map[string]any{"status": domain.StatusCompleted, "result": result})
		return
	}

	s.logger.Info("run resumed", "run_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "continuing"})
}

func (s *Server) finish(run *scriptedRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.done = true
	run.next = len(s.script.Segments)
}

// Runs returns the number of runs created so far.
func (s *Server) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// decode reads a JSON body into out, validating it first when a contract is set.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema string, out any) bool {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxResponseSize))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if s.contract != nil {
		if err := s.contract.Validate(schema, raw); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
			s.logger.Warn("request rejected", "schema", schema, "error", err)
			return false
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("invalid request body", "error", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encode frame: %v", err))
	}
	return b
}
