package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidState is matched by every StateError.
var ErrInvalidState = errors.New("operation not allowed in current run state")

// ErrSessionActive is returned when a session is opened for a run that already has a live one.
var ErrSessionActive = errors.New("stream session already open for run")

// ErrStreamEnded is wrapped when the connection closes before the terminal marker.
var ErrStreamEnded = errors.New("stream ended without terminal marker")

// ErrEmptyKey is returned when input is set for an empty field key.
var ErrEmptyKey = errors.New("empty input field key")

// ErrSnapshotNotFound is returned when no snapshot is stored under a key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// StateError reports an operation invoked while the run state disallows it.
// It represents caller misuse and never changes the run.
type StateError struct {
	Op    string
	State RunState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed in state %q", e.Op, e.State)
}

// Is makes errors.Is(err, ErrInvalidState) hold.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// TransportError reports a network, connection or framing failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a response whose shape violates the backend contract.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: protocol error: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: protocol error: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RemoteError reports a run the backend declared failed.
type RemoteError struct {
	Status  string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("run failed remotely (status %q)", e.Status)
	}
	return fmt.Sprintf("run failed remotely (status %q): %s", e.Status, e.Message)
}

// AsTransport wraps err in a TransportError unless it already is a
// TransportError or ProtocolError.
func AsTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	var pe *ProtocolError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
