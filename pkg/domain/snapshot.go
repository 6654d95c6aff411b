package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ErrNoResult is returned by DecodeResult when the run has not produced a result.
var ErrNoResult = errors.New("run has no result")

// Snapshot is a read-only copy of the controller's run state.
// Mutating a Snapshot never affects the controller.
type Snapshot struct {
	State     RunState         `json:"state"`
	RunID     RunID            `json:"run_id,omitempty"`
	Events    []any            `json:"events"`
	Interrupt InterruptRequest `json:"interrupt,omitempty"`
	Pending   PendingInput     `json:"pending,omitempty"`
	Result    any              `json:"result,omitempty"`
	HasResult bool             `json:"has_result,omitempty"`

	// Error is the terminal failure message (StateFailed only).
	Error string `json:"error,omitempty"`
	// Err is the terminal failure itself. It is not persisted.
	Err error `json:"-"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Events != nil {
		out.Events = make([]any, len(s.Events))
		for i, ev := range s.Events {
			out.Events[i] = CloneValue(ev)
		}
	}
	out.Interrupt = s.Interrupt.Clone()
	out.Pending = s.Pending.Clone()
	out.Result = CloneValue(s.Result)
	return out
}

// DecodeResult decodes the result value into out (a pointer to a struct or map).
// Struct fields are matched using their `json` tags.
func (s Snapshot) DecodeResult(out any) error {
	if !s.HasResult {
		return ErrNoResult
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build result decoder: %w", err)
	}
	if err := dec.Decode(s.Result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
