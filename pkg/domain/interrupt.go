package domain

import "sort"

// InterruptRequest maps each field the paused run needs to a human-readable prompt.
type InterruptRequest map[string]string

// Keys returns the requested field keys in sorted order.
func (r InterruptRequest) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Missing returns the requested keys that have no value in input.
// The controller never enforces this; the backend re-prompts on its own.
func (r InterruptRequest) Missing(input PendingInput) []string {
	var missing []string
	for _, k := range r.Keys() {
		if _, ok := input[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Clone returns a copy, preserving nil.
func (r InterruptRequest) Clone() InterruptRequest {
	if r == nil {
		return nil
	}
	out := make(InterruptRequest, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// PendingInput maps field keys to user-supplied values awaiting submission.
type PendingInput map[string]any

// Clone returns a deep copy, preserving nil.
func (p PendingInput) Clone() PendingInput {
	if p == nil {
		return nil
	}
	out := make(PendingInput, len(p))
	for k, v := range p {
		out[k] = CloneValue(v)
	}
	return out
}

// Resume statuses understood by the controller. Any other status means the
// run keeps going and its events must be streamed again.
const (
	StatusWaitingForInput = "waiting_for_input"
	StatusCompleted       = "completed"
	StatusFailed          = "failed"
	StatusError           = "error"
)

// ResumeOutcome is the backend's answer to a resume call.
type ResumeOutcome struct {
	Status    string           `json:"status"`
	Interrupt InterruptRequest `json:"interrupt_data,omitempty"`
	Result    any              `json:"result,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// AwaitingInput reports whether the run paused again.
func (o ResumeOutcome) AwaitingInput() bool {
	return o.Status == StatusWaitingForInput
}

// Settled reports whether the resume call itself completed the run.
func (o ResumeOutcome) Settled() bool {
	return o.Status == StatusCompleted
}

// Failed reports whether the backend reported the run as failed.
func (o ResumeOutcome) Failed() bool {
	return o.Status == StatusFailed || o.Status == StatusError
}

// CloneValue deep-copies a decoded JSON value (objects, arrays and scalars).
// Other types are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = CloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = CloneValue(val)
		}
		return out
	default:
		return v
	}
}
