package domain

// RunID names one workflow execution. It is assigned by the backend when the
// run is created and never changes afterwards.
type RunID string

// RunState defines the lifecycle phase of the current run.
type RunState string

const (
	StateIdle          RunState = "idle"           // No run started yet
	StateStarting      RunState = "starting"       // Create-run call outstanding
	StateStreaming     RunState = "streaming"      // Session open, events flowing
	StateAwaitingInput RunState = "awaiting_input" // Run paused on an interrupt
	StateResuming      RunState = "resuming"       // Resume call outstanding
	StateCompleted     RunState = "completed"      // Sink: run settled with success
	StateFailed        RunState = "failed"         // Sink: transport, protocol or remote failure
)

// transitions lists the allowed edges of the run state machine.
var transitions = map[RunState][]RunState{
	StateIdle:          {StateStarting},
	StateStarting:      {StateStreaming},
	StateStreaming:     {StateCompleted, StateAwaitingInput},
	StateAwaitingInput: {StateResuming},
	StateResuming:      {StateStreaming, StateAwaitingInput, StateCompleted},
	StateCompleted:     {StateStarting},
	StateFailed:        {StateStarting},
}

// CanTransition reports whether the state machine allows moving from one state to another.
// Every non-terminal state may fail.
func CanTransition(from, to RunState) bool {
	if to == StateFailed {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state is a sink (completed or failed).
func (s RunState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanStart reports whether a fresh run may be started from this state.
func (s RunState) CanStart() bool {
	return s == StateIdle || s.IsTerminal()
}

// IsBusy reports whether a start or resume call is outstanding.
func (s RunState) IsBusy() bool {
	return s == StateStarting || s == StateResuming
}

// String implements fmt.Stringer.
func (s RunState) String() string {
	return string(s)
}

// AllStates returns every run state in declaration order.
func AllStates() []RunState {
	return []RunState{
		StateIdle,
		StateStarting,
		StateStreaming,
		StateAwaitingInput,
		StateResuming,
		StateCompleted,
		StateFailed,
	}
}
