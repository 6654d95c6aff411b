/*
Package domain contains the core models of the tether run lifecycle.

It defines the run state machine, the stream event variant delivered by
streaming sessions, the interrupt and input maps exchanged during a pause,
and the error kinds surfaced to callers. The package is free of I/O.

# Key Entities

  - RunState: the lifecycle phase (idle, starting, streaming, awaiting_input, resuming, completed, failed).
  - StreamEvent: a tagged variant (data, interrupt, terminal, transport_error).
  - InterruptRequest / PendingInput: the fields a paused run asks for and the values collected for them.
  - Snapshot: a read-only copy of the run handed to observers.
*/
package domain
