/*
Package tether is a client driver for remote, interruptible workflows.

A backend runs a long-lived workflow on behalf of the client. While it runs,
the workflow streams progress events over Server-Sent Events. At any point it
may pause and ask for missing information; the client collects the requested
fields and resumes the run, which then continues streaming until it either
pauses again or finishes with a result.

# Concept

The Client owns exactly one run at a time and moves it through a small state
machine:

	idle -> starting -> streaming -> awaiting_input -> resuming -> streaming -> completed
	                                        \-> failed (from any non-terminal state)

Every accessor returns a copy, so callers never share memory with the
driver. Operations not allowed in the current state return a
*domain.StateError and leave the run untouched.

# Usage

	client, err := tether.New("http://localhost:8000")
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Start(ctx, "Create Azure VM"); err != nil {
		log.Fatal(err)
	}

	for {
		snap, err := client.Wait(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if snap.State != domain.StateAwaitingInput {
			fmt.Println(snap.State, snap.Result)
			break
		}
		for _, key := range snap.Interrupt.Keys() {
			client.SetInputField(key, ask(snap.Interrupt[key]))
		}
		if err := client.Resume(ctx); err != nil {
			log.Fatal(err)
		}
	}

# Transports

The default backend is the HTTP adapter in pkg/adapters/http. Any
ports.Backend can be injected with WithBackend. Snapshots can be checkpointed
to a ports.SnapshotStore (memory or Redis) with WithSnapshotStore.
*/
package tether
