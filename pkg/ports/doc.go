/*
Package ports defines the driven ports (interfaces) of the tether client.

These interfaces decouple the lifecycle controller from the concrete
backend transport and from optional checkpoint storage.

# Key Interfaces

  - Backend: create-run, stream and resume calls against the remote workflow engine.
  - Streamer: the stream half of Backend, used by streaming sessions.
  - SnapshotStore: persists the current run's snapshot (memory or Redis).
  - DistributedLocker: claims a snapshot key so only one process drives the run stored under it.
*/
package ports
