/*
Package domain contains the core models of the Wayz supervisor.

It is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - State: the snapshot a run mutates (messages, metadata, checkpoint ids, step, error).
  - Message: an agent message with a FIPA-style performative.
  - Node: a unit of work, either Blocking (worker pool) or Suspending.
  - Graph: named nodes run in registration order.
  - Checkpoint: a persisted State plus generated metadata.
*/
package domain
