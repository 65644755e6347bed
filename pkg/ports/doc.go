/*
Package ports defines the driven ports (interfaces) of the wayz supervisor.

These interfaces decouple the run loop from storage backends and policy decision
points.

# Key Interfaces

  - CheckpointStore: persists, lists and restores state snapshots.
  - PolicyEnforcer: answers allow/deny for an action on a resource.
  - DistributedLocker: serializes writes to the same checkpoint id across instances.
*/
package ports
